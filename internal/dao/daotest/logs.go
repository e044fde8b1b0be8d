// Package daotest builds raw factory and DAO logs for tests.
package daotest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"researchdao/internal/dao"
)

// DAOCreatedLog builds a DAOCreated log as the factory would emit it.
func DAOCreatedLog(t testing.TB, factory, daoAddress common.Address, name string, creator common.Address, timestamp int64) types.Log {
	t.Helper()
	factoryABI, err := dao.FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := factoryABI.Events[dao.EventDAOCreated]
	data, err := event.Inputs.NonIndexed().Pack(name, big.NewInt(timestamp))
	if err != nil {
		t.Fatalf("pack DAOCreated: %v", err)
	}
	return types.Log{
		Address: factory,
		Topics:  []common.Hash{event.ID, common.BytesToHash(daoAddress.Bytes()), common.BytesToHash(creator.Bytes())},
		Data:    data,
		TxHash:  TxHash(factory, daoAddress),
	}
}

// MemberJoinedLog builds a MemberJoined log emitted by daoAddress.
func MemberJoinedLog(t testing.TB, daoAddress, member common.Address, tokenID int64) types.Log {
	t.Helper()
	event := daoEvent(t, dao.EventMemberJoined)
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(tokenID))
	if err != nil {
		t.Fatalf("pack MemberJoined: %v", err)
	}
	return types.Log{
		Address: daoAddress,
		Topics:  []common.Hash{event.ID, common.BytesToHash(member.Bytes())},
		Data:    data,
		TxHash:  TxHash(daoAddress, member),
	}
}

// FundsReceivedLog builds a FundsReceived log emitted by daoAddress.
func FundsReceivedLog(t testing.TB, daoAddress, contributor common.Address, amount *big.Int, tokenID int64) types.Log {
	t.Helper()
	event := daoEvent(t, dao.EventFundsReceived)
	data, err := event.Inputs.NonIndexed().Pack(amount, big.NewInt(tokenID))
	if err != nil {
		t.Fatalf("pack FundsReceived: %v", err)
	}
	return types.Log{
		Address: daoAddress,
		Topics:  []common.Hash{event.ID, common.BytesToHash(contributor.Bytes())},
		Data:    data,
		TxHash:  TxHash(daoAddress, contributor),
	}
}

// ProposalCreatedLog builds a ProposalCreated log emitted by daoAddress.
func ProposalCreatedLog(t testing.TB, daoAddress common.Address, proposalID int64, proposer common.Address, description string) types.Log {
	t.Helper()
	event := daoEvent(t, dao.EventProposalCreated)
	data, err := event.Inputs.NonIndexed().Pack(description)
	if err != nil {
		t.Fatalf("pack ProposalCreated: %v", err)
	}
	return types.Log{
		Address: daoAddress,
		Topics:  []common.Hash{event.ID, common.BigToHash(big.NewInt(proposalID)), common.BytesToHash(proposer.Bytes())},
		Data:    data,
		TxHash:  TxHash(daoAddress, proposer),
	}
}

// TxHash derives a deterministic, non-zero transaction hash from two
// addresses.
func TxHash(a, b common.Address) common.Hash {
	return common.BytesToHash(append(a.Bytes(), b.Bytes()[:12]...))
}

func daoEvent(t testing.TB, name string) abi.Event {
	t.Helper()
	daoABI, err := dao.ResearchDAOABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return daoABI.Events[name]
}
