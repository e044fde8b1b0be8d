package dao_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"researchdao/internal/dao"
	"researchdao/internal/dao/daotest"
)

var (
	testFactory = common.HexToAddress("0xfac0000000000000000000000000000000000001")
	testDAO     = common.HexToAddress("0xda00000000000000000000000000000000000002")
	testTx      = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")
)

func TestDecodeDAOCreated(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	creator := common.HexToAddress("0x3333333333333333333333333333333333333333")
	log := daotest.DAOCreatedLog(t, testFactory, testDAO, "Longevity Lab", creator, 1700000000)
	log.BlockNumber = 42
	log.Index = 3

	decoded, err := decoder.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != dao.KindFactory || !decoded.Matched() {
		t.Fatalf("expected factory event, got %s", decoded.Kind)
	}

	created, ok := decoded.Payload.(dao.DAOCreated)
	if !ok {
		t.Fatalf("payload type mismatch: %T", decoded.Payload)
	}
	if created.DAO != testDAO || created.Creator != creator {
		t.Fatalf("address mismatch: %+v", created)
	}
	if created.Name != "Longevity Lab" || created.Timestamp.Uint64() != 1700000000 {
		t.Fatalf("fields mismatch: %+v", created)
	}

	event, err := decoded.IndexedEvent(1700000001)
	if err != nil {
		t.Fatalf("indexed event: %v", err)
	}
	if event.EventName != dao.EventDAOCreated || event.BlockNumber != 42 || event.LogIndex != 3 {
		t.Fatalf("indexed event mismatch: %+v", event)
	}
	if event.TxHash != log.TxHash.Hex() {
		t.Fatalf("tx hash mismatch: %s", event.TxHash)
	}
}

func TestDecodeDAOCreatedFromOtherEmitterIsUnrecognized(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	other := common.HexToAddress("0x4444444444444444444444444444444444444444")
	log := daotest.DAOCreatedLog(t, other, testDAO, "Impostor", other, 1)

	decoded, err := decoder.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Matched() {
		t.Fatalf("expected unrecognized, got %s", decoded.Kind)
	}
}

func TestDecodeDAOEvents(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	member := common.HexToAddress("0x5555555555555555555555555555555555555555")

	joined, err := decoder.Decode(daotest.MemberJoinedLog(t, testDAO, member, 7))
	if err != nil {
		t.Fatalf("decode member joined: %v", err)
	}
	mj, ok := joined.Payload.(dao.MemberJoined)
	if !ok || joined.Kind != dao.KindDAO {
		t.Fatalf("member joined mismatch: %+v", joined)
	}
	if mj.Member != member || mj.TokenID.Int64() != 7 {
		t.Fatalf("member joined fields: %+v", mj)
	}

	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	funds, err := decoder.Decode(daotest.FundsReceivedLog(t, testDAO, member, amount, 9))
	if err != nil {
		t.Fatalf("decode funds received: %v", err)
	}
	fr, ok := funds.Payload.(dao.FundsReceived)
	if !ok {
		t.Fatalf("funds received payload: %T", funds.Payload)
	}
	if fr.Contributor != member || fr.Amount.Cmp(amount) != 0 || fr.TokenID.Int64() != 9 {
		t.Fatalf("funds received fields: %+v", fr)
	}

	proposal, err := decoder.Decode(daotest.ProposalCreatedLog(t, testDAO, 11, member, "Fund the assay"))
	if err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	pc, ok := proposal.Payload.(dao.ProposalCreated)
	if !ok {
		t.Fatalf("proposal payload: %T", proposal.Payload)
	}
	if pc.ProposalID.Int64() != 11 || pc.Proposer != member || pc.Description != "Fund the assay" {
		t.Fatalf("proposal fields: %+v", pc)
	}
}

func TestDecodeUnrelatedLog(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	transfer := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	decoded, err := decoder.Decode(types.Log{
		Address: testDAO,
		Topics:  []common.Hash{transfer},
		TxHash:  testTx,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Kind != dao.KindUnrecognized || decoded.Payload != nil {
		t.Fatalf("expected unrecognized: %+v", decoded)
	}

	empty, err := decoder.Decode(types.Log{Address: testDAO, TxHash: testTx})
	if err != nil || empty.Matched() {
		t.Fatalf("expected unrecognized for topic-less log")
	}
}

func TestDecodeMalformedLog(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	member := common.HexToAddress("0x5555555555555555555555555555555555555555")
	log := daotest.FundsReceivedLog(t, testDAO, member, big.NewInt(1), 1)
	log.Data = log.Data[:16]
	if _, err := decoder.Decode(log); err == nil {
		t.Fatalf("expected error for truncated data")
	}

	log = daotest.FundsReceivedLog(t, testDAO, member, big.NewInt(1), 1)
	log.Topics = log.Topics[:1]
	if _, err := decoder.Decode(log); err == nil {
		t.Fatalf("expected error for missing topics")
	}

	log = daotest.FundsReceivedLog(t, testDAO, member, big.NewInt(1), 1)
	log.TxHash = common.Hash{}
	if _, err := decoder.Decode(log); err == nil {
		t.Fatalf("expected error for missing tx hash")
	}
}

func TestDecoderTopics(t *testing.T) {
	decoder, err := dao.NewDecoder(common.Address{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if len(decoder.FactoryTopics()) != 1 || len(decoder.DAOTopics()) != 3 {
		t.Fatalf("unexpected topic counts")
	}

	// any emitter is accepted without a configured factory
	other := common.HexToAddress("0x4444444444444444444444444444444444444444")
	decoded, err := decoder.Decode(daotest.DAOCreatedLog(t, other, testDAO, "Open", other, 1))
	if err != nil || decoded.Kind != dao.KindFactory {
		t.Fatalf("expected factory match: %v %+v", err, decoded)
	}
}

func TestDecodeUnrelatedLogWithoutTxHash(t *testing.T) {
	decoder, err := dao.NewDecoder(testFactory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	transfer := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	decoded, err := decoder.Decode(types.Log{
		Address: common.HexToAddress("0x7777777777777777777777777777777777777777"),
		Topics:  []common.Hash{transfer},
	})
	if err != nil {
		t.Fatalf("unrelated log must not error: %v", err)
	}
	if decoded.Matched() {
		t.Fatalf("expected unrecognized: %+v", decoded)
	}
}
