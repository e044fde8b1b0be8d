package dao

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"researchdao/internal/model"
)

const (
	EventDAOCreated      = "DAOCreated"
	EventMemberJoined    = "MemberJoined"
	EventFundsReceived   = "FundsReceived"
	EventProposalCreated = "ProposalCreated"
)

// Kind tells which contract family a decoded log belongs to.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindFactory
	KindDAO
)

func (k Kind) String() string {
	switch k {
	case KindFactory:
		return "factory"
	case KindDAO:
		return "dao"
	default:
		return "unrecognized"
	}
}

// Payload is implemented only by the event types of this package.
type Payload interface {
	EventName() string
	Data() interface{}
	sealed()
}

// DAOCreated is emitted by the factory when a new DAO contract is deployed.
type DAOCreated struct {
	DAO       common.Address
	Name      string
	Creator   common.Address
	Timestamp *big.Int
}

// MemberJoined is emitted by a DAO when a member mints a membership token.
type MemberJoined struct {
	Member  common.Address
	TokenID *big.Int
}

// FundsReceived is emitted by a DAO when it receives a contribution in wei.
type FundsReceived struct {
	Contributor common.Address
	Amount      *big.Int
	TokenID     *big.Int
}

// ProposalCreated is emitted by a DAO for every new governance proposal.
type ProposalCreated struct {
	ProposalID  *big.Int
	Proposer    common.Address
	Description string
}

func (DAOCreated) EventName() string      { return EventDAOCreated }
func (MemberJoined) EventName() string    { return EventMemberJoined }
func (FundsReceived) EventName() string   { return EventFundsReceived }
func (ProposalCreated) EventName() string { return EventProposalCreated }

func (DAOCreated) sealed()      {}
func (MemberJoined) sealed()    {}
func (FundsReceived) sealed()   {}
func (ProposalCreated) sealed() {}

func (e DAOCreated) Data() interface{} {
	return model.DAOCreatedData{
		DAOAddress: e.DAO.Hex(),
		Name:       e.Name,
		Creator:    e.Creator.Hex(),
		Timestamp:  bigString(e.Timestamp),
	}
}

func (e MemberJoined) Data() interface{} {
	return model.MemberJoinedData{
		Member:  e.Member.Hex(),
		TokenID: bigString(e.TokenID),
	}
}

func (e FundsReceived) Data() interface{} {
	return model.FundsReceivedData{
		Contributor: e.Contributor.Hex(),
		Amount:      bigString(e.Amount),
		TokenID:     bigString(e.TokenID),
	}
}

func (e ProposalCreated) Data() interface{} {
	return model.ProposalCreatedData{
		ProposalID:  bigString(e.ProposalID),
		Proposer:    e.Proposer.Hex(),
		Description: e.Description,
	}
}

// Decoded is the result of decoding one log. Payload is nil when Kind is
// KindUnrecognized.
type Decoded struct {
	Kind        Kind
	Contract    common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Payload     Payload
}

// Matched reports whether the log belonged to a known contract event.
func (d Decoded) Matched() bool {
	return d.Kind != KindUnrecognized && d.Payload != nil
}

// IndexedEvent converts a matched result into its storage form.
func (d Decoded) IndexedEvent(timestamp uint64) (model.IndexedEvent, error) {
	if !d.Matched() {
		return model.IndexedEvent{}, fmt.Errorf("unrecognized log has no indexed form")
	}
	payload, err := json.Marshal(d.Payload.Data())
	if err != nil {
		return model.IndexedEvent{}, fmt.Errorf("marshal %s payload: %w", d.Payload.EventName(), err)
	}
	return model.IndexedEvent{
		ContractAddress: d.Contract.Hex(),
		EventName:       d.Payload.EventName(),
		BlockNumber:     d.BlockNumber,
		TxHash:          d.TxHash.Hex(),
		LogIndex:        uint64(d.LogIndex),
		Timestamp:       timestamp,
		Payload:         payload,
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
