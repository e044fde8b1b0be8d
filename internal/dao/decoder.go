package dao

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder turns raw logs into typed factory or DAO events. It is safe for
// concurrent use.
type Decoder struct {
	factory    common.Address
	factoryABI abi.ABI
	daoABI     abi.ABI
	factoryIDs map[common.Hash]abi.Event
	daoIDs     map[common.Hash]abi.Event
}

// NewDecoder builds a decoder. Factory events are only recognized when they
// are emitted by factory; a zero factory address accepts any emitter.
func NewDecoder(factory common.Address) (*Decoder, error) {
	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	daoABI, err := ResearchDAOABI()
	if err != nil {
		return nil, fmt.Errorf("parse dao abi: %w", err)
	}

	d := &Decoder{
		factory:    factory,
		factoryABI: factoryABI,
		daoABI:     daoABI,
		factoryIDs: make(map[common.Hash]abi.Event),
		daoIDs:     make(map[common.Hash]abi.Event),
	}
	for _, event := range factoryABI.Events {
		d.factoryIDs[event.ID] = event
	}
	for _, event := range daoABI.Events {
		d.daoIDs[event.ID] = event
	}
	return d, nil
}

// Factory returns the configured factory address.
func (d *Decoder) Factory() common.Address {
	return d.factory
}

// FactoryTopics returns the topic0 values of the factory events.
func (d *Decoder) FactoryTopics() []common.Hash {
	return []common.Hash{d.factoryABI.Events[EventDAOCreated].ID}
}

// DAOTopics returns the topic0 values of the per-DAO events.
func (d *Decoder) DAOTopics() []common.Hash {
	return []common.Hash{
		d.daoABI.Events[EventMemberJoined].ID,
		d.daoABI.Events[EventFundsReceived].ID,
		d.daoABI.Events[EventProposalCreated].ID,
	}
}

// Decode matches log against the known event signatures. Logs of unrelated
// contracts yield KindUnrecognized and a nil error; an error means the
// signature matched but the fields could not be decoded.
func (d *Decoder) Decode(log types.Log) (Decoded, error) {
	out := Decoded{
		Kind:        KindUnrecognized,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}
	if len(log.Topics) == 0 {
		return out, nil
	}

	topic0 := log.Topics[0]
	var (
		event abi.Event
		kind  Kind
		ok    bool
	)
	if event, ok = d.factoryIDs[topic0]; ok && d.isFactory(log.Address) {
		kind = KindFactory
	} else if event, ok = d.daoIDs[topic0]; ok {
		kind = KindDAO
	} else {
		return out, nil
	}

	if log.TxHash == (common.Hash{}) {
		return out, fmt.Errorf("%s log at block %d index %d has no transaction hash", event.Name, log.BlockNumber, log.Index)
	}

	var (
		payload Payload
		err     error
	)
	if kind == KindFactory {
		payload, err = decodeFactoryEvent(event, log)
	} else {
		payload, err = decodeDAOEvent(event, log)
	}
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", event.Name, err)
	}
	out.Kind = kind
	out.Payload = payload
	return out, nil
}

func (d *Decoder) isFactory(address common.Address) bool {
	return d.factory == (common.Address{}) || d.factory == address
}

func decodeFactoryEvent(event abi.Event, log types.Log) (Payload, error) {
	fields, err := unpackLog(event, log)
	if err != nil {
		return nil, err
	}
	switch event.Name {
	case EventDAOCreated:
		var out DAOCreated
		if out.DAO, err = asAddress(fields, "daoAddress"); err != nil {
			return nil, err
		}
		if out.Name, err = asString(fields, "name"); err != nil {
			return nil, err
		}
		if out.Creator, err = asAddress(fields, "creator"); err != nil {
			return nil, err
		}
		if out.Timestamp, err = asBigInt(fields, "timestamp"); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported factory event: %s", event.Name)
	}
}

func decodeDAOEvent(event abi.Event, log types.Log) (Payload, error) {
	fields, err := unpackLog(event, log)
	if err != nil {
		return nil, err
	}
	switch event.Name {
	case EventMemberJoined:
		var out MemberJoined
		if out.Member, err = asAddress(fields, "member"); err != nil {
			return nil, err
		}
		if out.TokenID, err = asBigInt(fields, "tokenId"); err != nil {
			return nil, err
		}
		return out, nil
	case EventFundsReceived:
		var out FundsReceived
		if out.Contributor, err = asAddress(fields, "contributor"); err != nil {
			return nil, err
		}
		if out.Amount, err = asBigInt(fields, "amount"); err != nil {
			return nil, err
		}
		if out.TokenID, err = asBigInt(fields, "tokenId"); err != nil {
			return nil, err
		}
		return out, nil
	case EventProposalCreated:
		var out ProposalCreated
		if out.ProposalID, err = asBigInt(fields, "proposalId"); err != nil {
			return nil, err
		}
		if out.Proposer, err = asAddress(fields, "proposer"); err != nil {
			return nil, err
		}
		if out.Description, err = asString(fields, "description"); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dao event: %s", event.Name)
	}
}

func unpackLog(event abi.Event, log types.Log) (map[string]interface{}, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}

	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return fields, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asAddress(fields map[string]interface{}, name string) (common.Address, error) {
	switch v := fields[name].(type) {
	case common.Address:
		return v, nil
	default:
		return common.Address{}, fmt.Errorf("field %s: unexpected type %T", name, v)
	}
}

func asBigInt(fields map[string]interface{}, name string) (*big.Int, error) {
	switch v := fields[name].(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("field %s: nil", name)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("field %s: unexpected type %T", name, v)
	}
}

func asString(fields map[string]interface{}, name string) (string, error) {
	switch v := fields[name].(type) {
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("field %s: unexpected type %T", name, v)
	}
}
