package model

import (
	"encoding/json"
	"fmt"
)

// IndexedEvent is a decoded chain log ready for storage.
type IndexedEvent struct {
	ContractAddress string          `json:"contract_address"`
	EventName       string          `json:"event_name"`
	BlockNumber     uint64          `json:"block_number"`
	TxHash          string          `json:"tx_hash"`
	LogIndex        uint64          `json:"log_index"`
	Timestamp       uint64          `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// Key is the idempotency key of the event.
func (e IndexedEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// MarshalJSON ensures IndexedEvent is encoded with stable field names.
func (e IndexedEvent) MarshalJSON() ([]byte, error) {
	type Alias IndexedEvent
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes an IndexedEvent from JSON.
func (e *IndexedEvent) UnmarshalJSON(data []byte) error {
	type Alias IndexedEvent
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = IndexedEvent(a)
	return nil
}
