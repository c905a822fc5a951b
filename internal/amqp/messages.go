package amqp

import (
	"encoding/json"
	"time"
)

// Sync message operations. Messages carry only identifiers, the worker
// fetches current state from the local database before writing to the cloud.
const (
	OpTransactionSync   = "tx_sync"
	OpTransactionDelete = "tx_delete"
	OpBudgetSync        = "budget_sync"
)

// SyncMessage is a lightweight pointer to local state that needs mirroring.
// ID is set for transaction operations, Key for budget operations.
type SyncMessage struct {
	Op        string    `json:"op"`
	ID        string    `json:"id,omitempty"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id string) *SyncMessage {
	return &SyncMessage{
		Op:        OpTransactionSync,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func NewTransactionDeleteMessage(id string) *SyncMessage {
	return &SyncMessage{
		Op:        OpTransactionDelete,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func NewBudgetSyncMessage(key string) *SyncMessage {
	return &SyncMessage{
		Op:        OpBudgetSync,
		Key:       key,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncMessageFromJSON creates a message from JSON bytes
func SyncMessageFromJSON(data []byte) (*SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
