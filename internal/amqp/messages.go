package amqp

import (
	"encoding/json"
	"time"
)

// LedgerSyncMessage tells the archive worker which ledger changed.
// It carries only the key and version, the worker fetches the full ledger
// from the database.
type LedgerSyncMessage struct {
	CarID     string    `json:"carId"`
	Year      int       `json:"year"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerSyncMessage creates a new sync message for one ledger revision
func NewLedgerSyncMessage(carID string, year int, version int64) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		CarID:     carID,
		Year:      year,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
