package amqp

import (
	"encoding/json"
	"time"
)

// LedgerSavedMessage announces that the ledger was overwritten. It carries
// no rows; subscribers reload from the row store.
type LedgerSavedMessage struct {
	Action    string    `json:"action"`
	Rows      int       `json:"rows"`
	Backend   string    `json:"backend"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ActionSaved = "saved"
	ActionAdded = "added"
)

func NewLedgerSavedMessage(action, backend string, rows int) *LedgerSavedMessage {
	return &LedgerSavedMessage{
		Action:    action,
		Rows:      rows,
		Backend:   backend,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSavedMessageFromJSON(data []byte) (*LedgerSavedMessage, error) {
	var msg LedgerSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
