package outbox

import (
	"encoding/json"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Message carries an audit record written in the same transaction as the vault mutation,
// so the read model and the event stream can be fed reliably
type Message struct {
	ID            int64               `json:"id"`
	RecordID      uuid.UUID           `json:"record_id"`
	VaultID       uuid.UUID           `json:"vault_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(record *audit.Record) (*Message, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	return &Message{
		RecordID:  record.ID,
		VaultID:   record.VaultID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetRecord extracts the audit record from the payload
func (m *Message) GetRecord() (*audit.Record, error) {
	var record audit.Record
	if err := json.Unmarshal(m.Payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
