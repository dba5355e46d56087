package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// OutboxStatus is the delivery state of a mail outbox entry.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the entry is persisted but not yet attempted.
	OutboxStatusPending OutboxStatus = "PENDING"
	// OutboxStatusSending indicates a delivery attempt is in flight.
	OutboxStatusSending OutboxStatus = "SENDING"
	// OutboxStatusSent indicates delivery succeeded.
	OutboxStatusSent OutboxStatus = "SENT"
	// OutboxStatusFailed indicates all delivery attempts were exhausted.
	OutboxStatusFailed OutboxStatus = "FAILED"
	// OutboxStatusSkipped indicates the spam gate rejected the entry; no
	// delivery attempt was made and the attempt count stays at zero.
	OutboxStatusSkipped OutboxStatus = "SKIPPED"
)

// Valid returns true if the OutboxStatus is a known delivery state.
func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusSending, OutboxStatusSent,
		OutboxStatusFailed, OutboxStatusSkipped:
		return true
	}
	return false
}

// ErrOutboxEntryNotFound is returned when an outbox lookup misses.
var ErrOutboxEntryNotFound = errors.New("outbox entry not found")

// MailOutboxEntry is one outbound notification. Created by the dispatcher,
// transitions through delivery states, never deleted by workers.
type MailOutboxEntry struct {
	ID          string          `json:"id"           db:"id"`
	Recipient   string          `json:"recipient"    db:"recipient"`
	Subject     string          `json:"subject"      db:"subject"`
	TemplateID  string          `json:"template_id"  db:"template_id"`
	Payload     json.RawMessage `json:"payload"      db:"payload"`
	Locale      string          `json:"locale"       db:"locale"`
	ContentHash string          `json:"content_hash" db:"content_hash"`
	POIID       *string         `json:"poi_id,omitempty" db:"poi_id"`
	Status      OutboxStatus    `json:"status"       db:"status"`
	Attempts    int             `json:"attempts"     db:"attempts"`
	LastError   *string         `json:"last_error,omitempty" db:"last_error"`
	SentAt      *time.Time      `json:"sent_at,omitempty"    db:"sent_at"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"   db:"updated_at"`
}

// ContentHash digests (recipient, template, payload) for spam deduplication.
// Identical tuples hash identically regardless of when they are composed.
func ContentHash(recipient, templateID string, payload json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write([]byte(templateID))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
