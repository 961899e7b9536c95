package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event (created, updated, deleted)
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeFeeLedger   EntityType = "fee_ledger"
	EntityTypePayment     EntityType = "payment"
	EntityTypeInstallment EntityType = "installment"
)

// Additional event types for specific events
const (
	EventTypeRecorded  EventType = "recorded"
	EventTypeScheduled EventType = "scheduled"
	EventTypeAccrued   EventType = "accrued"
	EventTypeWaived    EventType = "waived"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "fee_ledger.created"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "fee_ledger"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FeeLedgerCreated creates a fee_ledger.created event
func FeeLedgerCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeFeeLedger, payload)
}

// FeeLedgerUpdated creates a fee_ledger.updated event
func FeeLedgerUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeFeeLedger, payload)
}

// FeeLedgerDeleted creates a fee_ledger.deleted event
func FeeLedgerDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeFeeLedger, payload)
}

// FeeLedgerWaived creates a fee_ledger.waived event
func FeeLedgerWaived(payload interface{}) Event {
	return NewEvent(EventTypeWaived, EntityTypeFeeLedger, payload)
}

// PaymentRecorded creates a payment.recorded event
func PaymentRecorded(payload interface{}) Event {
	return NewEvent(EventTypeRecorded, EntityTypePayment, payload)
}

// InstallmentsScheduled creates an installment.scheduled event
func InstallmentsScheduled(payload interface{}) Event {
	return NewEvent(EventTypeScheduled, EntityTypeInstallment, payload)
}

// LateFeeAccrued creates an installment.accrued event
func LateFeeAccrued(payload interface{}) Event {
	return NewEvent(EventTypeAccrued, EntityTypeInstallment, payload)
}
