package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/core"
)

// PaymentEvent announces that a payment was submitted or changed status.
// It carries identifiers only; consumers reload the payment from storage.
type PaymentEvent struct {
	PaymentID uuid.UUID          `json:"paymentId"`
	LeaseID   uuid.UUID          `json:"leaseId"`
	Status    core.PaymentStatus `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewPaymentEvent builds the event for p's current status.
func NewPaymentEvent(p core.Payment) *PaymentEvent {
	return &PaymentEvent{
		PaymentID: p.ID,
		LeaseID:   p.LeaseID,
		Status:    p.Status,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentEventFromJSON decodes and validates an event body.
func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var msg PaymentEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.PaymentID == uuid.Nil || msg.LeaseID == uuid.Nil {
		return nil, fmt.Errorf("payment event: %w", core.ErrMissingID)
	}
	if !msg.Status.IsValid() {
		return nil, fmt.Errorf("payment event: %w: %q", core.ErrInvalidStatus, msg.Status)
	}
	return &msg, nil
}
