package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
)

// PaymentEvent is one row of a payment's append-only provenance log:
// which write path moved the payment, when, and with which processor
// identifiers. Rows are only ever inserted.
type PaymentEvent struct {
	ID                    uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID             uuid.UUID                `gorm:"column:payment_id;type:uuid;not null"`
	Type                  enums.PaymentEventType   `gorm:"column:type;type:payment_event_type;not null"`
	Source                enums.PaymentEventSource `gorm:"column:source;type:payment_event_source;not null"`
	StripeEventID         *string                  `gorm:"column:stripe_event_id"`
	StripeSessionID       *string                  `gorm:"column:stripe_session_id"`
	StripePaymentIntentID *string                  `gorm:"column:stripe_payment_intent_id"`
	Reason                *string                  `gorm:"column:reason"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
}
