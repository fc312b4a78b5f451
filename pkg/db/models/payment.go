package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
)

// Payment tracks one payment attempt against an order. Amount is copied
// from the order total at initiation and never re-derived. The Stripe
// ids are the correlation keys webhook handlers look payments up by.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Method                enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'PENDING'"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	StripeSessionID       *string             `gorm:"column:stripe_session_id;uniqueIndex:idx_payments_stripe_session_id"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id"`
	FailureReason         *string             `gorm:"column:failure_reason"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	Events                []PaymentEvent      `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
