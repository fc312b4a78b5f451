package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
)

// Order represents a customer laundry order and its lifecycle state.
// UserID is the owner and never changes after creation; all status
// writes go through the reconciliation engine.
type Order struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	ServiceName     string                   `gorm:"column:service_name;not null"`
	Status          enums.OrderStatus        `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus   enums.OrderPaymentStatus `gorm:"column:payment_status;type:order_payment_status;not null;default:'unpaid'"`
	TotalPrice      decimal.Decimal          `gorm:"column:total_price;type:numeric(12,2);not null"`
	PickupAddress   string                   `gorm:"column:pickup_address"`
	DeliveryAddress string                   `gorm:"column:delivery_address"`
	Notes           *string                  `gorm:"column:notes"`
	Payments        []Payment                `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
