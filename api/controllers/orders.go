package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freshfoldapp/freshfold-backend/api/middleware"
	"github.com/freshfoldapp/freshfold-backend/api/responses"
	"github.com/freshfoldapp/freshfold-backend/api/validators"
	"github.com/freshfoldapp/freshfold-backend/internal/orders"
	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
)

type orderStatusUpdater interface {
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
}

// GetOrder returns one order with its payment history. Customers can
// only read their own orders.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		order, err := svc.Get(r.Context(), orders.GetInput{
			OrderID: orderID,
			UserID:  userID,
			Role:    enums.UserRole(middleware.RoleFromContext(r.Context())),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus applies an administrative status transition and
// returns the updated summary.
func UpdateOrderStatus(engine orderStatusUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
				WithDetails(map[string]any{"status": req.Status}))
			return
		}

		order, err := engine.SetOrderStatus(r.Context(), orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type orderResponse struct {
	ID              uuid.UUID        `json:"id"`
	ServiceName     string           `json:"service_name"`
	Status          string           `json:"status"`
	PaymentStatus   string           `json:"payment_status"`
	TotalPrice      string           `json:"total_price"`
	PickupAddress   string           `json:"pickup_address,omitempty"`
	DeliveryAddress string           `json:"delivery_address,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	Payments        []paymentSummary `json:"payments,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type paymentSummary struct {
	ID            uuid.UUID  `json:"id"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	payments := make([]paymentSummary, 0, len(order.Payments))
	for _, payment := range order.Payments {
		payments = append(payments, paymentSummary{
			ID:            payment.ID,
			Method:        string(payment.Method),
			Status:        string(payment.Status),
			Amount:        payment.Amount.StringFixed(2),
			FailureReason: payment.FailureReason,
			PaidAt:        payment.PaidAt,
			CreatedAt:     payment.CreatedAt,
		})
	}
	return orderResponse{
		ID:              order.ID,
		ServiceName:     order.ServiceName,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		TotalPrice:      order.TotalPrice.StringFixed(2),
		PickupAddress:   order.PickupAddress,
		DeliveryAddress: order.DeliveryAddress,
		Notes:           order.Notes,
		Payments:        payments,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}
