package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freshfoldapp/freshfold-backend/api/middleware"
	"github.com/freshfoldapp/freshfold-backend/api/responses"
	"github.com/freshfoldapp/freshfold-backend/api/validators"
	"github.com/freshfoldapp/freshfold-backend/internal/payments"
	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	Method string `json:"method" validate:"required"`
}

type initiatePaymentResponse struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	OrderID     uuid.UUID `json:"order_id"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount"`
	RedirectURL string    `json:"redirect_url,omitempty"`
}

// InitiatePayment creates a payment for the caller's order. Online
// payments return the hosted checkout URL to redirect the customer to.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
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

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be COD or ONLINE"))
			return
		}

		result, err := svc.Initiate(r.Context(), payments.InitiateInput{
			OrderID: orderID,
			Method:  method,
			UserID:  userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, initiatePaymentResponse{
			PaymentID:   result.PaymentID,
			OrderID:     result.OrderID,
			Method:      string(result.Method),
			Status:      string(result.Status),
			Amount:      result.Amount,
			RedirectURL: result.RedirectURL,
		})
	}
}

type paymentRefunder interface {
	RefundPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

type refundPaymentResponse struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Status    string    `json:"status"`
	Amount    string    `json:"amount"`
}

// RefundPayment marks a settled payment refunded. Repeated calls
// return the refunded payment without another transition.
func RefundPayment(engine paymentRefunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment id"))
			return
		}

		payment, err := engine.RefundPayment(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundPaymentResponse{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			Status:    string(payment.Status),
			Amount:    payment.Amount.StringFixed(2),
		})
	}
}
