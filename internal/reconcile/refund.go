package reconcile

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

// refundFlagStatuses are the order statuses whose settlement flag a
// refund flips. Cancelled rows stay untouched; the payment row alone
// records the refund there.
var refundFlagStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusPaid,
	enums.OrderStatusProcessing,
	enums.OrderStatusCompleted,
	enums.OrderStatusDelivered,
}

// RefundPayment applies the administrative PAID to REFUNDED transition.
// Webhook flows never call this. Replays are no-ops: a payment that is
// already refunded comes back unchanged.
func (e *Engine) RefundPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	payment, err := e.paymentsRepo.FindByID(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if payment.Status == enums.PaymentStatusRefunded {
		return payment, nil
	}
	if payment.Status != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only settled payments can be refunded").
			WithDetails(map[string]any{"status": payment.Status})
	}

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := e.paymentsRepo.WithTx(tx)
		ordersRepo := e.ordersRepo.WithTx(tx)

		ok, err := paymentsRepo.MarkRefunded(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}
		if !ok {
			return nil
		}

		if err := paymentsRepo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:             payment.ID,
			Type:                  enums.PaymentEventRefunded,
			Source:                enums.PaymentEventSourceAdmin,
			StripeSessionID:       payment.StripeSessionID,
			StripePaymentIntentID: payment.StripePaymentIntentID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
		}

		if _, err := ordersRepo.UpdateWhereStatusIn(ctx, payment.OrderID,
			map[string]any{"payment_status": enums.OrderPaymentStatusRefunded},
			refundFlagStatuses); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order refunded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payment.Status = enums.PaymentStatusRefunded
	return payment, nil
}
