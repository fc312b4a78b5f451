package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

// SetOrderStatus applies an administrative status change through the
// same guarded-update discipline as the payment handlers. The read
// status is part of the WHERE clause, so a concurrent webhook that
// moved the order wins and this call reports the conflict instead of
// clobbering it.
func (e *Engine) SetOrderStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(target)})
	}

	order, err := e.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").
			WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
	}
	if order.Status == target {
		return order, nil
	}
	if !CanTransition(order.Status, target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{"from": order.Status, "to": target})
	}

	if target == enums.OrderStatusDelivered && order.PaymentStatus == enums.OrderPaymentStatusUnpaid {
		return e.deliverUnpaid(ctx, order)
	}

	rows, err := e.ordersRepo.UpdateWhereStatusIn(ctx, order.ID,
		map[string]any{"status": target},
		[]enums.OrderStatus{order.Status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if rows == 0 {
		return nil, staleOrderError(ctx, e, order.ID)
	}

	order.Status = target
	return order, nil
}

// deliverUnpaid handles the delivered transition while the order still
// shows unpaid. COD orders collect cash at the door, so delivery is
// the moment they settle. Anything else has to pay first.
func (e *Engine) deliverUnpaid(ctx context.Context, order *models.Order) (*models.Order, error) {
	payment, err := e.paymentsRepo.FindActiveByOrderID(ctx, order.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil || payment.Method != enums.PaymentMethodCOD {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot deliver unpaid order").
			WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
	}

	fromStatus := order.Status
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := e.paymentsRepo.WithTx(tx)
		ordersRepo := e.ordersRepo.WithTx(tx)

		ok, err := paymentsRepo.MarkPaid(ctx, payment.ID, nil, time.Now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment paid")
		}
		if ok {
			if err := paymentsRepo.AppendEvent(ctx, &models.PaymentEvent{
				PaymentID: payment.ID,
				Type:      enums.PaymentEventMarkedPaid,
				Source:    enums.PaymentEventSourceAdmin,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
			}
		}

		rows, err := ordersRepo.UpdateWhereStatusIn(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusDelivered,
			"payment_status": enums.OrderPaymentStatusPaid,
		}, []enums.OrderStatus{fromStatus})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return staleOrderError(ctx, e, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusDelivered
	order.PaymentStatus = enums.OrderPaymentStatusPaid
	return order, nil
}

// staleOrderError reports a guarded update that matched zero rows. The
// order moved under us; re-read it so the caller sees the current state.
func staleOrderError(ctx context.Context, e *Engine, orderID uuid.UUID) error {
	current, err := e.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently").
		WithDetails(map[string]any{"status": current.Status, "payment_status": current.PaymentStatus})
}
