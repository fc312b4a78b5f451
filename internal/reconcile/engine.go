package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfoldapp/freshfold-backend/internal/orders"
	"github.com/freshfoldapp/freshfold-backend/internal/payments"
	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
	pkgstripe "github.com/freshfoldapp/freshfold-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionRetriever is the slice of the processor client the redirect
// path needs to confirm the session actually settled.
type SessionRetriever interface {
	RetrieveSession(ctx context.Context, id string) (*pkgstripe.SessionStatus, error)
}

// Engine is the single authority over order and payment status. Every
// write path lands here: the browser redirect after checkout, the
// processor webhooks, and the administrative status update. Handlers
// key lookups on processor correlation ids and write through guarded
// updates, so duplicate or out-of-order deliveries of the same logical
// event collapse into one transition.
type Engine struct {
	ordersRepo   orders.Repository
	paymentsRepo payments.Repository
	tx           txRunner
	sessions     SessionRetriever
	logg         *logger.Logger
}

type EngineParams struct {
	OrdersRepo   orders.Repository
	PaymentsRepo payments.Repository
	Tx           txRunner
	Sessions     SessionRetriever
	Logger       *logger.Logger
}

// NewEngine builds the reconciliation engine with the required dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.PaymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session retriever required")
	}
	return &Engine{
		ordersRepo:   params.OrdersRepo,
		paymentsRepo: params.PaymentsRepo,
		tx:           params.Tx,
		sessions:     params.Sessions,
		logg:         params.Logger,
	}, nil
}

// CompletionResult reports a reconciled redirect return.
type CompletionResult struct {
	OrderID   uuid.UUID
	UserID    uuid.UUID
	PaymentID uuid.UUID
	// AlreadyPaid is true when the webhook won the race and this
	// delivery changed nothing.
	AlreadyPaid bool
}

// CompleteCheckout reconciles the browser's return from hosted
// checkout. Safe to replay: a reloaded success page is a no-op.
func (e *Engine) CompleteCheckout(ctx context.Context, sessionID string, orderID uuid.UUID) (*CompletionResult, error) {
	if sessionID == "" || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id and order id required")
	}

	session, err := e.sessions.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}
	if session.PaymentStatus != pkgstripe.SessionPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session not settled").
			WithDetails(map[string]any{"payment_status": session.PaymentStatus})
	}

	payment, err := e.paymentsRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.OrderID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session does not belong to order")
	}

	order, err := e.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	var intentID *string
	if session.PaymentIntentID != "" {
		id := session.PaymentIntentID
		intentID = &id
	}

	updated, err := e.settle(ctx, settleInput{
		payment:  payment,
		source:   enums.PaymentEventSourceRedirect,
		intentID: intentID,
	})
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		OrderID:     order.ID,
		UserID:      order.UserID,
		PaymentID:   payment.ID,
		AlreadyPaid: !updated,
	}, nil
}

// SessionCompletedInput carries the checkout.session.completed fields
// the engine acts on.
type SessionCompletedInput struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
}

// HandleSessionCompleted applies a settled checkout session delivered
// by webhook. A session with no pending payment is treated as already
// processed; the processor must never see an error for that.
func (e *Engine) HandleSessionCompleted(ctx context.Context, input SessionCompletedInput) (bool, error) {
	if input.SessionID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	payment, err := e.paymentsRepo.FindBySessionID(ctx, input.SessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			e.warn(ctx, "session completed for unknown payment, acknowledging", map[string]any{"session_id": input.SessionID})
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	var intentID *string
	if input.PaymentIntentID != "" {
		id := input.PaymentIntentID
		intentID = &id
	}
	var eventID *string
	if input.EventID != "" {
		id := input.EventID
		eventID = &id
	}

	return e.settle(ctx, settleInput{
		payment:       payment,
		source:        enums.PaymentEventSourceWebhook,
		stripeEventID: eventID,
		intentID:      intentID,
	})
}

// IntentSucceededInput carries the payment_intent.succeeded fields the
// engine acts on. Metadata holds the order/user linkage stamped at
// session creation.
type IntentSucceededInput struct {
	EventID         string
	PaymentIntentID string
	OrderID         string
	UserID          string
}

// HandleIntentSucceeded mirrors the session-completed effect, keyed by
// payment intent id. The metadata linkage is re-validated before any
// mutation so an intent from another order can never settle this one.
func (e *Engine) HandleIntentSucceeded(ctx context.Context, input IntentSucceededInput) (bool, error) {
	if input.PaymentIntentID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	payment, err := e.paymentsRepo.FindByPaymentIntentID(ctx, input.PaymentIntentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			e.warn(ctx, "intent succeeded for unknown payment, acknowledging", map[string]any{"payment_intent_id": input.PaymentIntentID})
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	order, err := e.ordersRepo.FindByID(ctx, payment.OrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.OrderID != "" && input.OrderID != order.ID.String() {
		e.warn(ctx, "intent metadata order mismatch, acknowledging", map[string]any{
			"payment_intent_id": input.PaymentIntentID,
			"metadata_order_id": input.OrderID,
		})
		return false, nil
	}
	if input.UserID != "" && input.UserID != order.UserID.String() {
		e.warn(ctx, "intent metadata user mismatch, acknowledging", map[string]any{
			"payment_intent_id": input.PaymentIntentID,
			"metadata_user_id":  input.UserID,
		})
		return false, nil
	}

	var eventID *string
	if input.EventID != "" {
		id := input.EventID
		eventID = &id
	}

	return e.settle(ctx, settleInput{
		payment:       payment,
		source:        enums.PaymentEventSourceWebhook,
		stripeEventID: eventID,
	})
}

// ChargeFailedInput carries the charge.failed fields the engine acts on.
type ChargeFailedInput struct {
	EventID         string
	PaymentIntentID string
	Reason          string
}

// HandleChargeFailed marks a pending payment failed and parks the order
// back in pending. A payment that already settled is never overridden.
func (e *Engine) HandleChargeFailed(ctx context.Context, input ChargeFailedInput) (bool, error) {
	if input.PaymentIntentID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	payment, err := e.paymentsRepo.FindByPaymentIntentID(ctx, input.PaymentIntentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			e.warn(ctx, "charge failed for unknown payment, acknowledging", map[string]any{"payment_intent_id": input.PaymentIntentID})
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	reason := input.Reason
	if reason == "" {
		reason = "charge failed"
	}

	var updated bool
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := e.paymentsRepo.WithTx(tx)
		ordersRepo := e.ordersRepo.WithTx(tx)

		ok, err := paymentsRepo.MarkFailed(ctx, payment.ID, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !ok {
			return nil
		}
		updated = true

		event := &models.PaymentEvent{
			PaymentID: payment.ID,
			Type:      enums.PaymentEventMarkedFailed,
			Source:    enums.PaymentEventSourceWebhook,
			Reason:    &reason,
		}
		if input.EventID != "" {
			id := input.EventID
			event.StripeEventID = &id
		}
		if err := paymentsRepo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
		}

		if _, err := ordersRepo.UpdateWhereStatusIn(ctx, payment.OrderID,
			map[string]any{"status": enums.OrderStatusPending},
			settleableStatuses); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset order status")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

type settleInput struct {
	payment       *models.Payment
	source        enums.PaymentEventSource
	stripeEventID *string
	intentID      *string
}

// settle is the one place a payment becomes PAID. The CAS update on
// the payment row decides the race between concurrent deliveries; the
// loser sees zero rows and leaves everything untouched.
func (e *Engine) settle(ctx context.Context, input settleInput) (bool, error) {
	if input.payment.Status == enums.PaymentStatusPaid {
		return false, nil
	}

	var updated bool
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := e.paymentsRepo.WithTx(tx)
		ordersRepo := e.ordersRepo.WithTx(tx)

		order, err := ordersRepo.FindByID(ctx, input.payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCancelled {
			// A settled session on a cancelled order needs a refund,
			// not a resurrection. Leave both rows alone.
			e.warn(ctx, "payment success for cancelled order ignored", map[string]any{
				"order_id":   order.ID,
				"payment_id": input.payment.ID,
			})
			return nil
		}

		ok, err := paymentsRepo.MarkPaid(ctx, input.payment.ID, input.intentID, time.Now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment paid")
		}
		if !ok {
			return nil
		}
		updated = true

		if err := paymentsRepo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:             input.payment.ID,
			Type:                  enums.PaymentEventMarkedPaid,
			Source:                input.source,
			StripeEventID:         input.stripeEventID,
			StripeSessionID:       input.payment.StripeSessionID,
			StripePaymentIntentID: input.intentID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
		}

		rows, err := ordersRepo.UpdateWhereStatusIn(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusProcessing,
			"payment_status": enums.OrderPaymentStatusPaid,
		}, settleableStatuses)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order")
		}
		if rows == 0 {
			// Order already moved past processing; only reconcile the
			// settlement flag.
			if _, err := ordersRepo.UpdateWhereStatusIn(ctx, order.ID,
				map[string]any{"payment_status": enums.OrderPaymentStatusPaid},
				postSettleStatuses); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile order payment status")
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (e *Engine) warn(ctx context.Context, msg string, fields map[string]any) {
	if e.logg == nil {
		return
	}
	e.logg.Warn(e.logg.WithFields(ctx, fields), msg)
}
