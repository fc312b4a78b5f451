package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"

	"github.com/freshfoldapp/freshfold-backend/internal/reconcile"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
	"github.com/freshfoldapp/freshfold-backend/pkg/metrics"
)

// reconciler is the slice of the reconciliation engine the dispatcher
// drives. Each handler reports whether the delivery changed anything.
type reconciler interface {
	HandleSessionCompleted(ctx context.Context, input reconcile.SessionCompletedInput) (bool, error)
	HandleIntentSucceeded(ctx context.Context, input reconcile.IntentSucceededInput) (bool, error)
	HandleChargeFailed(ctx context.Context, input reconcile.ChargeFailedInput) (bool, error)
}

type ServiceParams struct {
	Engine  reconciler
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
	// MaxStoreRetries bounds redelivery attempts against a flapping
	// store within a single request. Zero means no retry.
	MaxStoreRetries int
	RetryBackoff    time.Duration
}

// Service dispatches verified Stripe events to the reconciliation
// engine. Unrecognized event types are acknowledged and skipped;
// transient store failures are retried a bounded number of times with
// fixed backoff before the error is surfaced for processor redelivery.
type Service struct {
	engine     reconciler
	metricsSet *metrics.WebhookMetrics
	logg       *logger.Logger
	maxRetries uint64
	backoff    time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine required")
	}
	if params.MaxStoreRetries < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "max store retries must be non-negative")
	}
	backoff := params.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Service{
		engine:     params.Engine,
		metricsSet: params.Metrics,
		logg:       params.Logger,
		maxRetries: uint64(params.MaxStoreRetries),
		backoff:    backoff,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	eventType := string(event.Type)
	start := time.Now()
	defer func() {
		s.metricsSet.ObserveDuration(eventType, time.Since(start))
	}()

	if s.logg != nil {
		ctx = s.logg.WithStripeEvent(ctx, event.ID, eventType)
	}

	var updated bool
	var err error
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		updated, err = s.handleSessionCompleted(ctx, event)
	case stripe.EventTypePaymentIntentSucceeded:
		updated, err = s.handleIntentSucceeded(ctx, event)
	case stripe.EventTypeChargeFailed:
		updated, err = s.handleChargeFailed(ctx, event)
	default:
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("ignoring unhandled stripe event type %s", eventType))
		}
		s.metricsSet.IncReplayed(eventType)
		return nil
	}
	if err != nil {
		s.metricsSet.IncFailed(eventType)
		return err
	}
	if updated {
		s.metricsSet.IncHandled(eventType)
	} else {
		s.metricsSet.IncReplayed(eventType)
	}
	return nil
}

func (s *Service) handleSessionCompleted(ctx context.Context, event *stripe.Event) (bool, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if session.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	input := reconcile.SessionCompletedInput{
		EventID:   event.ID,
		SessionID: session.ID,
	}
	if session.PaymentIntent != nil {
		input.PaymentIntentID = session.PaymentIntent.ID
	}
	return s.withStoreRetry(ctx, func(ctx context.Context) (bool, error) {
		return s.engine.HandleSessionCompleted(ctx, input)
	})
}

func (s *Service) handleIntentSucceeded(ctx context.Context, event *stripe.Event) (bool, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	input := reconcile.IntentSucceededInput{
		EventID:         event.ID,
		PaymentIntentID: intent.ID,
		OrderID:         intent.Metadata["orderId"],
		UserID:          intent.Metadata["userId"],
	}
	return s.withStoreRetry(ctx, func(ctx context.Context) (bool, error) {
		return s.engine.HandleIntentSucceeded(ctx, input)
	})
}

func (s *Service) handleChargeFailed(ctx context.Context, event *stripe.Event) (bool, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		if s.logg != nil {
			s.logg.Warn(ctx, "charge failed event without payment intent, acknowledging")
		}
		return false, nil
	}

	reason := charge.FailureMessage
	if reason == "" {
		reason = charge.FailureCode
	}
	input := reconcile.ChargeFailedInput{
		EventID:         event.ID,
		PaymentIntentID: charge.PaymentIntent.ID,
		Reason:          reason,
	}
	return s.withStoreRetry(ctx, func(ctx context.Context) (bool, error) {
		return s.engine.HandleChargeFailed(ctx, input)
	})
}

// withStoreRetry re-runs the handler on retryable errors only. The
// handlers are idempotent, so re-running a partially applied attempt
// is safe.
func (s *Service) withStoreRetry(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	var updated bool
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := fn(ctx)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}
