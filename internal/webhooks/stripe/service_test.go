package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/freshfoldapp/freshfold-backend/internal/reconcile"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

type stubEngine struct {
	sessionCalls int
	intentCalls  int
	chargeCalls  int
	updated      bool
	errs         []error
	lastSession  reconcile.SessionCompletedInput
	lastIntent   reconcile.IntentSucceededInput
	lastCharge   reconcile.ChargeFailedInput
}

func (s *stubEngine) nextErr() error {
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *stubEngine) HandleSessionCompleted(ctx context.Context, input reconcile.SessionCompletedInput) (bool, error) {
	s.sessionCalls++
	s.lastSession = input
	if err := s.nextErr(); err != nil {
		return false, err
	}
	return s.updated, nil
}

func (s *stubEngine) HandleIntentSucceeded(ctx context.Context, input reconcile.IntentSucceededInput) (bool, error) {
	s.intentCalls++
	s.lastIntent = input
	if err := s.nextErr(); err != nil {
		return false, err
	}
	return s.updated, nil
}

func (s *stubEngine) HandleChargeFailed(ctx context.Context, input reconcile.ChargeFailedInput) (bool, error) {
	s.chargeCalls++
	s.lastCharge = input
	if err := s.nextErr(); err != nil {
		return false, err
	}
	return s.updated, nil
}

func newTestService(t *testing.T, engine *stubEngine) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Engine:          engine,
		MaxStoreRetries: 2,
		RetryBackoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func sessionEvent(t *testing.T, sessionID, intentID string) *stripe.Event {
	t.Helper()
	session := &stripe.CheckoutSession{ID: sessionID}
	if intentID != "" {
		session.PaymentIntent = &stripe.PaymentIntent{ID: intentID}
	}
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_session",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestServiceDispatchesSessionCompleted(t *testing.T) {
	engine := &stubEngine{updated: true}
	svc := newTestService(t, engine)

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, "cs_1", "pi_1")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if engine.sessionCalls != 1 {
		t.Fatalf("expected 1 session call, got %d", engine.sessionCalls)
	}
	if engine.lastSession.SessionID != "cs_1" || engine.lastSession.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected input %+v", engine.lastSession)
	}
	if engine.lastSession.EventID != "evt_session" {
		t.Fatalf("event id not forwarded: %+v", engine.lastSession)
	}
}

func TestServiceDispatchesIntentSucceeded(t *testing.T) {
	engine := &stubEngine{updated: true}
	svc := newTestService(t, engine)

	intent := &stripe.PaymentIntent{
		ID: "pi_2",
		Metadata: map[string]string{
			"orderId": "order-1",
			"userId":  "user-1",
		},
	}
	raw, _ := json.Marshal(intent)
	event := &stripe.Event{
		ID:   "evt_intent",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if engine.intentCalls != 1 {
		t.Fatalf("expected 1 intent call, got %d", engine.intentCalls)
	}
	if engine.lastIntent.OrderID != "order-1" || engine.lastIntent.UserID != "user-1" {
		t.Fatalf("metadata not forwarded: %+v", engine.lastIntent)
	}
}

func TestServiceDispatchesChargeFailed(t *testing.T) {
	engine := &stubEngine{updated: true}
	svc := newTestService(t, engine)

	charge := &stripe.Charge{
		PaymentIntent:  &stripe.PaymentIntent{ID: "pi_3"},
		FailureMessage: "card declined",
	}
	raw, _ := json.Marshal(charge)
	event := &stripe.Event{
		ID:   "evt_charge",
		Type: stripe.EventTypeChargeFailed,
		Data: &stripe.EventData{Raw: raw},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if engine.chargeCalls != 1 {
		t.Fatalf("expected 1 charge call, got %d", engine.chargeCalls)
	}
	if engine.lastCharge.PaymentIntentID != "pi_3" || engine.lastCharge.Reason != "card declined" {
		t.Fatalf("unexpected input %+v", engine.lastCharge)
	}
}

func TestServiceAcknowledgesUnknownEventType(t *testing.T) {
	engine := &stubEngine{}
	svc := newTestService(t, engine)

	event := &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventType("invoice.paid"),
		Data: &stripe.EventData{Raw: []byte("{}")},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types must be acknowledged, got %v", err)
	}
	if engine.sessionCalls+engine.intentCalls+engine.chargeCalls != 0 {
		t.Fatal("unknown event types must not reach the engine")
	}
}

func TestServiceAcknowledgesChargeWithoutIntent(t *testing.T) {
	engine := &stubEngine{}
	svc := newTestService(t, engine)

	raw, _ := json.Marshal(&stripe.Charge{FailureCode: "expired_card"})
	event := &stripe.Event{
		ID:   "evt_charge_bare",
		Type: stripe.EventTypeChargeFailed,
		Data: &stripe.EventData{Raw: raw},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("charge without intent must be acknowledged, got %v", err)
	}
	if engine.chargeCalls != 0 {
		t.Fatal("charge without intent must not reach the engine")
	}
}

func TestServiceRetriesTransientStoreErrors(t *testing.T) {
	engine := &stubEngine{
		updated: true,
		errs: []error{
			pkgerrors.New(pkgerrors.CodeDependency, "store unavailable"),
		},
	}
	svc := newTestService(t, engine)

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, "cs_1", "")); err != nil {
		t.Fatalf("transient error should be retried away, got %v", err)
	}
	if engine.sessionCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", engine.sessionCalls)
	}
}

func TestServiceGivesUpAfterBoundedRetries(t *testing.T) {
	engine := &stubEngine{
		errs: []error{
			pkgerrors.New(pkgerrors.CodeDependency, "store unavailable"),
			pkgerrors.New(pkgerrors.CodeDependency, "store unavailable"),
			pkgerrors.New(pkgerrors.CodeDependency, "store unavailable"),
			pkgerrors.New(pkgerrors.CodeDependency, "store unavailable"),
		},
	}
	svc := newTestService(t, engine)

	err := svc.HandleEvent(context.Background(), sessionEvent(t, "cs_1", ""))
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if engine.sessionCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", engine.sessionCalls)
	}
}

func TestServiceDoesNotRetryTerminalErrors(t *testing.T) {
	engine := &stubEngine{
		errs: []error{
			pkgerrors.New(pkgerrors.CodeValidation, "bad payload"),
		},
	}
	svc := newTestService(t, engine)

	err := svc.HandleEvent(context.Background(), sessionEvent(t, "cs_1", ""))
	if err == nil {
		t.Fatal("expected validation error to surface")
	}
	if engine.sessionCalls != 1 {
		t.Fatalf("terminal errors must not be retried, got %d attempts", engine.sessionCalls)
	}
}

func TestServiceRejectsMalformedPayload(t *testing.T) {
	engine := &stubEngine{}
	svc := newTestService(t, engine)

	event := &stripe.Event{
		ID:   "evt_bad",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte("{not json")},
	}
	err := svc.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
