package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

func settleFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	now := time.Now().UTC()
	f.payments.payment.Status = enums.PaymentStatusPaid
	f.payments.payment.PaidAt = &now
	f.orders.order.Status = enums.OrderStatusProcessing
	f.orders.order.PaymentStatus = enums.OrderPaymentStatusPaid
	return f
}

func TestRefundPaymentSettledPayment(t *testing.T) {
	f := settleFixture(t)

	payment, err := f.engine.RefundPayment(context.Background(), f.payments.payment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", payment.Status)
	}
	if f.payments.payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected stored payment REFUNDED, got %s", f.payments.payment.Status)
	}
	if f.orders.order.PaymentStatus != enums.OrderPaymentStatusRefunded {
		t.Fatalf("expected order payment_status refunded, got %s", f.orders.order.PaymentStatus)
	}
	if f.orders.order.Status != enums.OrderStatusProcessing {
		t.Fatalf("refund must not change order status, got %s", f.orders.order.Status)
	}
	if len(f.payments.events) != 1 || f.payments.events[0].Type != enums.PaymentEventRefunded {
		t.Fatalf("expected one refunded event, got %v", f.payments.events)
	}
	if f.payments.events[0].Source != enums.PaymentEventSourceAdmin {
		t.Fatalf("expected admin source, got %s", f.payments.events[0].Source)
	}
}

func TestRefundPaymentReplayIsNoOp(t *testing.T) {
	f := settleFixture(t)

	if _, err := f.engine.RefundPayment(context.Background(), f.payments.payment.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payment, err := f.engine.RefundPayment(context.Background(), f.payments.payment.ID)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", payment.Status)
	}
	if len(f.payments.events) != 1 {
		t.Fatalf("replay must not append events, got %d", len(f.payments.events))
	}
}

func TestRefundPaymentRejectsUnsettled(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RefundPayment(context.Background(), f.payments.payment.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if f.payments.payment.Status != enums.PaymentStatusPending {
		t.Fatalf("payment must stay PENDING, got %s", f.payments.payment.Status)
	}
}

func TestRefundPaymentUnknownPayment(t *testing.T) {
	f := settleFixture(t)

	_, err := f.engine.RefundPayment(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRefundPaymentLeavesCancelledOrderRow(t *testing.T) {
	f := settleFixture(t)
	f.orders.order.Status = enums.OrderStatusCancelled

	payment, err := f.engine.RefundPayment(context.Background(), f.payments.payment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", payment.Status)
	}
	if f.orders.order.PaymentStatus != enums.OrderPaymentStatusPaid {
		t.Fatalf("cancelled order row must stay untouched, got %s", f.orders.order.PaymentStatus)
	}
}
