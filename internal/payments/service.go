package payments

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfoldapp/freshfold-backend/internal/orders"
	"github.com/freshfoldapp/freshfold-backend/pkg/config"
	"github.com/freshfoldapp/freshfold-backend/pkg/db"
	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
	pkgstripe "github.com/freshfoldapp/freshfold-backend/pkg/stripe"
)

const activePaymentIndex = "idx_payments_one_active_per_order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutClient is the slice of the processor client initiation needs.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, input pkgstripe.CheckoutSessionInput) (*pkgstripe.CheckoutSession, error)
}

// Service creates payment records and, for online payments, the hosted
// checkout session the customer is redirected to.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
}

// InitiateInput identifies the order, the settlement method, and the
// caller whose ownership is being checked.
type InitiateInput struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
	UserID  uuid.UUID
}

// InitiateResult reports the created payment. RedirectURL is set only
// for online payments.
type InitiateResult struct {
	PaymentID   uuid.UUID
	OrderID     uuid.UUID
	Method      enums.PaymentMethod
	Status      enums.PaymentStatus
	Amount      string
	RedirectURL string
}

type ServiceParams struct {
	OrdersRepo   orders.Repository
	PaymentsRepo Repository
	Tx           txRunner
	Checkout     CheckoutClient
	Stripe       config.StripeConfig
}

type service struct {
	ordersRepo   orders.Repository
	paymentsRepo Repository
	tx           txRunner
	checkout     CheckoutClient
	stripeCfg    config.StripeConfig
}

// NewService builds a payment initiation service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.PaymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout client required")
	}
	return &service{
		ordersRepo:   params.OrdersRepo,
		paymentsRepo: params.PaymentsRepo,
		tx:           params.Tx,
		checkout:     params.Checkout,
		stripeCfg:    params.Stripe,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be COD or ONLINE")
	}

	order, err := s.ordersRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").
			WithDetails(map[string]any{"order_status": order.Status})
	}

	existing, err := s.paymentsRepo.FindActiveByOrderID(ctx, input.OrderID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payment")
	}
	if existing != nil {
		return nil, duplicatePaymentError(existing)
	}

	switch input.Method {
	case enums.PaymentMethodCOD:
		return s.initiateCOD(ctx, order)
	default:
		return s.initiateOnline(ctx, order)
	}
}

func (s *service) initiateCOD(ctx context.Context, order *models.Order) (*InitiateResult, error) {
	payment := &models.Payment{
		OrderID: order.ID,
		Method:  enums.PaymentMethodCOD,
		Status:  enums.PaymentStatusPending,
		Amount:  order.TotalPrice,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.paymentsRepo.WithTx(tx)
		if _, err := repo.Create(ctx, payment); err != nil {
			return wrapCreateError(err)
		}
		return repo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID: payment.ID,
			Type:      enums.PaymentEventInitiated,
			Source:    enums.PaymentEventSourceSystem,
		})
	})
	if err != nil {
		return nil, err
	}

	return newInitiateResult(payment, ""), nil
}

func (s *service) initiateOnline(ctx context.Context, order *models.Order) (*InitiateResult, error) {
	session, err := s.checkout.CreateCheckoutSession(ctx, pkgstripe.CheckoutSessionInput{
		AmountMinorUnits: MinorUnits(order.TotalPrice),
		Currency:         s.stripeCfg.Currency,
		ProductName:      order.ServiceName,
		SuccessURL:       buildRedirectURL(s.stripeCfg.SuccessURL, order.ID),
		CancelURL:        buildRedirectURL(s.stripeCfg.CancelURL, order.ID),
		Metadata: map[string]string{
			"orderId": order.ID.String(),
			"userId":  order.UserID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	sessionID := session.ID
	payment := &models.Payment{
		OrderID:         order.ID,
		Method:          enums.PaymentMethodOnline,
		Status:          enums.PaymentStatusPending,
		Amount:          order.TotalPrice,
		StripeSessionID: &sessionID,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.paymentsRepo.WithTx(tx)
		if _, err := repo.Create(ctx, payment); err != nil {
			return wrapCreateError(err)
		}
		return repo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:       payment.ID,
			Type:            enums.PaymentEventInitiated,
			Source:          enums.PaymentEventSourceSystem,
			StripeSessionID: &sessionID,
		})
	})
	if err != nil {
		return nil, err
	}

	return newInitiateResult(payment, session.URL), nil
}

func duplicatePaymentError(existing *models.Payment) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payment already exists for order").
		WithDetails(map[string]any{
			"payment_id":     existing.ID,
			"payment_status": existing.Status,
		})
}

func wrapCreateError(err error) error {
	if db.IsUniqueViolation(err, activePaymentIndex) {
		// Lost the race against a concurrent initiation; surface the
		// same shape as the pre-check would have.
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already exists for order")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
}

func newInitiateResult(payment *models.Payment, redirectURL string) *InitiateResult {
	return &InitiateResult{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		Method:      payment.Method,
		Status:      payment.Status,
		Amount:      payment.Amount.StringFixed(2),
		RedirectURL: redirectURL,
	}
}

func buildRedirectURL(base string, orderID uuid.UUID) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("order_id", orderID.String())
	u.RawQuery = q.Encode()
	if u.RawQuery != "" {
		// Stripe substitutes the real session id when it redirects the
		// browser back; it must survive query encoding unescaped.
		u.RawQuery += "&session_id={CHECKOUT_SESSION_ID}"
	} else {
		u.RawQuery = "session_id={CHECKOUT_SESSION_ID}"
	}
	return u.String()
}
