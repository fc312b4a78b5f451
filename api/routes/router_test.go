package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ordersvc "github.com/freshfoldapp/freshfold-backend/internal/orders"
	"github.com/freshfoldapp/freshfold-backend/internal/payments"
	"github.com/freshfoldapp/freshfold-backend/internal/reconcile"
	stripewebhook "github.com/freshfoldapp/freshfold-backend/internal/webhooks/stripe"
	pkgAuth "github.com/freshfoldapp/freshfold-backend/pkg/auth"
	"github.com/freshfoldapp/freshfold-backend/pkg/config"
	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
	"github.com/freshfoldapp/freshfold-backend/pkg/metrics"
	pkgstripe "github.com/freshfoldapp/freshfold-backend/pkg/stripe"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersRepo struct {
	order *models.Order
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) ordersvc.Repository {
	return s
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByIDWithPayments(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) UpdateWhereStatusIn(ctx context.Context, id uuid.UUID, updates map[string]any, allowed []enums.OrderStatus) (int64, error) {
	if s.order == nil || s.order.ID != id {
		return 0, nil
	}
	matched := false
	for _, status := range allowed {
		if s.order.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return 0, nil
	}
	if status, ok := updates["status"].(enums.OrderStatus); ok {
		s.order.Status = status
	}
	if paymentStatus, ok := updates["payment_status"].(enums.OrderPaymentStatus); ok {
		s.order.PaymentStatus = paymentStatus
	}
	return 1, nil
}

type stubPaymentsRepo struct{}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) payments.Repository {
	return s
}

func (s *stubPaymentsRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	panic("unimplemented")
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	panic("unimplemented")
}

func (s *stubPaymentsRepo) FindActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) MarkPaid(ctx context.Context, id uuid.UUID, intentID *string, paidAt time.Time) (bool, error) {
	panic("unimplemented")
}

func (s *stubPaymentsRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	panic("unimplemented")
}

func (s *stubPaymentsRepo) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	panic("unimplemented")
}

func (s *stubPaymentsRepo) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	panic("unimplemented")
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubSessions struct{}

func (stubSessions) RetrieveSession(ctx context.Context, id string) (*pkgstripe.SessionStatus, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubCheckout struct{}

func (stubCheckout) CreateCheckoutSession(ctx context.Context, input pkgstripe.CheckoutSessionInput) (*pkgstripe.CheckoutSession, error) {
	return &pkgstripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/pay/cs_test"}, nil
}

type stubIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]struct{}
}

func (s *stubIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]struct{})
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = struct{}{}
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ff:idempotency:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Stripe: config.StripeConfig{
			Currency:       "usd",
			OrderPageURL:   "https://app.freshfold.test/orders",
			SuccessPageURL: "https://app.freshfold.test/orders/confirmed",
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, ordersRepo *stubOrdersRepo) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	paymentsRepo := &stubPaymentsRepo{}
	ordersService, err := ordersvc.NewService(ordersRepo)
	if err != nil {
		t.Fatalf("orders service setup: %v", err)
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		OrdersRepo:   ordersRepo,
		PaymentsRepo: paymentsRepo,
		Tx:           stubTxRunner{},
		Checkout:     stubCheckout{},
		Stripe:       cfg.Stripe,
	})
	if err != nil {
		t.Fatalf("payments service setup: %v", err)
	}
	engine, err := reconcile.NewEngine(reconcile.EngineParams{
		OrdersRepo:   ordersRepo,
		PaymentsRepo: paymentsRepo,
		Tx:           stubTxRunner{},
		Sessions:     stubSessions{},
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("engine setup: %v", err)
	}
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Engine:  engine,
		Metrics: metrics.NewWebhookMetrics(prometheus.NewRegistry()),
		Logger:  logg,
	})
	if err != nil {
		t.Fatalf("webhook service setup: %v", err)
	}
	guard, err := stripewebhook.NewIdempotencyGuard(&stubIdempotencyStore{}, time.Minute, "stripe")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}

	return NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            stubPinger{},
		Redis:         stubPinger{},
		StripeClient:  nil,
		OrdersService: ordersService,
		Payments:      paymentsService,
		Engine:        engine,
		WebhookSvc:    webhookSvc,
		WebhookGuard:  guard,
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func pendingOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		ServiceName:   "wash-and-fold",
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentStatusUnpaid,
		TotalPrice:    decimal.RequireFromString("42.50"),
	}
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
}

func TestOrderRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestOrderReadSucceedsWithOwnerJWT(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()
	repo := &stubOrdersRepo{order: pendingOrder(userID)}
	router := newTestRouter(t, cfg, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+repo.order.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, userID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner read got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestOrderReadForbiddenForForeignOrder(t *testing.T) {
	cfg := testConfig()
	repo := &stubOrdersRepo{order: pendingOrder(uuid.New())}
	router := newTestRouter(t, cfg, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+repo.order.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign order got %d", resp.Code)
	}
}

func TestAdminStatusUpdateRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	repo := &stubOrdersRepo{order: pendingOrder(uuid.New())}
	router := newTestRouter(t, cfg, repo)
	target := "/api/admin/v1/orders/" + repo.order.ID.String() + "/status"
	body := `{"status":"processing"}`

	nonAdmin := httptest.NewRequest(http.MethodPatch, target, strings.NewReader(body))
	nonAdmin.Header.Set("Content-Type", "application/json")
	nonAdmin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, nonAdmin)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPatch, target, strings.NewReader(body))
	admin.Header.Set("Content-Type", "application/json")
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin, uuid.New()))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin update got %d (%s)", resp.Code, resp.Body.String())
	}
	if repo.order.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected order advanced to processing, got %s", repo.order.Status)
	}
}

func TestRedirectWithoutParamsBouncesToOrderPage(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubOrdersRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/complete", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302 for missing params got %d", resp.Code)
	}
	location := resp.Header().Get("Location")
	if !strings.Contains(location, "reason=invalid_parameters") {
		t.Fatalf("expected invalid_parameters reason in %q", location)
	}
}
