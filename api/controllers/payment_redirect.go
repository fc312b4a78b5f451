package controllers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/freshfoldapp/freshfold-backend/internal/reconcile"
	pkgauth "github.com/freshfoldapp/freshfold-backend/pkg/auth"
	"github.com/freshfoldapp/freshfold-backend/pkg/config"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	"github.com/freshfoldapp/freshfold-backend/pkg/logger"
)

const sessionCookieName = "ff_session"

type checkoutCompleter interface {
	CompleteCheckout(ctx context.Context, sessionID string, orderID uuid.UUID) (*reconcile.CompletionResult, error)
}

// PaymentRedirect handles the browser's return from hosted checkout.
// The browser always gets a redirect, never a JSON error: failures land
// on the order page with a machine-readable reason, success lands on
// the confirmation page with a short-lived session cookie so the page
// can load the order without a fresh login.
func PaymentRedirect(engine checkoutCompleter, jwtCfg config.JWTConfig, stripeCfg config.StripeConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		query := r.URL.Query()
		sessionID := query.Get("session_id")
		rawOrderID := query.Get("order_id")

		if engine == nil || sessionID == "" || rawOrderID == "" {
			redirectWithReason(w, r, stripeCfg.OrderPageURL, rawOrderID, reconcile.RedirectReasonInvalidParameters)
			return
		}
		orderID, err := uuid.Parse(rawOrderID)
		if err != nil {
			redirectWithReason(w, r, stripeCfg.OrderPageURL, rawOrderID, reconcile.RedirectReasonInvalidParameters)
			return
		}

		result, err := engine.CompleteCheckout(ctx, sessionID, orderID)
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithOrderID(ctx, rawOrderID), "checkout completion failed", err)
			}
			redirectWithReason(w, r, stripeCfg.OrderPageURL, rawOrderID, reconcile.RedirectReason(err))
			return
		}

		token, err := pkgauth.MintAccessTokenTTL(jwtCfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
			UserID: result.UserID,
			Role:   enums.UserRoleCustomer,
		}, stripeCfg.SessionCookieAge)
		if err != nil {
			// The payment settled; a cookie failure must not send the
			// user to an error page.
			if logg != nil {
				logg.Error(ctx, "session cookie mint failed", err)
			}
		} else {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(stripeCfg.SessionCookieAge.Seconds()),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		http.Redirect(w, r, appendQuery(stripeCfg.SuccessPageURL, url.Values{
			"order_id": {result.OrderID.String()},
		}), http.StatusFound)
	}
}

func redirectWithReason(w http.ResponseWriter, r *http.Request, base, orderID, reason string) {
	values := url.Values{"reason": {reason}}
	if orderID != "" {
		values.Set("order_id", orderID)
	}
	http.Redirect(w, r, appendQuery(base, values), http.StatusFound)
}

func appendQuery(base string, values url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for key, vals := range values {
		for _, v := range vals {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
