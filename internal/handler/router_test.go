package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/syncer"
	"github.com/prometheus/client_golang/prometheus"
)

const testIntakeToken = "intake-token"

func newTestRouter(t *testing.T, svc *mockSyncService, checks map[string]HealthCheckFunc) http.Handler {
	t.Helper()
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(3), logger)
	t.Cleanup(limiter.Stop)

	return NewRouter(&RouterDeps{
		IntakeToken:         testIntakeToken,
		RecoveryLimiter:     limiter,
		Logger:              logger,
		HealthChecks:        checks,
		MetricsGatherer:     prometheus.NewRegistry(),
		Service:             svc,
		RecoveryRedirectURL: "https://shop.example.com/cart/",
	})
}

func intakeRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testIntakeToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- 運用エンドポイント ---

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{}, map[string]HealthCheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Checks["redis"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{}, map[string]HealthCheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body healthResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Checks["redis"] != "unavailable" || body.Checks["postgres"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// --- 取り込みAPI ---

func TestRouter_IntakeRequiresToken(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{
		syncOrderFn: func(context.Context, int64) error {
			t.Fatal("service should not be called")
			return nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRouter_UpdateCart(t *testing.T) {
	var gotVisitor model.Visitor
	var gotCart *model.Cart
	var gotAccepts *bool
	svc := &mockSyncService{
		cartUpdatedFn: func(_ context.Context, v model.Visitor, c *model.Cart) (bool, error) {
			gotVisitor, gotCart = v, c
			return true, nil
		},
		acceptsFn: func(_ context.Context, _ model.Visitor, accepts bool) error {
			gotAccepts = &accepts
			return nil
		},
	}
	router := newTestRouter(t, svc, nil)

	body := `{"items":[{"key":"a1","product_id":10,"quantity":2,"line_subtotal":"20.00","line_total":"20.00","line_tax":"0"}],"total":"20.00","currency":"USD","accepts_marketing":true}`
	req := intakeRequest(http.MethodPost, "/api/carts", body)
	req.Header.Set(middleware.SessionIDHeader, "sess-1")
	req.Header.Set("X-Real-IP", "203.0.113.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	var resp cartResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Changed {
		t.Error("changed should be true")
	}
	if gotVisitor.SessionID != "sess-1" || gotVisitor.IP != "203.0.113.1" {
		t.Errorf("visitor = %+v", gotVisitor)
	}
	if gotCart == nil || len(gotCart.Items) != 1 || gotCart.Items[0].Quantity != 2 || gotCart.Total.String() != "20" {
		t.Errorf("cart = %+v", gotCart)
	}
	if gotAccepts == nil || !*gotAccepts {
		t.Error("accepts_marketing should be forwarded")
	}
}

func TestRouter_UpdateCart_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"訪問者不明", "", `{"items":[]}`, nil, http.StatusBadRequest, model.ErrCodeMissingVisitor},
		{"不正なJSON", "sess-1", `{`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"サービスエラー", "sess-1", `{"items":[]}`, errors.New("redis down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSyncService{
				cartUpdatedFn: func(context.Context, model.Visitor, *model.Cart) (bool, error) {
					return false, tt.serviceErr
				},
			}
			router := newTestRouter(t, svc, nil)

			req := intakeRequest(http.MethodPost, "/api/carts", tt.body)
			if tt.sessionID != "" {
				req.Header.Set(middleware.SessionIDHeader, tt.sessionID)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_Checkout(t *testing.T) {
	var gotID int64
	var gotCart *model.Cart
	var gotVisitor model.Visitor
	svc := &mockSyncService{
		checkoutFn: func(_ context.Context, v model.Visitor, orderID int64, c *model.Cart) error {
			gotVisitor, gotID, gotCart = v, orderID, c
			return nil
		},
	}
	router := newTestRouter(t, svc, nil)

	req := intakeRequest(http.MethodPost, "/api/orders/123/checkout", `{"cart":{"items":[{"key":"k","product_id":1,"quantity":1}],"total":"5"}}`)
	req.Header.Set(middleware.CustomerIDHeader, "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body = %s", w.Code, w.Body.String())
	}
	if gotID != 123 || gotVisitor.CustomerID != 7 {
		t.Errorf("orderID = %d, visitor = %+v", gotID, gotVisitor)
	}
	if gotCart == nil || len(gotCart.Items) != 1 {
		t.Errorf("cart = %+v", gotCart)
	}
}

func TestRouter_Checkout_EmptyBody(t *testing.T) {
	called := false
	svc := &mockSyncService{
		checkoutFn: func(_ context.Context, _ model.Visitor, _ int64, c *model.Cart) error {
			called = true
			if c != nil {
				t.Errorf("cart = %+v, want nil", c)
			}
			return nil
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/5/checkout", ""))

	if w.Code != http.StatusNoContent || !called {
		t.Errorf("status = %d, called = %v", w.Code, called)
	}
}

func TestRouter_InvalidOrderID(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{}, nil)

	for _, path := range []string{"/api/orders/abc/sync", "/api/orders/0/payment", "/api/orders/-1/recovered"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, intakeRequest(http.MethodPost, path, ""))

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
			continue
		}
		if body := decodeError(t, w); body.Code != model.ErrCodeInvalidOrderID {
			t.Errorf("%s: code = %q", path, body.Code)
		}
	}
}

func TestRouter_ChangeStatus(t *testing.T) {
	var gotOld, gotNew model.OrderStatus
	svc := &mockSyncService{
		statusChangedFn: func(_ context.Context, orderID int64, oldStatus, newStatus model.OrderStatus) error {
			gotOld, gotNew = oldStatus, newStatus
			return nil
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/9/status", `{"old_status":"pending","new_status":"processing"}`))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotOld != model.OrderStatusPending || gotNew != model.OrderStatusProcessing {
		t.Errorf("old/new = %s/%s", gotOld, gotNew)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/9/status", `{"old_status":"pending"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing new_status: status = %d, want 400", w.Code)
	}
}

func TestRouter_OrderActions(t *testing.T) {
	calls := map[string]int64{}
	svc := &mockSyncService{
		paymentFn: func(_ context.Context, _ model.Visitor, id int64) error {
			calls["payment"] = id
			return nil
		},
		recoveredFn: func(_ context.Context, id int64) error {
			calls["recovered"] = id
			return nil
		},
		syncOrderFn: func(_ context.Context, id int64) error {
			calls["sync"] = id
			return nil
		},
	}
	router := newTestRouter(t, svc, nil)

	for _, action := range []string{"payment", "recovered", "sync"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, intakeRequest(http.MethodPost, fmt.Sprintf("/api/orders/42/%s", action), ""))
		if w.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", action, w.Code)
		}
		if calls[action] != 42 {
			t.Errorf("%s: orderID = %d, want 42", action, calls[action])
		}
	}
}

func TestRouter_OrderAction_ServiceError(t *testing.T) {
	svc := &mockSyncService{
		syncOrderFn: func(context.Context, int64) error {
			return fmt.Errorf("注文の取得に失敗しました: %w", errors.New("db down"))
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/1/sync", ""))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_Webhook(t *testing.T) {
	svc := &mockSyncService{
		prepareWebhookFn: func(_ context.Context, id int64) (*syncer.WebhookRequest, error) {
			if id == 404 {
				return nil, nil
			}
			return &syncer.WebhookRequest{
				Headers: map[string]string{"app-id": "app", "X-Cart-Token": "tok"},
				Body:    `{"data":"blob"}`,
			}, nil
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/1/webhook", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got syncer.WebhookRequest
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Headers["X-Cart-Token"] != "tok" || got.Body != `{"data":"blob"}` {
		t.Errorf("webhook = %+v", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, intakeRequest(http.MethodPost, "/api/orders/404/webhook", ""))
	if w.Code != http.StatusNoContent {
		t.Errorf("nothing to send: status = %d, want 204", w.Code)
	}
}

// --- リカバリーリンク ---

func TestRouter_RecoverRedirects(t *testing.T) {
	var gotToken, gotHash, gotSession string
	svc := &mockSyncService{
		recoverCartFn: func(_ context.Context, v model.Visitor, token, hash string) (string, error) {
			gotToken, gotHash, gotSession = token, hash, v.SessionID
			return "cart-token", nil
		},
	}
	router := newTestRouter(t, svc, nil)

	for _, path := range []string{"/wc-api/retainful?token=abc&hash=def", "/?wc-api=retainful&token=abc&hash=def"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(middleware.SessionIDHeader, "sess-9")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", path, w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "https://shop.example.com/cart/" {
			t.Errorf("%s: Location = %q", path, loc)
		}
		if gotToken != "abc" || gotHash != "def" || gotSession != "sess-9" {
			t.Errorf("%s: token/hash/session = %q/%q/%q", path, gotToken, gotHash, gotSession)
		}
		if w.Header().Get("Referrer-Policy") != "no-referrer" {
			t.Errorf("%s: Referrer-Policy should be no-referrer", path)
		}
	}
}

func TestRouter_RecoverTampered(t *testing.T) {
	svc := &mockSyncService{
		recoverCartFn: func(context.Context, model.Visitor, string, string) (string, error) {
			return "", fmt.Errorf("%w: hash mismatch", model.ErrTamperedLink)
		},
	}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wc-api/retainful?token=a&hash=b", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeTamperedLink {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRouter_RootWithoutRecoveryParam(t *testing.T) {
	router := newTestRouter(t, &mockSyncService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_RecoverRateLimited(t *testing.T) {
	svc := &mockSyncService{
		recoverCartFn: func(context.Context, model.Visitor, string, string) (string, error) {
			return "cart-token", nil
		},
	}
	router := newTestRouter(t, svc, nil)

	// PerMinuteConfig(3): バースト3を超えると429
	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/wc-api/retainful?token=a&hash=b", nil)
		req.RemoteAddr = "198.51.100.20:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("4th request status = %d, want 429", last)
	}
}
