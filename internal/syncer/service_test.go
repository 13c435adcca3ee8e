package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/order"
	"github.com/hitoshi/cartsync/internal/recovery"
	"github.com/hitoshi/cartsync/internal/security"
	"github.com/shopspring/decimal"
)

const (
	testSecret = "test-secret"
	testAppID  = "app-123"
)

type fixture struct {
	svc       *Service
	orders    *memoryOrderRepo
	sessions  *memoryKV[string]
	customers *memoryKV[int64]
	transport *fakeTransport
	scheduler *fakeScheduler
	links     *recovery.Builder
	logs      *bytes.Buffer
}

func defaultConfig() Config {
	return Config{
		AppID:             testAppID,
		PluginVersion:     "2.6.0",
		OrderSyncEnabled:  true,
		InstantOrderSync:  true,
		ScheduleCartSync:  true,
		RecoverHeldOrders: true,
	}
}

func newFixture(t *testing.T, cfg Config, hooks Hooks, orders ...*model.Order) *fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := &fixture{
		orders:    newMemoryOrderRepo(orders...),
		sessions:  newMemoryKV[string](),
		customers: newMemoryKV[int64](),
		transport: &fakeTransport{},
		scheduler: &fakeScheduler{},
		links:     recovery.NewBuilder("https://shop.example.com", testSecret, true),
		logs:      logs,
	}
	tracker := cart.NewTracker(f.sessions, f.customers, 2, logger)
	mapper := order.NewMapper(f.orders, security.NewTextSanitizer(), f.links, order.MapperConfig{
		PriceDecimals:     2,
		BaseCurrency:      "USD",
		RecoverHeldOrders: cfg.RecoverHeldOrders,
	}, logger)

	f.svc = NewService(Deps{
		Orders:    f.orders,
		Customers: f.customers,
		Tracker:   tracker,
		Mapper:    mapper,
		Codec:     security.NewCodec(testSecret),
		Transport: f.transport,
		Scheduler: f.scheduler,
		Links:     f.links,
	}, cfg, hooks, logger)
	f.svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f
}

func newOrder(id int64, status model.OrderStatus, customerID int64) *model.Order {
	return &model.Order{
		ID:           id,
		Number:       "100",
		CustomerID:   customerID,
		Status:       status,
		Currency:     "USD",
		Total:        decimal.RequireFromString("12.50"),
		BillingEmail: "buyer@example.com",
		Items: []model.OrderItem{
			{ProductID: 1, Name: "Mug", Quantity: 1, UnitPrice: decimal.RequireFromString("12.50"), LineTotal: decimal.RequireFromString("12.50")},
		},
		CreatedAt: time.Unix(1699990000, 0),
	}
}

func sampleCart() *model.Cart {
	return &model.Cart{
		Items: []model.CartItem{
			{Key: "a1", ProductID: 1, Name: "Mug", Quantity: 1, LineSubtotal: decimal.RequireFromString("12.50"), LineTotal: decimal.RequireFromString("12.50")},
		},
		Total: decimal.RequireFromString("12.50"),
	}
}

// decryptCall は送信された暗号化データを復号してJSONとして返す。
func decryptCall(t *testing.T, call transportCall) map[string]any {
	t.Helper()
	plain, err := security.Decrypt(call.blob, testSecret)
	if err != nil {
		t.Fatalf("送信データの復号に失敗: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(plain, &out); err != nil {
		t.Fatalf("送信データのパースに失敗: %v", err)
	}
	return out
}

func guest() model.Visitor {
	return model.Visitor{SessionID: "sess-1", IP: "203.0.113.5", UserAgent: "UA/1.0", AcceptLanguage: "ja"}
}

// --- SyncOrder ---

func TestService_SyncOrder_NoopWhenDisabledOrEmpty(t *testing.T) {
	cfg := defaultConfig()
	cfg.OrderSyncEnabled = false
	f := newFixture(t, cfg, Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	_ = f.orders.SetMeta(context.Background(), 100, map[string]string{model.MetaCartToken: "tok"})

	if err := f.svc.SyncOrder(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0 when sync disabled", f.transport.count())
	}

	f = newFixture(t, defaultConfig(), Hooks{})
	if err := f.svc.SyncOrder(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0 for empty order id", f.transport.count())
	}
}

func TestService_SyncOrder_SkipsWithoutTokenOrOrder(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))

	if err := f.svc.SyncOrder(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.SyncOrder(context.Background(), 999); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0", f.transport.count())
	}
}

func TestService_SyncOrder_SendsEncryptedPayload(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	_ = f.orders.SetMeta(context.Background(), 100, map[string]string{
		model.MetaCartToken: "tok-100",
		model.MetaUserIP:    "198.51.100.7",
	})

	if err := f.svc.SyncOrder(context.Background(), 100); err != nil {
		t.Fatalf("SyncOrder returned error: %v", err)
	}
	if f.transport.count() != 1 {
		t.Fatalf("transport calls = %d, want 1", f.transport.count())
	}

	call := f.transport.calls[0]
	if call.appID != testAppID {
		t.Errorf("appID = %q", call.appID)
	}
	wantHeaders := map[string]string{
		"X-Cart-Token":         "tok-100",
		"Cart-Token":           "tok-100",
		"X-Client-Referrer-IP": "198.51.100.7",
		"X-Retainful-Version":  "2.6.0",
	}
	for k, want := range wantHeaders {
		if call.headers[k] != want {
			t.Errorf("header %s = %q, want %q", k, call.headers[k], want)
		}
	}

	payload := decryptCall(t, call)
	if payload["cart_token"] != "tok-100" || payload["status"] != "pending" {
		t.Errorf("payload = %v", payload)
	}
	if payload["cancelled_at"] != nil {
		t.Errorf("cancelled_at = %v, want null", payload["cancelled_at"])
	}
}

func TestService_SyncOrder_TokenFilter(t *testing.T) {
	hooks := Hooks{TokenFilter: func(token string, orderID int64) string { return "override-" + token }}
	f := newFixture(t, defaultConfig(), hooks, newOrder(100, model.OrderStatusPending, 0))
	_ = f.orders.SetMeta(context.Background(), 100, map[string]string{model.MetaCartToken: "tok"})

	if err := f.svc.SyncOrder(context.Background(), 100); err != nil {
		t.Fatalf("SyncOrder returned error: %v", err)
	}
	if got := f.transport.calls[0].headers["X-Cart-Token"]; got != "override-tok" {
		t.Errorf("X-Cart-Token = %q", got)
	}
	if payload := decryptCall(t, f.transport.calls[0]); payload["cart_token"] != "override-tok" {
		t.Errorf("cart_token = %v", payload["cart_token"])
	}
}

func TestService_SyncOrder_CancelledStampsOnce(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusCancelled, 7))
	ctx := context.Background()
	_ = f.orders.SetMeta(ctx, 100, map[string]string{model.MetaCartToken: "tok"})
	_ = f.customers.Set(ctx, 7, map[string]string{model.MetaCartToken: "tok", model.MetaPendingRecovery: "1"})

	if err := f.svc.SyncOrder(ctx, 100); err != nil {
		t.Fatalf("SyncOrder returned error: %v", err)
	}
	stamped, _ := f.orders.metaValue(100, model.MetaOrderCancelledAt)
	if stamped != "1700000000" {
		t.Errorf("cancelled_at meta = %q", stamped)
	}
	if f.customers.get(7, model.MetaCartToken) != "" {
		t.Error("customer temp data should be removed on cancellation")
	}

	f.svc.now = func() time.Time { return time.Unix(1800000000, 0) }
	if err := f.svc.SyncOrder(ctx, 100); err != nil {
		t.Fatalf("SyncOrder returned error: %v", err)
	}
	if again, _ := f.orders.metaValue(100, model.MetaOrderCancelledAt); again != stamped {
		t.Errorf("cancelled_at changed from %q to %q", stamped, again)
	}

	payload := decryptCall(t, f.transport.calls[1])
	if payload["cancelled_at"] != "2023-11-14T22:13:20Z" {
		t.Errorf("cancelled_at = %v", payload["cancelled_at"])
	}
}

// 送信先に到達できなくてもエラーを返さないことを検証
func TestService_SyncOrder_TransportErrorIsSwallowed(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	f.transport.err = errors.New("connection refused")
	_ = f.orders.SetMeta(context.Background(), 100, map[string]string{model.MetaCartToken: "tok"})

	if err := f.svc.SyncOrder(context.Background(), 100); err != nil {
		t.Fatalf("transport error must not propagate: %v", err)
	}
	if !strings.Contains(f.logs.String(), "同期APIへの送信に失敗しました") {
		t.Error("送信失敗がログに記録されていない")
	}
}

func TestService_HandleJob(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	_ = f.orders.SetMeta(context.Background(), 100, map[string]string{model.MetaCartToken: "tok"})

	job := &model.ScheduledJob{ID: "j1", Hook: model.HookSyncAbandonedCartOrder, Args: map[string]string{model.JobArgOrderID: "100"}}
	if err := f.svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob returned error: %v", err)
	}
	if f.transport.count() != 1 {
		t.Errorf("transport calls = %d, want 1", f.transport.count())
	}

	if err := f.svc.HandleJob(context.Background(), &model.ScheduledJob{ID: "j2", Args: map[string]string{}}); err == nil {
		t.Error("expected error for job without order id")
	}
}

// --- OrderUpdated / ScheduleCartSync ---

func TestService_OrderUpdated_SchedulesWhenNotInstant(t *testing.T) {
	cfg := defaultConfig()
	cfg.InstantOrderSync = false
	f := newFixture(t, cfg, Hooks{}, newOrder(100, model.OrderStatusPending, 0))

	if err := f.svc.OrderUpdated(context.Background(), 100); err != nil {
		t.Fatalf("OrderUpdated returned error: %v", err)
	}
	if len(f.scheduler.orderIDs) != 1 || f.scheduler.orderIDs[0] != 100 {
		t.Errorf("scheduled = %v, want [100]", f.scheduler.orderIDs)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0", f.transport.count())
	}
}

func TestService_ScheduleCartSync_HookVeto(t *testing.T) {
	hooks := Hooks{ScheduleCartSync: func(int64) bool { return false }}
	f := newFixture(t, defaultConfig(), hooks)

	if err := f.svc.ScheduleCartSync(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.orderIDs) != 0 {
		t.Errorf("scheduled = %v, want none", f.scheduler.orderIDs)
	}
}

// --- CheckoutOrderProcessed / PurchaseComplete ---

func TestService_CheckoutOrderProcessed_GuestInstantSync(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	ctx := context.Background()
	v := guest()
	_ = f.sessions.Set(ctx, v.SessionID, map[string]string{model.SessionAcceptsMarketing: "1"})

	if err := f.svc.CheckoutOrderProcessed(ctx, v, 100, sampleCart()); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}

	sessionToken := f.sessions.get(v.SessionID, model.SessionCartToken)
	if len(sessionToken) != 32 {
		t.Fatalf("session token = %q, want 32 hex chars", sessionToken)
	}

	want := map[string]string{
		model.MetaCartToken:        sessionToken,
		model.MetaCartHash:         cart.Fingerprint(sampleCart(), 2),
		model.MetaUserIP:           "203.0.113.5",
		model.MetaAcceptsMarketing: "1",
		model.MetaPendingRecovery:  "1",
		model.MetaUserAgent:        "UA/1.0",
		model.MetaAcceptLanguage:   "ja",
	}
	for k, w := range want {
		if got, _ := f.orders.metaValue(100, k); got != w {
			t.Errorf("meta %s = %q, want %q", k, got, w)
		}
	}
	if started, _ := f.orders.metaValue(100, model.MetaTrackingStartedAt); started == "" {
		t.Error("tracking started meta should be set")
	}

	if f.transport.count() != 1 {
		t.Fatalf("transport calls = %d, want 1", f.transport.count())
	}
	payload := decryptCall(t, f.transport.calls[0])
	if payload["pending_recovery"] != true || payload["buyer_accepts_marketing"] != true {
		t.Errorf("payload flags = %v / %v", payload["pending_recovery"], payload["buyer_accepts_marketing"])
	}
	if link, _ := payload["recovery_url"].(string); !strings.HasPrefix(link, "https://shop.example.com/wc-api/retainful?") {
		t.Errorf("recovery_url = %q", link)
	}
}

func TestService_CheckoutOrderProcessed_KeepsExistingToken(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	ctx := context.Background()
	v := guest()
	_ = f.sessions.Set(ctx, v.SessionID, map[string]string{model.SessionCartToken: "existing-token"})

	if err := f.svc.CheckoutOrderProcessed(ctx, v, 100, nil); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}
	if got, _ := f.orders.metaValue(100, model.MetaCartToken); got != "existing-token" {
		t.Errorf("order token = %q, want existing-token", got)
	}
}

func TestService_CheckoutOrderProcessed_DeferredSync(t *testing.T) {
	cfg := defaultConfig()
	cfg.InstantOrderSync = false
	f := newFixture(t, cfg, Hooks{}, newOrder(100, model.OrderStatusPending, 0))

	if err := f.svc.CheckoutOrderProcessed(context.Background(), guest(), 100, sampleCart()); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0", f.transport.count())
	}
	if len(f.scheduler.orderIDs) != 1 {
		t.Errorf("scheduled = %v, want one job", f.scheduler.orderIDs)
	}
}

// 訪問者を識別できない場合は注文に直接トークンを発行することを検証
func TestService_CheckoutOrderProcessed_AnonymousVisitor(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))

	if err := f.svc.CheckoutOrderProcessed(context.Background(), model.Visitor{}, 100, nil); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}
	token, _ := f.orders.metaValue(100, model.MetaCartToken)
	if len(token) != 32 {
		t.Errorf("order token = %q, want generated token", token)
	}
	if v, _ := f.orders.metaValue(100, model.MetaPendingRecovery); v != "1" {
		t.Errorf("pending recovery = %q, want 1", v)
	}
	if f.transport.count() != 1 {
		t.Errorf("transport calls = %d, want 1", f.transport.count())
	}
}

func TestService_CheckoutOrderProcessed_AnonymousVisitorKeepsOrderToken(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	ctx := context.Background()
	_ = f.orders.SetMeta(ctx, 100, map[string]string{model.MetaCartToken: "existing-token"})

	if err := f.svc.CheckoutOrderProcessed(ctx, model.Visitor{}, 100, nil); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}
	if token, _ := f.orders.metaValue(100, model.MetaCartToken); token != "existing-token" {
		t.Errorf("order token = %q, want existing-token", token)
	}
	if v, _ := f.orders.metaValue(100, model.MetaPendingRecovery); v != "1" {
		t.Errorf("pending recovery = %q, want 1", v)
	}
	if f.transport.count() != 1 {
		t.Fatalf("transport calls = %d, want 1", f.transport.count())
	}
	payload := decryptCall(t, f.transport.calls[0])
	if payload["cart_token"] != "existing-token" {
		t.Errorf("cart_token = %v, want existing-token", payload["cart_token"])
	}
}

func TestService_CheckoutOrderProcessed_AnonymousVisitorUnknownOrder(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})

	if err := f.svc.CheckoutOrderProcessed(context.Background(), model.Visitor{}, 404, nil); err != nil {
		t.Fatalf("CheckoutOrderProcessed returned error: %v", err)
	}
	if _, ok := f.orders.metaValue(404, model.MetaCartToken); ok {
		t.Error("token should not be written for unknown order")
	}
}

func TestService_PurchaseComplete_WithoutTokenIsNoop(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))

	if err := f.svc.PurchaseComplete(context.Background(), guest(), 100, sampleCart()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.orders.metaValue(100, model.MetaPendingRecovery); ok {
		t.Error("pending recovery should not be set without cart token")
	}
}

// --- リカバリー ---

func TestService_MarkOrderAsRecovered_Idempotent(t *testing.T) {
	var hookCalls int
	hooks := Hooks{OnRecovered: func(context.Context, *model.Order) { hookCalls++ }}
	f := newFixture(t, defaultConfig(), hooks, newOrder(100, model.OrderStatusProcessing, 0))
	ctx := context.Background()
	_ = f.svc.MarkOrderAsPendingRecovery(ctx, 100)

	for i := 0; i < 2; i++ {
		if err := f.svc.MarkOrderAsRecovered(ctx, 100); err != nil {
			t.Fatalf("MarkOrderAsRecovered returned error: %v", err)
		}
	}

	if len(f.orders.notes[100]) != 1 || f.orders.notes[100][0] != RecoveredNote {
		t.Errorf("notes = %v, want exactly one recovered note", f.orders.notes[100])
	}
	if hookCalls != 1 {
		t.Errorf("OnRecovered calls = %d, want 1", hookCalls)
	}
	if recovered, _ := f.svc.IsOrderRecovered(ctx, 100); !recovered {
		t.Error("order should be recovered")
	}
	if pending, _ := f.svc.IsOrderPendingRecovery(ctx, 100); pending {
		t.Error("pending recovery flag should be cleared")
	}
}

func TestService_MarkOrderAsRecovered_MissingOrder(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})

	if err := f.svc.MarkOrderAsRecovered(context.Background(), 404); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recovered, _ := f.svc.IsOrderRecovered(context.Background(), 404); recovered {
		t.Error("missing order cannot be recovered")
	}
	if pending, _ := f.svc.IsOrderPendingRecovery(context.Background(), 404); pending {
		t.Error("missing order cannot be pending")
	}
}

func TestService_RecoverCart(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})
	ctx := context.Background()
	v := guest()

	link, err := f.links.BuildLink("abandoned-token")
	if err != nil {
		t.Fatalf("BuildLink returned error: %v", err)
	}
	u, _ := url.Parse(link)

	got, err := f.svc.RecoverCart(ctx, v, u.Query().Get("token"), u.Query().Get("hash"))
	if err != nil {
		t.Fatalf("RecoverCart returned error: %v", err)
	}
	if got != "abandoned-token" {
		t.Errorf("cart token = %q", got)
	}
	if f.sessions.get(v.SessionID, model.SessionRecoveredCartToken) != "abandoned-token" {
		t.Error("recovered cart token should be stored in session")
	}
	if f.sessions.get(v.SessionID, model.SessionRecoveredBy) != model.RecoveredByValue {
		t.Error("recovered_by should be stored in session")
	}

	if _, err := f.svc.RecoverCart(ctx, v, u.Query().Get("token"), "deadbeef"); !errors.Is(err, model.ErrTamperedLink) {
		t.Errorf("err = %v, want ErrTamperedLink", err)
	}
}

// --- ステータス変更・支払い ---

func TestService_OrderStatusChanged_PlacedReleasesCustomerCart(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 7))
	ctx := context.Background()
	_ = f.customers.Set(ctx, 7, map[string]string{
		model.MetaPersistentCart:  `{"cart":[]}`,
		model.MetaCartToken:       "tok",
		model.MetaPendingRecovery: "1",
	})

	if err := f.svc.OrderStatusChanged(ctx, 100, model.OrderStatusPending, model.OrderStatusProcessing); err != nil {
		t.Fatalf("OrderStatusChanged returned error: %v", err)
	}

	if f.customers.get(7, model.MetaPersistentCart) != "" {
		t.Error("persistent cart should be deleted")
	}
	if f.customers.get(7, model.MetaCartToken) != "" {
		t.Error("customer cart token should be removed")
	}
	if v, _ := f.orders.metaValue(100, model.MetaPendingRecovery); v != "1" {
		t.Errorf("order pending recovery = %q, want 1", v)
	}
	if o, _ := f.orders.FindByID(ctx, 100); o.Status != model.OrderStatusProcessing {
		t.Errorf("status = %s, want processing", o.Status)
	}
}

func TestService_OrderStatusChanged_OnHoldRespectsRecoverHeldOrders(t *testing.T) {
	cfg := defaultConfig()
	cfg.RecoverHeldOrders = false
	f := newFixture(t, cfg, Hooks{}, newOrder(100, model.OrderStatusPending, 7))
	ctx := context.Background()
	_ = f.customers.Set(ctx, 7, map[string]string{model.MetaPersistentCart: "x"})

	if err := f.svc.OrderStatusChanged(ctx, 100, model.OrderStatusPending, model.OrderStatusOnHold); err != nil {
		t.Fatalf("OrderStatusChanged returned error: %v", err)
	}
	if f.customers.get(7, model.MetaPersistentCart) != "" {
		t.Error("on-hold should count as placed when held orders are not recovered")
	}
}

func TestService_OrderStatusChanged_FailedMarksPendingRecovery(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	ctx := context.Background()
	_ = f.orders.SetMeta(ctx, 100, map[string]string{model.MetaCartToken: "tok"})

	if err := f.svc.OrderStatusChanged(ctx, 100, model.OrderStatusPending, model.OrderStatusFailed); err != nil {
		t.Fatalf("OrderStatusChanged returned error: %v", err)
	}
	if pending, _ := f.svc.IsOrderPendingRecovery(ctx, 100); !pending {
		t.Error("failed order with token should be pending recovery")
	}
	if f.transport.count() != 1 {
		t.Errorf("transport calls = %d, want 1", f.transport.count())
	}
}

func TestService_OrderStatusChanged_UnknownOrder(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})

	if err := f.svc.OrderStatusChanged(context.Background(), 404, model.OrderStatusPending, model.OrderStatusProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_PaymentCompleted(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{}, newOrder(100, model.OrderStatusPending, 0))
	ctx := context.Background()
	v := guest()
	_ = f.sessions.Set(ctx, v.SessionID, map[string]string{model.SessionCartToken: "tok", model.SessionPendingRecovery: "1"})
	_ = f.orders.SetMeta(ctx, 100, map[string]string{model.MetaCartToken: "tok"})

	if err := f.svc.PaymentCompleted(ctx, v, 100); err != nil {
		t.Fatalf("PaymentCompleted returned error: %v", err)
	}

	if o, _ := f.orders.FindByID(ctx, 100); o.DatePaid == nil {
		t.Error("DatePaid should be recorded")
	}
	if f.sessions.get(v.SessionID, model.SessionCartToken) != "" {
		t.Error("session temp data should be cleared")
	}
	if f.transport.count() != 1 {
		t.Fatalf("transport calls = %d, want 1", f.transport.count())
	}
	if payload := decryptCall(t, f.transport.calls[0]); payload["is_placed"] != true {
		t.Errorf("is_placed = %v, want true", payload["is_placed"])
	}
}

// --- カート ---

func TestService_CartUpdated_SendsOnlyOnChange(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})
	ctx := context.Background()
	v := guest()

	changed, err := f.svc.CartUpdated(ctx, v, sampleCart())
	if err != nil || !changed {
		t.Fatalf("first update: changed=%v err=%v", changed, err)
	}
	changed, err = f.svc.CartUpdated(ctx, v, sampleCart())
	if err != nil || changed {
		t.Fatalf("identical update: changed=%v err=%v", changed, err)
	}

	if f.transport.count() != 1 {
		t.Fatalf("transport calls = %d, want 1", f.transport.count())
	}
	payload := decryptCall(t, f.transport.calls[0])
	if payload["status"] != model.PayloadStatusCart {
		t.Errorf("status = %v", payload["status"])
	}
	if payload["cart_token"] != f.sessions.get(v.SessionID, model.SessionCartToken) {
		t.Errorf("cart_token = %v", payload["cart_token"])
	}
}

func TestService_CartUpdated_CustomerOnlySendsOnce(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})
	ctx := context.Background()
	v := model.Visitor{CustomerID: 7, IP: "203.0.113.5"}

	for i := 0; i < 3; i++ {
		changed, err := f.svc.CartUpdated(ctx, v, sampleCart())
		if err != nil {
			t.Fatalf("update #%d returned error: %v", i+1, err)
		}
		if want := i == 0; changed != want {
			t.Errorf("update #%d changed = %v, want %v", i+1, changed, want)
		}
	}
	if f.transport.count() != 1 {
		t.Errorf("transport calls = %d, want 1", f.transport.count())
	}
}

func TestService_CartUpdated_EmptyCart(t *testing.T) {
	f := newFixture(t, defaultConfig(), Hooks{})

	changed, err := f.svc.CartUpdated(context.Background(), guest(), &model.Cart{})
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if f.transport.count() != 0 {
		t.Errorf("transport calls = %d, want 0", f.transport.count())
	}
}
