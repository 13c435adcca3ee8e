package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/syncer"
)

// mockSyncService はSyncServiceのテスト用モック。
type mockSyncService struct {
	cartUpdatedFn     func(ctx context.Context, v model.Visitor, c *model.Cart) (bool, error)
	acceptsFn         func(ctx context.Context, v model.Visitor, accepts bool) error
	checkoutFn        func(ctx context.Context, v model.Visitor, orderID int64, c *model.Cart) error
	statusChangedFn   func(ctx context.Context, orderID int64, oldStatus, newStatus model.OrderStatus) error
	paymentFn         func(ctx context.Context, v model.Visitor, orderID int64) error
	recoveredFn       func(ctx context.Context, orderID int64) error
	syncOrderFn       func(ctx context.Context, orderID int64) error
	prepareWebhookFn  func(ctx context.Context, orderID int64) (*syncer.WebhookRequest, error)
	recoverCartFn     func(ctx context.Context, v model.Visitor, token, hash string) (string, error)
}

func (m *mockSyncService) CartUpdated(ctx context.Context, v model.Visitor, c *model.Cart) (bool, error) {
	if m.cartUpdatedFn != nil {
		return m.cartUpdatedFn(ctx, v, c)
	}
	return false, nil
}

func (m *mockSyncService) SetBuyerAcceptsMarketing(ctx context.Context, v model.Visitor, accepts bool) error {
	if m.acceptsFn != nil {
		return m.acceptsFn(ctx, v, accepts)
	}
	return nil
}

func (m *mockSyncService) CheckoutOrderProcessed(ctx context.Context, v model.Visitor, orderID int64, c *model.Cart) error {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, v, orderID, c)
	}
	return nil
}

func (m *mockSyncService) OrderStatusChanged(ctx context.Context, orderID int64, oldStatus, newStatus model.OrderStatus) error {
	if m.statusChangedFn != nil {
		return m.statusChangedFn(ctx, orderID, oldStatus, newStatus)
	}
	return nil
}

func (m *mockSyncService) PaymentCompleted(ctx context.Context, v model.Visitor, orderID int64) error {
	if m.paymentFn != nil {
		return m.paymentFn(ctx, v, orderID)
	}
	return nil
}

func (m *mockSyncService) MarkOrderAsRecovered(ctx context.Context, orderID int64) error {
	if m.recoveredFn != nil {
		return m.recoveredFn(ctx, orderID)
	}
	return nil
}

func (m *mockSyncService) SyncOrder(ctx context.Context, orderID int64) error {
	if m.syncOrderFn != nil {
		return m.syncOrderFn(ctx, orderID)
	}
	return nil
}

func (m *mockSyncService) PrepareWebhook(ctx context.Context, orderID int64) (*syncer.WebhookRequest, error) {
	if m.prepareWebhookFn != nil {
		return m.prepareWebhookFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockSyncService) RecoverCart(ctx context.Context, v model.Visitor, token, hash string) (string, error) {
	if m.recoverCartFn != nil {
		return m.recoverCartFn(ctx, v, token, hash)
	}
	return "", nil
}

var _ SyncService = (*mockSyncService)(nil)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
