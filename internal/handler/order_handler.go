package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/syncer"
)

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	CheckoutOrderProcessed(ctx context.Context, v model.Visitor, orderID int64, c *model.Cart) error
	OrderStatusChanged(ctx context.Context, orderID int64, oldStatus, newStatus model.OrderStatus) error
	PaymentCompleted(ctx context.Context, v model.Visitor, orderID int64) error
	MarkOrderAsRecovered(ctx context.Context, orderID int64) error
	SyncOrder(ctx context.Context, orderID int64) error
	PrepareWebhook(ctx context.Context, orderID int64) (*syncer.WebhookRequest, error)
}

// OrderHandler はホストから注文イベントを受け付けるHTTPハンドラー。
// 同期処理の失敗は注文フローを妨げないため、サービス層で握りつぶされる。
type OrderHandler struct {
	service OrderServiceInterface
	logger  *slog.Logger
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: service, logger: logger}
}

// checkoutRequest はチェックアウト完了リクエストのボディ。
type checkoutRequest struct {
	Cart *model.Cart `json:"cart,omitempty"`
}

// statusChangeRequest はステータス変更リクエストのボディ。
type statusChangeRequest struct {
	OldStatus model.OrderStatus `json:"old_status"`
	NewStatus model.OrderStatus `json:"new_status"`
}

// Checkout はチェックアウト完了を処理する。ボディは省略できる。
// POST /api/orders/{id}/checkout
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	orderID, apiErr := orderIDParam(r)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	if err := h.service.CheckoutOrderProcessed(r.Context(), visitorFrom(r), orderID, req.Cart); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus は注文ステータス変更を処理する。
// POST /api/orders/{id}/status
func (h *OrderHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	orderID, apiErr := orderIDParam(r)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	if req.NewStatus == "" {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("new_statusが空です"))
		return
	}

	if err := h.service.OrderStatusChanged(r.Context(), orderID, req.OldStatus, req.NewStatus); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payment は支払い完了を処理する。
// POST /api/orders/{id}/payment
func (h *OrderHandler) Payment(w http.ResponseWriter, r *http.Request) {
	h.withOrderID(w, r, func(ctx context.Context, orderID int64) error {
		return h.service.PaymentCompleted(ctx, visitorFrom(r), orderID)
	})
}

// Recovered は注文をリカバリー済みとして記録する。
// POST /api/orders/{id}/recovered
func (h *OrderHandler) Recovered(w http.ResponseWriter, r *http.Request) {
	h.withOrderID(w, r, h.service.MarkOrderAsRecovered)
}

// Sync は注文を即時同期する。遅延同期ジョブと同じ処理を行う。
// POST /api/orders/{id}/sync
func (h *OrderHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.withOrderID(w, r, h.service.SyncOrder)
}

// Webhook はホストのWebhook送信に付与するヘッダーとボディを返す。
// 送信対象がない場合は204を返す。
// POST /api/orders/{id}/webhook
func (h *OrderHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	orderID, apiErr := orderIDParam(r)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	req, err := h.service.PrepareWebhook(r.Context(), orderID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if req == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(req)
}

// withOrderID は注文IDを解釈してfnを実行し、成功時は204を返す。
func (h *OrderHandler) withOrderID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID int64) error) {
	orderID, apiErr := orderIDParam(r)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	if err := fn(r.Context(), orderID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
