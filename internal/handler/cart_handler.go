package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	// CartUpdated はカート更新を記録し、変化していれば同期する。
	CartUpdated(ctx context.Context, v model.Visitor, c *model.Cart) (bool, error)
	// SetBuyerAcceptsMarketing はゲストのマーケティング同意を記録する。
	SetBuyerAcceptsMarketing(ctx context.Context, v model.Visitor, accepts bool) error
}

// CartHandler はカート更新を受け付けるHTTPハンドラー。
type CartHandler struct {
	service CartServiceInterface
	logger  *slog.Logger
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: service, logger: logger}
}

// cartRequest はカート更新リクエストのボディ。
type cartRequest struct {
	model.Cart
	AcceptsMarketing *bool `json:"accepts_marketing,omitempty"`
}

// cartResponse はカート更新のAPIレスポンス。
type cartResponse struct {
	Changed bool `json:"changed"`
}

// UpdateCart はカート更新を処理する。
// POST /api/carts
func (h *CartHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	v := visitorFrom(r)
	if v.SessionID == "" && !v.IsLoggedIn() {
		middleware.WriteAPIError(w, model.NewMissingVisitorError())
		return
	}

	var req cartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	if req.AcceptsMarketing != nil {
		if err := h.service.SetBuyerAcceptsMarketing(r.Context(), v, *req.AcceptsMarketing); err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
	}

	changed, err := h.service.CartUpdated(r.Context(), v, &req.Cart)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(cartResponse{Changed: changed})
}
