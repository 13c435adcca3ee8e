package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cartsync/internal/model"
)

// RecoveryServiceInterface はリカバリーハンドラーが必要とするサービスインターフェース。
type RecoveryServiceInterface interface {
	// RecoverCart はリカバリーリンクを検証し、復元元のカートトークンを返す。
	RecoverCart(ctx context.Context, v model.Visitor, token, hash string) (string, error)
}

// RecoveryHandler はメールのリカバリーリンクを処理するHTTPハンドラー。
type RecoveryHandler struct {
	service     RecoveryServiceInterface
	redirectURL string
	logger      *slog.Logger
}

// NewRecoveryHandler はRecoveryHandlerを生成する。
// redirectURLは復元成功後のリダイレクト先（通常はカートページ）。
func NewRecoveryHandler(service RecoveryServiceInterface, redirectURL string, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{service: service, redirectURL: redirectURL, logger: logger}
}

// Recover はリカバリーリンクを検証してカートを復元し、カートページへリダイレクトする。
// 改ざんされたリンクには403を返す。
// GET /wc-api/retainful?token=...&hash=...
func (h *RecoveryHandler) Recover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if _, err := h.service.RecoverCart(r.Context(), visitorFrom(r), q.Get("token"), q.Get("hash")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	http.Redirect(w, r, h.redirectURL, http.StatusFound)
}

// RecoverPlain はパーマリンク無効時の形式（/?wc-api=retainful&token=...&hash=...）を処理する。
// wc-apiパラメータがない場合は404を返す。
// GET /
func (h *RecoveryHandler) RecoverPlain(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wc-api") != "retainful" {
		http.NotFound(w, r)
		return
	}
	h.Recover(w, r)
}
