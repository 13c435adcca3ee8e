package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
)

// handleServiceError はサービス層から返されたエラーをAPIエラーレスポンスに変換する。
// 既知のセンチネルエラー以外は内部エラーとしてログに記録する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteAPIError(w, apiErr)
	case errors.Is(err, model.ErrTamperedLink):
		logger.Warn("改ざんされたリカバリーリンクを拒否しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewTamperedLinkError())
	case errors.Is(err, model.ErrMissingVisitor):
		middleware.WriteAPIError(w, model.NewMissingVisitorError())
	default:
		logger.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// orderIDParam はURLパスの{id}を正の整数の注文IDとして解釈する。
func orderIDParam(r *http.Request) (int64, *model.APIError) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidOrderIDError(raw)
	}
	return id, nil
}

// visitorFrom はVisitorミドルウェアが注入した訪問者情報を返す。
func visitorFrom(r *http.Request) model.Visitor {
	v, _ := middleware.VisitorFromContext(r.Context())
	return v
}
