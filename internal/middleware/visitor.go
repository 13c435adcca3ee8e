// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/cartsync/internal/model"
)

// 訪問者を識別するリクエストヘッダー。
const (
	SessionIDHeader  = "X-Session-ID"
	CustomerIDHeader = "X-Customer-ID"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// visitorContextKey はリクエストコンテキストに訪問者情報を格納するためのキー。
var visitorContextKey = contextKey("visitor")

// NewVisitorMiddleware はリクエストヘッダーから訪問者情報を組み立て、
// リクエストコンテキストに注入するミドルウェアを返す。
// X-Customer-IDが正の整数でない場合は400 Bad Requestを返す。
func NewVisitorMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := model.Visitor{
				SessionID:      r.Header.Get(SessionIDHeader),
				IP:             ClientIP(r),
				UserAgent:      r.UserAgent(),
				AcceptLanguage: r.Header.Get("Accept-Language"),
			}

			if raw := r.Header.Get(CustomerIDHeader); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					WriteAPIError(w, model.NewInvalidRequestError(CustomerIDHeader+"が不正です"))
					return
				}
				v.CustomerID = id
			}

			next.ServeHTTP(w, r.WithContext(ContextWithVisitor(r.Context(), v)))
		})
	}
}

// VisitorFromContext はリクエストコンテキストから訪問者情報を取得する。
// Visitorミドルウェアを通過していない場合はokがfalseになる。
func VisitorFromContext(ctx context.Context) (model.Visitor, bool) {
	v, ok := ctx.Value(visitorContextKey).(model.Visitor)
	return v, ok
}

// ContextWithVisitor はコンテキストに訪問者情報を注入する。
func ContextWithVisitor(ctx context.Context, v model.Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey, v)
}
