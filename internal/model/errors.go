// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 同期処理のセンチネルエラー。
// いずれも注文処理フローを失敗させる理由にはならず、呼び出し元は同期をスキップする。
var (
	// ErrOrderNotFound は注文が解決できないことを示す。
	ErrOrderNotFound = errors.New("order not found")
	// ErrEmptyPayload は送信すべきデータがないことを示す。
	ErrEmptyPayload = errors.New("nothing to sync")
	// ErrInvalidPayload は暗号化データの復号・検証に失敗したことを示す。
	ErrInvalidPayload = errors.New("invalid encrypted payload")
	// ErrTamperedLink はリカバリーリンクの署名が一致しないことを示す。
	ErrTamperedLink = errors.New("recovery link has been tampered with")
	// ErrSyncDisabled は注文同期が無効化されていることを示す。
	ErrSyncDisabled = errors.New("order sync is disabled")
	// ErrMissingVisitor はセッションIDも顧客IDも持たない訪問者であることを示す。
	ErrMissingVisitor = errors.New("visitor has neither session nor customer id")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, recovery, system
	Action   string // 呼び出し側向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidOrderID  = "INVALID_ORDER_ID"
	ErrCodeOrderNotFound   = "ORDER_NOT_FOUND"
	ErrCodeTamperedLink    = "TAMPERED_LINK"
	ErrCodeMissingVisitor  = "MISSING_VISITOR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストボディのJSON形式を確認してください。",
	}
}

// NewInvalidOrderIDError は注文ID不正エラーを生成する。
func NewInvalidOrderIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrderID,
		Message:  fmt.Sprintf("無効な注文IDです: %s", raw),
		Category: "validation",
		Action:   "正の整数の注文IDを指定してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID int64) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %d", orderID),
		Category: "validation",
		Action:   "注文IDを確認してください。",
	}
}

// NewTamperedLinkError はリカバリーリンク改ざんエラーを生成する。
func NewTamperedLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeTamperedLink,
		Message:  "リカバリーリンクの検証に失敗しました。",
		Category: "recovery",
		Action:   "メールに記載されたリンクをそのまま開いてください。",
	}
}

// NewMissingVisitorError はセッションIDも顧客IDも指定されていない場合のエラーを生成する。
func NewMissingVisitorError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingVisitor,
		Message:  "訪問者を識別できません。",
		Category: "validation",
		Action:   "X-Session-ID または X-Customer-ID ヘッダーを指定してください。",
	}
}

// NewUnauthorizedError は取り込みAPIトークン不一致エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "Authorizationヘッダーに正しいトークンを指定してください。",
	}
}

// NewTooManyRequestsError はレート制限超過エラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Code:     ErrCodeTooManyRequests,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
