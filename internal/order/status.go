// Package order はホスト側の注文・カートを送信用の正規化データに変換し、注文ステータスの判定規則を提供する。
package order

import (
	"time"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/shopspring/decimal"
)

// IsPlaced は注文が成立済み（放棄カートではない）かを返す。
// 支払い済み、またはon-holdかつ保留注文をリカバリー対象にしない設定の場合に成立とみなす。
func IsPlaced(o *model.Order, newStatus model.OrderStatus, recoverHeldOrders bool) bool {
	if o.IsPaid() {
		return true
	}
	return newStatus == model.OrderStatusOnHold && !recoverHeldOrders
}

// IsAbandonedStatus は放棄カートとして扱う注文ステータスかを返す。
// pending・failedに加え、設定によりon-holdも含める。
func IsAbandonedStatus(status model.OrderStatus, considerOnHoldAsAbandoned bool) bool {
	switch status {
	case model.OrderStatusPending, model.OrderStatusFailed:
		return true
	case model.OrderStatusOnHold:
		return considerOnHoldAsAbandoned
	}
	return false
}

// FormatISO8601 は日時をUTCのISO-8601（RFC 3339）文字列に変換する。
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatISO8601Ptr はnilを許容するFormatISO8601。
func formatISO8601Ptr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := FormatISO8601(*t)
	return &s
}

// ConvertToCurrency は換算レートで金額を基軸通貨建てに換算する（amount / rate）。
// 金額またはレートがゼロの場合はそのまま返す。
func ConvertToCurrency(amount, rate decimal.Decimal) decimal.Decimal {
	if amount.IsZero() || rate.IsZero() {
		return amount
	}
	return amount.Div(rate)
}
