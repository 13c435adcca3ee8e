// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem はカート内の1行を表す。
// Productはホスト側の商品オブジェクト参照であり、シリアライズ対象外とする。
type CartItem struct {
	Key          string          `json:"key"`
	ProductID    int64           `json:"product_id"`
	VariationID  int64           `json:"variation_id"`
	SKU          string          `json:"sku,omitempty"`
	Name         string          `json:"name,omitempty"`
	Quantity     int             `json:"quantity"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	LineTotal    decimal.Decimal `json:"line_total"`
	LineTax      decimal.Decimal `json:"line_tax"`
	Meta         map[string]any  `json:"meta,omitempty"`
	Product      any             `json:"-"`
}

// Cart は訪問者の現在のカート状態を表す。
type Cart struct {
	Items    []CartItem      `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency,omitempty"`
}

// IsEmpty はカートに商品が1つもないかを返す。
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Visitor はリクエストを発生させた訪問者の識別情報を表す。
// CustomerIDが0の場合はゲスト（セッション識別）として扱う。
type Visitor struct {
	SessionID      string
	CustomerID     int64
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// IsLoggedIn はログイン済み顧客かを返す。
func (v Visitor) IsLoggedIn() bool {
	return v.CustomerID > 0
}

// CartSession は訪問者ごとのカート追跡状態を表す。
// ゲストはセッションストア、ログイン済み顧客は顧客メタデータが唯一の保存先となる。
type CartSession struct {
	CartToken          string
	TrackingStartedAt  *time.Time
	PendingRecovery    bool
	PreviousCartHash   string
	UserIP             string
	AcceptsMarketing   bool
	RecoveredAt        *time.Time
	RecoveredBy        string
	RecoveredCartToken string
}
