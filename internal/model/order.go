package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus はホスト側の注文ステータスを表す。
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Address は請求先・配送先の住所を表す。
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

// OrderItem は注文明細を表す。
type OrderItem struct {
	ID          int64
	ProductID   int64
	VariationID int64
	SKU         string
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	LineTax     decimal.Decimal
}

// Order はホスト側の注文レコードを表す。
type Order struct {
	ID            int64
	Number        string
	CustomerID    int64
	Status        OrderStatus
	Currency      string
	CurrencyRate  decimal.Decimal
	SubTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ShippingTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	Total         decimal.Decimal
	BillingEmail  string
	Billing       Address
	Shipping      Address
	Items         []OrderItem
	DatePaid      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPaid は支払い完了済みの注文かを返す。
// 支払日時が記録されている、またはprocessing/completedステータスの場合に支払い済みとみなす。
func (o *Order) IsPaid() bool {
	if o == nil {
		return false
	}
	if o.DatePaid != nil {
		return true
	}
	return o.Status == OrderStatusProcessing || o.Status == OrderStatusCompleted
}

// OrderSyncState は注文に付与される同期状態メタデータを表す。
// チェックアウト完了時に作成され、削除はされない（監査証跡）。
type OrderSyncState struct {
	OrderID            int64
	CartToken          string
	CartHash           string
	TrackingStartedAt  string
	UserIP             string
	AcceptsMarketing   bool
	PendingRecovery    bool
	Recovered          bool
	RecoveredAt        string
	RecoveredBy        string
	RecoveredCartToken string
	UserAgent          string
	AcceptLanguage     string
	PlacedAt           string
	CancelledAt        string
}
