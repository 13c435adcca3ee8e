package model

import "github.com/shopspring/decimal"

// AnonymousCustomer はメールアドレスが得られない場合の顧客識別子。
const AnonymousCustomer = "anonymous"

// PayloadStatusCart は注文成立前のカートを送信する際のステータス値。
const PayloadStatusCart = "cart"

// SyncPayload はリモートに送信する正規化済みのカート/注文データ。
// 暗号化前のプレーンな構造であり、cart_tokenをキーにリモートでupsertされる。
type SyncPayload struct {
	CartToken             string          `json:"cart_token"`
	CartHash              string          `json:"cart_hash,omitempty"`
	OrderID               int64           `json:"order_id,omitempty"`
	OrderNumber           string          `json:"order_number,omitempty"`
	Status                string          `json:"status"`
	CurrencyCode          string          `json:"currency_code"`
	CurrencyRate          decimal.Decimal `json:"currency_rate"`
	BaseCurrencyCode      string          `json:"base_currency_code"`
	LineItems             []PayloadItem   `json:"line_items"`
	SubTotal              decimal.Decimal `json:"subtotal_price"`
	DiscountTotal         decimal.Decimal `json:"total_discounts"`
	ShippingTotal         decimal.Decimal `json:"total_shipping"`
	TaxTotal              decimal.Decimal `json:"total_tax"`
	Total                 decimal.Decimal `json:"total_price"`
	BaseTotal             decimal.Decimal `json:"base_total_price"`
	Customer              PayloadCustomer `json:"customer"`
	BillingAddress        *Address        `json:"billing_address,omitempty"`
	ShippingAddress       *Address        `json:"shipping_address,omitempty"`
	BuyerAcceptsMarketing bool            `json:"buyer_accepts_marketing"`
	IsPlaced              bool            `json:"is_placed"`
	PendingRecovery       bool            `json:"pending_recovery"`
	Recovered             bool            `json:"recovered"`
	RecoveredAt           *string         `json:"recovered_at"`
	RecoveredBy           string          `json:"recovered_by,omitempty"`
	RecoveredCartToken    string          `json:"recovered_cart_token,omitempty"`
	ClientDetails         PayloadClient   `json:"client_details"`
	TrackingStartedAt     *string         `json:"tracking_started_at"`
	CreatedAt             *string         `json:"created_at"`
	UpdatedAt             *string         `json:"updated_at"`
	CompletedAt           *string         `json:"completed_at"`
	CancelledAt           *string         `json:"cancelled_at"`
	RecoveryURL           string          `json:"recovery_url,omitempty"`
}

// PayloadItem は送信データの明細行。
type PayloadItem struct {
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"line_price"`
	TaxTotal  decimal.Decimal `json:"tax_price"`
}

// PayloadCustomer は送信データの顧客情報。
// Emailが空の場合はAnonymousCustomerが設定される。
type PayloadCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// PayloadClient は送信データのクライアント情報。
type PayloadClient struct {
	UserIP         string `json:"browser_ip"`
	UserAgent      string `json:"user_agent"`
	AcceptLanguage string `json:"accept_language"`
}
