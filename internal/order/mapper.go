package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/repository"
	"github.com/hitoshi/cartsync/internal/security"
	"github.com/shopspring/decimal"
)

// LinkBuilder はカートトークンからリカバリーURLを生成するインターフェース。
type LinkBuilder interface {
	BuildLink(cartToken string) (string, error)
}

// MapperConfig はMapperの設定値。
type MapperConfig struct {
	PriceDecimals     int32
	BaseCurrency      string
	RecoverHeldOrders bool
}

// Mapper は注文・カートを送信用のSyncPayloadに変換する。
type Mapper struct {
	orders    repository.OrderRepository
	sanitizer security.TextSanitizerService
	links     LinkBuilder
	cfg       MapperConfig
	logger    *slog.Logger
}

// NewMapper はMapperを生成する。linksがnilの場合はリカバリーURLを付与しない。
func NewMapper(orders repository.OrderRepository, sanitizer security.TextSanitizerService, links LinkBuilder, cfg MapperConfig, logger *slog.Logger) *Mapper {
	return &Mapper{
		orders:    orders,
		sanitizer: sanitizer,
		links:     links,
		cfg:       cfg,
		logger:    logger,
	}
}

// MapOrder は注文IDから送信データを構築する。
// 注文が解決できない場合はnilを返す。呼び出し側は同期をスキップし、エラーにはしない。
func (m *Mapper) MapOrder(ctx context.Context, orderID int64) (*model.SyncPayload, error) {
	o, err := m.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の解決に失敗しました: %w", err)
	}
	if o == nil {
		m.logger.Debug("注文が見つからないため送信データを構築しません", slog.Int64("order_id", orderID))
		return nil, nil
	}

	meta, err := m.orders.ListMeta(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文メタデータの取得に失敗しました: %w", err)
	}

	return m.buildOrderPayload(o, meta), nil
}

func (m *Mapper) buildOrderPayload(o *model.Order, meta map[string]string) *model.SyncPayload {
	rate := o.CurrencyRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	token := meta[model.MetaCartToken]
	billing := m.sanitizeAddress(o.Billing)
	shipping := m.sanitizeAddress(o.Shipping)

	email := m.sanitizer.Sanitize(o.BillingEmail)
	if email == "" {
		email = billing.Email
	}
	if email == "" {
		email = model.AnonymousCustomer
	}

	p := &model.SyncPayload{
		CartToken:        token,
		CartHash:         meta[model.MetaCartHash],
		OrderID:          o.ID,
		OrderNumber:      o.Number,
		Status:           string(o.Status),
		CurrencyCode:     o.Currency,
		CurrencyRate:     rate,
		BaseCurrencyCode: m.cfg.BaseCurrency,
		LineItems:        m.mapOrderItems(o.Items),
		SubTotal:         m.round(o.SubTotal),
		DiscountTotal:    m.round(o.DiscountTotal),
		ShippingTotal:    m.round(o.ShippingTotal),
		TaxTotal:         m.round(o.TaxTotal),
		Total:            m.round(o.Total),
		BaseTotal:        m.round(ConvertToCurrency(o.Total, rate)),
		Customer: model.PayloadCustomer{
			ID:        o.CustomerID,
			Email:     email,
			FirstName: billing.FirstName,
			LastName:  billing.LastName,
			Phone:     billing.Phone,
		},
		BillingAddress:        &billing,
		ShippingAddress:       &shipping,
		BuyerAcceptsMarketing: cart.ParseFlag(meta[model.MetaAcceptsMarketing]),
		IsPlaced:              IsPlaced(o, o.Status, m.cfg.RecoverHeldOrders),
		PendingRecovery:       cart.ParseFlag(meta[model.MetaPendingRecovery]),
		Recovered:             cart.ParseFlag(meta[model.MetaOrderRecovered]),
		RecoveredAt:           formatISO8601Ptr(cart.ParseTimestamp(meta[model.MetaRecoveredAt])),
		RecoveredBy:           meta[model.MetaRecoveredBy],
		RecoveredCartToken:    meta[model.MetaRecoveredCartToken],
		ClientDetails: model.PayloadClient{
			UserIP:         cart.FormatUserIP(m.sanitizer.Sanitize(meta[model.MetaUserIP])),
			UserAgent:      m.sanitizer.Sanitize(meta[model.MetaUserAgent]),
			AcceptLanguage: m.sanitizer.Sanitize(meta[model.MetaAcceptLanguage]),
		},
		TrackingStartedAt: formatISO8601Ptr(cart.ParseTimestamp(meta[model.MetaTrackingStartedAt])),
		CreatedAt:         formatISO8601Ptr(&o.CreatedAt),
		UpdatedAt:         formatISO8601Ptr(&o.UpdatedAt),
		CompletedAt:       formatISO8601Ptr(o.DatePaid),
		CancelledAt:       formatISO8601Ptr(cart.ParseTimestamp(meta[model.MetaOrderCancelledAt])),
	}
	p.RecoveryURL = m.recoveryURL(token)
	return p
}

// MapCart は注文成立前のカートから送信データを構築する。
// カートが空、またはトークン未発行の場合はnilを返す。
func (m *Mapper) MapCart(v model.Visitor, c *model.Cart, state *model.CartSession) *model.SyncPayload {
	if c.IsEmpty() || state == nil || state.CartToken == "" {
		return nil
	}

	items := make([]model.PayloadItem, 0, len(c.Items))
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range c.Items {
		unit := item.LineSubtotal
		if item.Quantity > 0 {
			unit = item.LineSubtotal.Div(decimal.NewFromInt(int64(item.Quantity)))
		}
		items = append(items, model.PayloadItem{
			ProductID: item.ProductID,
			VariantID: item.VariationID,
			SKU:       m.sanitizer.Sanitize(item.SKU),
			Title:     m.sanitizer.Sanitize(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: m.round(unit),
			LineTotal: m.round(item.LineTotal),
			TaxTotal:  m.round(item.LineTax),
		})
		subtotal = subtotal.Add(item.LineSubtotal)
		tax = tax.Add(item.LineTax)
	}

	currency := c.Currency
	if currency == "" {
		currency = m.cfg.BaseCurrency
	}

	return &model.SyncPayload{
		CartToken:        state.CartToken,
		CartHash:         cart.Fingerprint(c, m.cfg.PriceDecimals),
		Status:           model.PayloadStatusCart,
		CurrencyCode:     currency,
		CurrencyRate:     decimal.NewFromInt(1),
		BaseCurrencyCode: m.cfg.BaseCurrency,
		LineItems:        items,
		SubTotal:         m.round(subtotal),
		TaxTotal:         m.round(tax),
		Total:            m.round(c.Total),
		BaseTotal:        m.round(c.Total),
		Customer: model.PayloadCustomer{
			ID:    v.CustomerID,
			Email: model.AnonymousCustomer,
		},
		BuyerAcceptsMarketing: state.AcceptsMarketing,
		PendingRecovery:       state.PendingRecovery,
		RecoveredAt:           formatISO8601Ptr(state.RecoveredAt),
		RecoveredBy:           state.RecoveredBy,
		RecoveredCartToken:    state.RecoveredCartToken,
		ClientDetails: model.PayloadClient{
			UserIP:         cart.FormatUserIP(m.sanitizer.Sanitize(v.IP)),
			UserAgent:      m.sanitizer.Sanitize(v.UserAgent),
			AcceptLanguage: m.sanitizer.Sanitize(v.AcceptLanguage),
		},
		TrackingStartedAt: formatISO8601Ptr(state.TrackingStartedAt),
		RecoveryURL:       m.recoveryURL(state.CartToken),
	}
}

func (m *Mapper) mapOrderItems(items []model.OrderItem) []model.PayloadItem {
	out := make([]model.PayloadItem, 0, len(items))
	for _, item := range items {
		out = append(out, model.PayloadItem{
			ProductID: item.ProductID,
			VariantID: item.VariationID,
			SKU:       m.sanitizer.Sanitize(item.SKU),
			Title:     m.sanitizer.Sanitize(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: m.round(item.UnitPrice),
			LineTotal: m.round(item.LineTotal),
			TaxTotal:  m.round(item.LineTax),
		})
	}
	return out
}

func (m *Mapper) sanitizeAddress(a model.Address) model.Address {
	return model.Address{
		FirstName: m.sanitizer.Sanitize(a.FirstName),
		LastName:  m.sanitizer.Sanitize(a.LastName),
		Company:   m.sanitizer.Sanitize(a.Company),
		Address1:  m.sanitizer.Sanitize(a.Address1),
		Address2:  m.sanitizer.Sanitize(a.Address2),
		City:      m.sanitizer.Sanitize(a.City),
		State:     m.sanitizer.Sanitize(a.State),
		Postcode:  m.sanitizer.Sanitize(a.Postcode),
		Country:   m.sanitizer.Sanitize(a.Country),
		Phone:     m.sanitizer.Sanitize(a.Phone),
		Email:     m.sanitizer.Sanitize(a.Email),
	}
}

func (m *Mapper) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(m.cfg.PriceDecimals)
}

// recoveryURL はリカバリーURLを生成する。生成に失敗した場合は空文字を返し、同期自体は継続する。
func (m *Mapper) recoveryURL(token string) string {
	if m.links == nil || token == "" {
		return ""
	}
	link, err := m.links.BuildLink(token)
	if err != nil {
		m.logger.Warn("リカバリーURLの生成に失敗しました", slog.String("error", err.Error()))
		return ""
	}
	return link
}
