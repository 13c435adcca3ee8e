package model

// 注文メタデータのキー。ホスト側注文ストアとの永続化契約であり、値を変更してはならない。
const (
	MetaCartToken          = "_rnoc_user_cart_token"
	MetaCartHash           = "_rnoc_cart_hash"
	MetaPreviousCartHash   = "_rnoc_previous_cart_hash"
	MetaTrackingStartedAt  = "_rnoc_cart_tracking_started_at"
	MetaUserIP             = "_rnoc_user_ip_address"
	MetaAcceptsMarketing   = "_rnoc_is_buyer_accepts_marketing"
	MetaPendingRecovery    = "_rnoc_is_pending_recovery"
	MetaOrderRecovered     = "_rnoc_order_recovered"
	MetaRecoveredAt        = "_rnoc_recovered_at"
	MetaRecoveredBy        = "_rnoc_recovered_by"
	MetaRecoveredCartToken = "_rnoc_recovered_cart_token"
	MetaUserAgent          = "_rnoc_get_http_user_agent"
	MetaAcceptLanguage     = "_rnoc_get_http_accept_language"
	MetaOrderPlacedAt      = "_rnoc_order_placed_at"
	MetaOrderCancelledAt   = "_rnoc_order_cancelled_at"
	MetaPersistentCart     = "_woocommerce_persistent_cart"
)

// ゲスト訪問者のセッションキー。注文メタデータとは別の名前空間。
const (
	SessionCartToken          = "rnoc_user_cart_token"
	SessionUserIP             = "rnoc_user_ip_address"
	SessionPendingRecovery    = "rnoc_is_pending_recovery"
	SessionTrackingStartedAt  = "rnoc_cart_tracking_started_at"
	SessionPreviousCartHash   = "rnoc_previous_cart_hash"
	SessionCurrentCartHash    = "rnoc_current_cart_hash"
	SessionForceRefreshCart   = "rnoc_force_refresh_cart"
	SessionRecoveredAt        = "rnoc_recovered_at"
	SessionRecoveredBy        = "rnoc_recovered_by_retainful"
	SessionRecoveredCartToken = "rnoc_recovered_cart_token"
	SessionAcceptsMarketing   = "is_buyer_accepting_marketing"
)

// 遅延同期ジョブのフック名と注文IDを格納する引数キー。
const (
	HookSyncAbandonedCartOrder = "retainful_sync_abandoned_cart_order"
	JobArgOrderID              = "_rnoc_order_id"
)

// RecoveredByValue はリカバリーリンク経由で復元されたことを示す値。
const RecoveredByValue = "retainful"
