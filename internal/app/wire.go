package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/config"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/order"
	"github.com/hitoshi/cartsync/internal/recovery"
	"github.com/hitoshi/cartsync/internal/remote"
	"github.com/hitoshi/cartsync/internal/repository"
	"github.com/hitoshi/cartsync/internal/schedule"
	"github.com/hitoshi/cartsync/internal/security"
	"github.com/hitoshi/cartsync/internal/syncer"
	"github.com/redis/go-redis/v9"
)

// components はserveとworkerで共有する依存関係一式。
type components struct {
	jobs     *repository.PostgresJobRepo
	sessions *repository.RedisSessionStore
	service  *syncer.Service
}

// buildComponents はDB・Redis接続から同期サービスまでをワイヤリングする。
// 同期先URLがSSRFガードの検証に通らない場合はエラーを返す。
func buildComponents(cfg *config.Config, db *sql.DB, rdb *redis.Client, collector metrics.MetricsCollector, logger *slog.Logger) (*components, error) {
	// 1. リポジトリの初期化
	orderRepo := repository.NewPostgresOrderRepo(db)
	customerRepo := repository.NewPostgresCustomerMetaRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	sessionStore := repository.NewRedisSessionStore(rdb, cfg.SessionTTL)

	// 2. セキュリティサービスの初期化
	endpoint := cfg.SyncAPIURL
	if endpoint == "" {
		endpoint = remote.DefaultEndpoint
	}
	guard := security.NewEndpointGuard(cfg.AllowInsecureSyncURL)
	if err := guard.ValidateEndpoint(endpoint); err != nil {
		return nil, fmt.Errorf("同期先URLの検証に失敗しました: %w", err)
	}
	sanitizer := security.NewTextSanitizer()
	codec := security.NewCodec(cfg.SecretKey)

	// 3. ドメインサービスの初期化
	priceDecimals := int32(cfg.PriceDecimals)
	tracker := cart.NewTracker(sessionStore, customerRepo, priceDecimals, logger)
	if len(cfg.TrackingIgnoredIPs) > 0 {
		tracker.SetTrackingFilter(ignoreIPs(cfg.TrackingIgnoredIPs))
	}
	links := recovery.NewBuilder(cfg.SiteURL, cfg.SecretKey, cfg.PrettyPermalinks)
	mapper := order.NewMapper(orderRepo, sanitizer, links, order.MapperConfig{
		PriceDecimals:     priceDecimals,
		BaseCurrency:      cfg.BaseCurrency,
		RecoverHeldOrders: cfg.RecoverHeldOrders,
	}, logger)

	transport := remote.NewClient(guard.NewSafeClient(cfg.SyncTimeout), endpoint, cfg.SyncRatePerSec, collector, logger)
	scheduler := schedule.NewAdapter(jobRepo, cfg.ScheduleDelay, collector, logger)

	// 4. 同期オーケストレーターの構築
	service := syncer.NewService(syncer.Deps{
		Orders:    orderRepo,
		Customers: customerRepo,
		Tracker:   tracker,
		Mapper:    mapper,
		Codec:     codec,
		Transport: transport,
		Scheduler: scheduler,
		Links:     links,
		Metrics:   collector,
	}, syncer.Config{
		AppID:                     cfg.AppID,
		PluginVersion:             cfg.PluginVersion,
		OrderSyncEnabled:          cfg.OrderSyncEnabled,
		InstantOrderSync:          cfg.InstantOrderSync,
		ScheduleCartSync:          cfg.ScheduleCartSync,
		RecoverHeldOrders:         cfg.RecoverHeldOrders,
		ConsiderOnHoldAsAbandoned: cfg.ConsiderOnHoldAsAbandoned,
	}, newHooks(cfg), logger)

	return &components{
		jobs:     jobRepo,
		sessions: sessionStore,
		service:  service,
	}, nil
}

// newHooks は設定から同期フックを組み立てる。
func newHooks(cfg *config.Config) syncer.Hooks {
	var hooks syncer.Hooks
	if cfg.ForceWebhookToken {
		hooks.ForceGenerateToken = func(int64) bool { return true }
	}
	return hooks
}

// ignoreIPs は指定IPからのカートを追跡しないフィルタを返す。
func ignoreIPs(ips []string) cart.TrackingFilter {
	ignored := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		ignored[ip] = struct{}{}
	}
	return func(ip string) bool {
		_, skip := ignored[cart.FormatUserIP(ip)]
		return !skip
	}
}
