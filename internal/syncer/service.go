// Package syncer はカート・注文の同期オーケストレーションを提供する。
//
// 注文ごとの状態は NEW → TOKEN_ASSIGNED → SYNCED → {CANCELLED, RECOVERED} と遷移する。
// 同期は常にベストエフォートであり、送信先に到達できない場合でも
// 注文処理（チェックアウト・支払い）を失敗させない。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/order"
	"github.com/hitoshi/cartsync/internal/remote"
	"github.com/hitoshi/cartsync/internal/repository"
	"github.com/hitoshi/cartsync/internal/schedule"
)

// RecoveredNote はリカバリー済み注文に1度だけ付与する注文メモ。
const RecoveredNote = "Retainfulのリカバリーリンク経由で回復した注文です。"

// 同期種別のメトリクスラベル。
const (
	kindOrder = "order"
	kindCart  = "cart"
)

// Transport は暗号化済みデータを同期APIへ送信するインターフェース。
type Transport interface {
	SyncCartDetails(ctx context.Context, appID, blob string, headers map[string]string) (remote.Result, error)
}

// Encrypter は送信データを暗号化するインターフェース。
type Encrypter interface {
	Encrypt(payload any) (string, error)
}

// Scheduler は遅延同期ジョブを登録するインターフェース。
type Scheduler interface {
	ScheduleDeferredSync(ctx context.Context, orderID int64) error
}

// LinkParser はリカバリーURLのtoken・hashを検証してカートトークンを返すインターフェース。
type LinkParser interface {
	ParseLink(token, hash string) (string, error)
}

// Config は同期処理の設定値。
type Config struct {
	AppID                     string
	PluginVersion             string
	OrderSyncEnabled          bool
	InstantOrderSync          bool
	ScheduleCartSync          bool
	RecoverHeldOrders         bool
	ConsiderOnHoldAsAbandoned bool
}

// Hooks は同期処理の振る舞いを差し替えるフック。未設定のフックは既定動作となる。
type Hooks struct {
	// TokenFilter は同期に使うカートトークンを差し替える。
	TokenFilter func(token string, orderID int64) string
	// InstantSync は即時同期するかを判定する。未設定時はConfig.InstantOrderSync。
	InstantSync func(orderID int64) bool
	// ScheduleCartSync はfalseを返すと遅延同期ジョブを登録しない。
	ScheduleCartSync func(orderID int64) bool
	// ForceGenerateToken はWebhook送信時にトークン未発行の注文へトークンを発行するかを判定する。
	ForceGenerateToken func(orderID int64) bool
	// IsPlaced は注文成立判定の結果を差し替える。
	IsPlaced func(o *model.Order, oldStatus, newStatus model.OrderStatus, placed bool) bool
	// OnRecovered は注文がリカバリー済みになった直後に呼び出される。
	OnRecovered func(ctx context.Context, o *model.Order)
}

// Deps はServiceの依存コンポーネント。
type Deps struct {
	Orders    repository.OrderRepository
	Customers repository.CustomerMetaRepository
	Tracker   *cart.Tracker
	Mapper    *order.Mapper
	Codec     Encrypter
	Transport Transport
	Scheduler Scheduler
	Links     LinkParser
	Metrics   metrics.MetricsCollector
}

// Service はカート・注文の同期オーケストレーター。
type Service struct {
	orders    repository.OrderRepository
	customers repository.CustomerMetaRepository
	tracker   *cart.Tracker
	mapper    *order.Mapper
	codec     Encrypter
	transport Transport
	scheduler Scheduler
	links     LinkParser
	metrics   metrics.MetricsCollector
	cfg       Config
	hooks     Hooks
	now       func() time.Time
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(deps Deps, cfg Config, hooks Hooks, logger *slog.Logger) *Service {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		orders:    deps.Orders,
		customers: deps.Customers,
		tracker:   deps.Tracker,
		mapper:    deps.Mapper,
		codec:     deps.Codec,
		transport: deps.Transport,
		scheduler: deps.Scheduler,
		links:     deps.Links,
		metrics:   collector,
		cfg:       cfg,
		hooks:     hooks,
		now:       time.Now,
		logger:    logger,
	}
}

// CheckoutOrderProcessed はチェックアウト完了時の処理を行う。
// カートトークンが未発行なら発行し、注文に同期状態メタデータを付与した上で、
// 設定に応じて即時同期または遅延同期を行う。
func (s *Service) CheckoutOrderProcessed(ctx context.Context, v model.Visitor, orderID int64, c *model.Cart) error {
	if orderID <= 0 {
		return nil
	}
	s.logger.Info("チェックアウト完了を受け付けました", slog.Int64("order_id", orderID))

	_, created, err := s.tracker.EnsureCartToken(ctx, v)
	switch {
	case errors.Is(err, model.ErrMissingVisitor):
		// 訪問者を識別できない場合は注文に直接トークンを発行する
		if err := s.ensureOrderCartToken(ctx, orderID); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("カートトークンの発行に失敗しました: %w", err)
	default:
		if created {
			s.logger.Debug("チェックアウト時にカートトークンを発行しました", slog.Int64("order_id", orderID))
		}
		if err := s.PurchaseComplete(ctx, v, orderID, c); err != nil {
			return err
		}
	}

	return s.SyncOrderToAPI(ctx, orderID)
}

// PurchaseComplete は訪問者のカート追跡状態を注文メタデータにコピーし、リカバリー待ちとして記録する。
// カートトークンが未発行の訪問者、または存在しない注文に対しては何もしない。
func (s *Service) PurchaseComplete(ctx context.Context, v model.Visitor, orderID int64, c *model.Cart) error {
	if orderID <= 0 {
		return nil
	}
	state, err := s.tracker.Load(ctx, v)
	if err != nil {
		return fmt.Errorf("カート追跡状態の読み込みに失敗しました: %w", err)
	}
	if state.CartToken == "" {
		return nil
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		s.logger.Debug("注文が見つからないため同期状態を記録しません", slog.Int64("order_id", orderID))
		return nil
	}

	hash := cart.Fingerprint(c, s.tracker.PriceDecimals())
	if hash == "" {
		hash = state.PreviousCartHash
	}
	ip := state.UserIP
	if ip == "" {
		ip = cart.FormatUserIP(v.IP)
	}

	values := map[string]string{
		model.MetaCartToken:          state.CartToken,
		model.MetaCartHash:           hash,
		model.MetaTrackingStartedAt:  formatOptionalTimestamp(state.TrackingStartedAt),
		model.MetaUserIP:             ip,
		model.MetaAcceptsMarketing:   formatFlag(state.AcceptsMarketing),
		model.MetaRecoveredAt:        formatOptionalTimestamp(state.RecoveredAt),
		model.MetaRecoveredBy:        state.RecoveredBy,
		model.MetaRecoveredCartToken: state.RecoveredCartToken,
		model.MetaUserAgent:          v.UserAgent,
		model.MetaAcceptLanguage:     v.AcceptLanguage,
		model.MetaPendingRecovery:    "1",
	}
	if err := s.orders.SetMeta(ctx, orderID, values); err != nil {
		return fmt.Errorf("注文への同期状態の記録に失敗しました: %w", err)
	}

	s.logger.Info("注文に同期状態を記録しました", slog.Int64("order_id", orderID))
	return nil
}

// SetOrderCartToken は注文にカートトークンを設定する。tokenが空の場合は新規に発行する。
func (s *Service) SetOrderCartToken(ctx context.Context, orderID int64, token string) error {
	if token == "" {
		var err error
		if token, err = cart.GenerateToken(); err != nil {
			return err
		}
	}
	if err := s.orders.SetMeta(ctx, orderID, map[string]string{model.MetaCartToken: token}); err != nil {
		return fmt.Errorf("注文へのカートトークンの設定に失敗しました: %w", err)
	}
	return nil
}

// ensureOrderCartToken は注文にカートトークンがなければ発行し、リカバリー待ちとして記録する。
// 既存のトークンは上書きしない。存在しない注文に対しては何もしない。
func (s *Service) ensureOrderCartToken(ctx context.Context, orderID int64) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		return nil
	}
	token, err := s.orders.GetMeta(ctx, orderID, model.MetaCartToken)
	if err != nil {
		return fmt.Errorf("注文のカートトークンの取得に失敗しました: %w", err)
	}
	if token == "" {
		if err := s.SetOrderCartToken(ctx, orderID, ""); err != nil {
			return err
		}
	}
	return s.MarkOrderAsPendingRecovery(ctx, orderID)
}

// SyncOrderToAPI はチェックアウト・支払い完了直後の注文を同期する。
// 注文同期が無効な場合は何もしない。即時同期しない設定の場合は遅延同期ジョブを登録する。
func (s *Service) SyncOrderToAPI(ctx context.Context, orderID int64) error {
	if !s.cfg.OrderSyncEnabled {
		return nil
	}
	if !s.needInstantSync(orderID) {
		return s.ScheduleCartSync(ctx, orderID)
	}

	payload, err := s.mapper.MapOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if payload == nil {
		s.logger.Info("送信データを構築できないため同期をスキップします", slog.Int64("order_id", orderID))
		s.metrics.RecordSyncResult(kindOrder, metrics.ResultSkipped)
		return nil
	}

	s.send(ctx, kindOrder, payload, slog.Int64("order_id", orderID))
	return nil
}

// OrderUpdated は注文変更時に即時同期または遅延同期を行う。
func (s *Service) OrderUpdated(ctx context.Context, orderID int64) error {
	s.logger.Debug("注文の変更を受け付けました", slog.Int64("order_id", orderID))
	if s.needInstantSync(orderID) {
		return s.SyncOrder(ctx, orderID)
	}
	return s.ScheduleCartSync(ctx, orderID)
}

// SyncOrder は注文を同期APIへ送信する。
// 注文IDが空、または注文同期が無効な場合は何もしない。
// キャンセル済みで取消日時が未記録の注文は現在時刻を記録し、顧客の一時データを削除する。
// 送信の失敗はログに記録するのみで、エラーとしては返さない。
func (s *Service) SyncOrder(ctx context.Context, orderID int64) error {
	if orderID <= 0 || !s.cfg.OrderSyncEnabled {
		return nil
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		s.logger.Debug("注文が見つからないため同期をスキップします", slog.Int64("order_id", orderID))
		s.metrics.RecordSyncResult(kindOrder, metrics.ResultSkipped)
		return nil
	}

	token, err := s.orders.GetMeta(ctx, orderID, model.MetaCartToken)
	if err != nil {
		return fmt.Errorf("カートトークンの取得に失敗しました: %w", err)
	}
	if s.hooks.TokenFilter != nil {
		token = s.hooks.TokenFilter(token, orderID)
	}
	if token == "" {
		s.logger.Debug("カートトークンがないため同期をスキップします", slog.Int64("order_id", orderID))
		s.metrics.RecordSyncResult(kindOrder, metrics.ResultSkipped)
		return nil
	}

	if o.Status == model.OrderStatusCancelled {
		if err := s.stampCancelled(ctx, o); err != nil {
			return err
		}
	}

	payload, err := s.mapper.MapOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if payload == nil {
		s.metrics.RecordSyncResult(kindOrder, metrics.ResultSkipped)
		return nil
	}
	payload.CartToken = token

	s.send(ctx, kindOrder, payload, slog.Int64("order_id", orderID))
	return nil
}

// HandleJob は遅延同期ジョブを実行する。schedule.JobHandlerとして登録する。
func (s *Service) HandleJob(ctx context.Context, job *model.ScheduledJob) error {
	orderID, err := schedule.OrderIDArg(job)
	if err != nil {
		return err
	}
	return s.SyncOrder(ctx, orderID)
}

// ScheduleCartSync は注文の遅延同期ジョブを登録する。フックで無効化されている場合は何もしない。
func (s *Service) ScheduleCartSync(ctx context.Context, orderID int64) error {
	if !s.cfg.ScheduleCartSync {
		return nil
	}
	if s.hooks.ScheduleCartSync != nil && !s.hooks.ScheduleCartSync(orderID) {
		return nil
	}
	return s.scheduler.ScheduleDeferredSync(ctx, orderID)
}

// OrderStatusChanged は注文ステータス変更時の処理を行う。
// 支払い済み、または設定によりon-holdになった注文は成立とみなし、
// 顧客の永続カートと一時データを削除する。その後、変更を同期する。
func (s *Service) OrderStatusChanged(ctx context.Context, orderID int64, oldStatus, newStatus model.OrderStatus) error {
	if orderID <= 0 {
		return nil
	}
	if err := s.orders.UpdateStatus(ctx, orderID, newStatus); err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			s.logger.Debug("注文が見つからないためステータス変更を無視します", slog.Int64("order_id", orderID))
			return nil
		}
		return err
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		return nil
	}

	s.logger.Info("注文ステータスが変更されました",
		slog.Int64("order_id", orderID),
		slog.String("old_status", string(oldStatus)),
		slog.String("new_status", string(newStatus)),
	)

	placed := order.IsPlaced(o, newStatus, s.cfg.RecoverHeldOrders)
	if s.hooks.IsPlaced != nil {
		placed = s.hooks.IsPlaced(o, oldStatus, newStatus, placed)
	}

	switch {
	case placed && o.CustomerID > 0:
		if err := s.releaseCustomerCart(ctx, o); err != nil {
			return err
		}
	case !placed && order.IsAbandonedStatus(newStatus, s.cfg.ConsiderOnHoldAsAbandoned):
		token, err := s.orders.GetMeta(ctx, orderID, model.MetaCartToken)
		if err != nil {
			return fmt.Errorf("カートトークンの取得に失敗しました: %w", err)
		}
		if token != "" {
			if err := s.MarkOrderAsPendingRecovery(ctx, orderID); err != nil {
				return err
			}
		}
	}

	return s.OrderUpdated(ctx, orderID)
}

// releaseCustomerCart は成立した注文の顧客について、永続カートとカート追跡の一時データを削除する。
func (s *Service) releaseCustomerCart(ctx context.Context, o *model.Order) error {
	customer := model.Visitor{CustomerID: o.CustomerID}

	if err := s.customers.Delete(ctx, o.CustomerID, model.MetaPersistentCart); err != nil {
		return fmt.Errorf("永続カートの削除に失敗しました: %w", err)
	}

	pending, err := s.tracker.IsPendingRecovery(ctx, customer)
	if err != nil {
		return err
	}
	if pending {
		if err := s.MarkOrderAsPendingRecovery(ctx, o.ID); err != nil {
			return err
		}
	}

	token, err := s.tracker.RetrieveCartToken(ctx, customer)
	if err != nil {
		return err
	}
	if token != "" {
		return s.tracker.RemoveCustomerTempData(ctx, o.CustomerID)
	}
	return nil
}

// PaymentCompleted は支払い完了時の処理を行う。
// 支払日時を記録し、訪問者の一時データを削除した上で、トークン付きの注文を同期する。
func (s *Service) PaymentCompleted(ctx context.Context, v model.Visitor, orderID int64) error {
	if orderID <= 0 {
		return nil
	}
	if err := s.orders.MarkPaid(ctx, orderID, s.now()); err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			s.logger.Debug("注文が見つからないため支払い完了を無視します", slog.Int64("order_id", orderID))
			return nil
		}
		return err
	}

	token, err := s.tracker.RetrieveCartToken(ctx, v)
	if err != nil {
		return err
	}
	if token != "" {
		if err := s.tracker.ClearTempData(ctx, v); err != nil {
			return err
		}
	}

	orderToken, err := s.orders.GetMeta(ctx, orderID, model.MetaCartToken)
	if err != nil {
		return fmt.Errorf("カートトークンの取得に失敗しました: %w", err)
	}
	if orderToken == "" {
		return nil
	}
	return s.SyncOrderToAPI(ctx, orderID)
}

// MarkOrderAsPendingRecovery は注文をリカバリー待ちとして記録する。
func (s *Service) MarkOrderAsPendingRecovery(ctx context.Context, orderID int64) error {
	if err := s.orders.SetMeta(ctx, orderID, map[string]string{model.MetaPendingRecovery: "1"}); err != nil {
		return fmt.Errorf("リカバリー待ちの記録に失敗しました: %w", err)
	}
	return nil
}

// MarkOrderAsRecovered は注文をリカバリー済みとして記録する。
// 存在しない注文、または既にリカバリー済みの注文に対しては何もしない（冪等）。
func (s *Service) MarkOrderAsRecovered(ctx context.Context, orderID int64) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		return nil
	}
	recovered, err := s.IsOrderRecovered(ctx, orderID)
	if err != nil {
		return err
	}
	if recovered {
		return nil
	}

	if err := s.orders.DeleteMeta(ctx, orderID, model.MetaPendingRecovery); err != nil {
		return fmt.Errorf("リカバリー待ちの解除に失敗しました: %w", err)
	}
	if err := s.orders.SetMeta(ctx, orderID, map[string]string{model.MetaOrderRecovered: "1"}); err != nil {
		return fmt.Errorf("リカバリー済みの記録に失敗しました: %w", err)
	}

	noted, err := s.orders.HasNote(ctx, orderID, RecoveredNote)
	if err != nil {
		return fmt.Errorf("注文メモの確認に失敗しました: %w", err)
	}
	if !noted {
		if err := s.orders.AddNote(ctx, orderID, RecoveredNote); err != nil {
			return fmt.Errorf("注文メモの追加に失敗しました: %w", err)
		}
	}

	s.logger.Info("注文をリカバリー済みとして記録しました", slog.Int64("order_id", orderID))
	if s.hooks.OnRecovered != nil {
		s.hooks.OnRecovered(ctx, o)
	}
	return nil
}

// IsOrderRecovered は注文がリカバリー済みかを返す。存在しない注文はfalseとする。
func (s *Service) IsOrderRecovered(ctx context.Context, orderID int64) (bool, error) {
	return s.orderFlag(ctx, orderID, model.MetaOrderRecovered)
}

// IsOrderPendingRecovery は注文がリカバリー待ちかを返す。存在しない注文はfalseとする。
func (s *Service) IsOrderPendingRecovery(ctx context.Context, orderID int64) (bool, error) {
	return s.orderFlag(ctx, orderID, model.MetaPendingRecovery)
}

func (s *Service) orderFlag(ctx context.Context, orderID int64, key string) (bool, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		return false, nil
	}
	v, err := s.orders.GetMeta(ctx, orderID, key)
	if err != nil {
		return false, fmt.Errorf("注文メタデータの取得に失敗しました: %w", err)
	}
	return cart.ParseFlag(v), nil
}

// CartUpdated はカート更新を記録し、内容が変化していればカートを同期する。
// 変化の有無を返す。
func (s *Service) CartUpdated(ctx context.Context, v model.Visitor, c *model.Cart) (bool, error) {
	changed, err := s.tracker.TrackCart(ctx, v, c)
	if err != nil {
		return false, fmt.Errorf("カート更新の記録に失敗しました: %w", err)
	}
	if !changed {
		return false, nil
	}

	state, err := s.tracker.Load(ctx, v)
	if err != nil {
		return true, fmt.Errorf("カート追跡状態の読み込みに失敗しました: %w", err)
	}
	payload := s.mapper.MapCart(v, c, state)
	if payload == nil {
		s.metrics.RecordSyncResult(kindCart, metrics.ResultSkipped)
		return true, nil
	}

	s.send(ctx, kindCart, payload, slog.Int64("customer_id", v.CustomerID))
	return true, nil
}

// SetBuyerAcceptsMarketing はゲストのマーケティング同意フラグを記録する。
func (s *Service) SetBuyerAcceptsMarketing(ctx context.Context, v model.Visitor, accepts bool) error {
	if err := s.tracker.SetAcceptsMarketing(ctx, v, accepts); err != nil {
		return fmt.Errorf("マーケティング同意の記録に失敗しました: %w", err)
	}
	return nil
}

// RecoverCart はリカバリーURLを検証し、訪問者のセッションに復元元のカートトークンを記録する。
// 復元したカートトークンを返す。
func (s *Service) RecoverCart(ctx context.Context, v model.Visitor, token, hash string) (string, error) {
	cartToken, err := s.links.ParseLink(token, hash)
	if err != nil {
		s.logger.Warn("リカバリーリンクの検証に失敗しました", slog.String("error", err.Error()))
		return "", err
	}
	if err := s.tracker.SetRecovered(ctx, v, cartToken); err != nil {
		return "", fmt.Errorf("カート復元の記録に失敗しました: %w", err)
	}
	s.logger.Info("リカバリーリンクからカートを復元しました", slog.Int64("customer_id", v.CustomerID))
	return cartToken, nil
}

// stampCancelled はキャンセル日時が未記録なら現在時刻を記録し、顧客の一時データを削除する。
func (s *Service) stampCancelled(ctx context.Context, o *model.Order) error {
	cancelledAt, err := s.orders.GetMeta(ctx, o.ID, model.MetaOrderCancelledAt)
	if err != nil {
		return fmt.Errorf("キャンセル日時の取得に失敗しました: %w", err)
	}
	if cancelledAt != "" {
		return nil
	}

	err = s.orders.SetMeta(ctx, o.ID, map[string]string{
		model.MetaOrderCancelledAt: cart.FormatTimestamp(s.now()),
	})
	if err != nil {
		return fmt.Errorf("キャンセル日時の記録に失敗しました: %w", err)
	}
	s.logger.Info("注文のキャンセル日時を記録しました", slog.Int64("order_id", o.ID))

	return s.tracker.RemoveCustomerTempData(ctx, o.CustomerID)
}

// send は送信データを暗号化して同期APIへ送信する。失敗はログとメトリクスに記録するのみとする。
func (s *Service) send(ctx context.Context, kind string, payload *model.SyncPayload, attrs ...any) {
	blob, err := s.codec.Encrypt(payload)
	if err != nil {
		s.logger.Error("送信データの暗号化に失敗しました", append(attrs, slog.String("error", err.Error()))...)
		s.metrics.RecordSyncResult(kind, metrics.ResultFailed)
		return
	}

	result, err := s.transport.SyncCartDetails(ctx, s.cfg.AppID, blob, s.syncHeaders(payload.CartToken, payload.ClientDetails.UserIP))
	if err != nil {
		s.logger.Error("同期APIへの送信に失敗しました", append(attrs, slog.String("error", err.Error()))...)
		s.metrics.RecordSyncResult(kind, metrics.ResultTransient)
		return
	}

	s.metrics.RecordSyncResult(kind, string(result.Class))
	s.logger.Info("同期APIへ送信しました", append(attrs,
		slog.String("kind", kind),
		slog.Int("http_status", result.StatusCode),
		slog.String("class", string(result.Class)),
	)...)
}

// syncHeaders は同期APIへ送信するヘッダーを構築する。クライアントIPが空の場合は付与しない。
func (s *Service) syncHeaders(token, clientIP string) map[string]string {
	headers := map[string]string{
		"X-Retainful-Version": s.cfg.PluginVersion,
		"X-Cart-Token":        token,
		"Cart-Token":          token,
	}
	if clientIP != "" {
		headers["X-Client-Referrer-IP"] = clientIP
	}
	return headers
}

func (s *Service) needInstantSync(orderID int64) bool {
	if s.hooks.InstantSync != nil {
		return s.hooks.InstantSync(orderID)
	}
	return s.cfg.InstantOrderSync
}

func formatOptionalTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return cart.FormatTimestamp(*t)
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
