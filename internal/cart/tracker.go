package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/repository"
)

// identityKeys はログイン済み顧客とゲストで保存先が切り替わる項目のキー対応。
// 顧客は顧客メタデータ（Meta*）、ゲストはセッション（Session*）に保存する。
var identityKeys = struct {
	token, pending, startedAt, userIP, previousHash [2]string
}{
	token:     [2]string{model.MetaCartToken, model.SessionCartToken},
	pending:   [2]string{model.MetaPendingRecovery, model.SessionPendingRecovery},
	startedAt: [2]string{model.MetaTrackingStartedAt, model.SessionTrackingStartedAt},
	userIP:    [2]string{model.MetaUserIP, model.SessionUserIP},

	previousHash: [2]string{model.MetaPreviousCartHash, model.SessionPreviousCartHash},
}

// sessionTempKeys は購入完了・リセット時にセッションから削除する一時データのキー。
var sessionTempKeys = []string{
	model.SessionCartToken,
	model.SessionPendingRecovery,
	model.SessionTrackingStartedAt,
	model.SessionPreviousCartHash,
	model.SessionForceRefreshCart,
	model.SessionRecoveredAt,
	model.SessionCurrentCartHash,
	model.SessionRecoveredBy,
	model.SessionRecoveredCartToken,
}

// customerTempKeys は顧客メタデータから削除する一時データのキー。
var customerTempKeys = []string{
	model.MetaCartToken,
	model.MetaPendingRecovery,
	model.MetaTrackingStartedAt,
	model.MetaUserIP,
	model.MetaPreviousCartHash,
}

// TrackingFilter はIPアドレスに対してカート追跡を許可するかを判定する。
type TrackingFilter func(ip string) bool

// Tracker は訪問者ごとのカート追跡状態を管理する。
// 訪問者の識別区分ごとに保存先は1つだけであり、二重に保持しない。
type Tracker struct {
	sessions      repository.SessionStore
	customers     repository.CustomerMetaRepository
	priceDecimals int32
	canTrack      TrackingFilter
	now           func() time.Time
	logger        *slog.Logger
}

// NewTracker はTrackerを生成する。
func NewTracker(sessions repository.SessionStore, customers repository.CustomerMetaRepository, priceDecimals int32, logger *slog.Logger) *Tracker {
	return &Tracker{
		sessions:      sessions,
		customers:     customers,
		priceDecimals: priceDecimals,
		canTrack:      func(string) bool { return true },
		now:           time.Now,
		logger:        logger,
	}
}

// SetTrackingFilter はカート追跡の可否を判定するフィルタを設定する。
func (t *Tracker) SetTrackingFilter(f TrackingFilter) {
	if f != nil {
		t.canTrack = f
	}
}

// CanTrack は指定IPからのカートを追跡してよいかを返す。
func (t *Tracker) CanTrack(ip string) bool {
	return t.canTrack(ip)
}

// PriceDecimals はフィンガープリント計算に使う金額の小数桁数を返す。
func (t *Tracker) PriceDecimals() int32 {
	return t.priceDecimals
}

// Load は訪問者のカート追跡状態を読み込む。
func (t *Tracker) Load(ctx context.Context, v model.Visitor) (*model.CartSession, error) {
	identity, session, err := t.loadRaw(ctx, v)
	if err != nil {
		return nil, err
	}
	idx := identityIndex(v)

	state := &model.CartSession{
		CartToken:          identity[identityKeys.token[idx]],
		PendingRecovery:    ParseFlag(identity[identityKeys.pending[idx]]),
		TrackingStartedAt:  ParseTimestamp(identity[identityKeys.startedAt[idx]]),
		UserIP:             FormatUserIP(identity[identityKeys.userIP[idx]]),
		PreviousCartHash:   identity[identityKeys.previousHash[idx]],
		AcceptsMarketing:   v.IsLoggedIn() || session[model.SessionAcceptsMarketing] == "1",
		RecoveredAt:        ParseTimestamp(session[model.SessionRecoveredAt]),
		RecoveredBy:        session[model.SessionRecoveredBy],
		RecoveredCartToken: session[model.SessionRecoveredCartToken],
	}
	return state, nil
}

// RetrieveCartToken は訪問者のカートトークンを返す。未発行の場合は空文字を返す。
func (t *Tracker) RetrieveCartToken(ctx context.Context, v model.Visitor) (string, error) {
	identity, err := t.loadIdentity(ctx, v)
	if err != nil {
		return "", err
	}
	return identity[identityKeys.token[identityIndex(v)]], nil
}

// IsPendingRecovery はカートがリカバリー待ちかを返す。
func (t *Tracker) IsPendingRecovery(ctx context.Context, v model.Visitor) (bool, error) {
	identity, err := t.loadIdentity(ctx, v)
	if err != nil {
		return false, err
	}
	return ParseFlag(identity[identityKeys.pending[identityIndex(v)]]), nil
}

// TrackingStartedAt はカート追跡の開始日時を返す。未開始の場合はnilを返す。
func (t *Tracker) TrackingStartedAt(ctx context.Context, v model.Visitor) (*time.Time, error) {
	identity, err := t.loadIdentity(ctx, v)
	if err != nil {
		return nil, err
	}
	return ParseTimestamp(identity[identityKeys.startedAt[identityIndex(v)]]), nil
}

// UserIP は保存済みの訪問者IPを整形して返す。
func (t *Tracker) UserIP(ctx context.Context, v model.Visitor) (string, error) {
	identity, err := t.loadIdentity(ctx, v)
	if err != nil {
		return "", err
	}
	return FormatUserIP(identity[identityKeys.userIP[identityIndex(v)]]), nil
}

// AcceptsMarketing は購入者がマーケティングに同意しているかを返す。
// ログイン済み顧客は常に同意扱い、ゲストはセッションのフラグが1の場合のみ同意とする。
func (t *Tracker) AcceptsMarketing(ctx context.Context, v model.Visitor) (bool, error) {
	if v.IsLoggedIn() {
		return true, nil
	}
	if v.SessionID == "" {
		return false, nil
	}
	session, err := t.sessions.Load(ctx, v.SessionID)
	if err != nil {
		return false, err
	}
	return session[model.SessionAcceptsMarketing] == "1", nil
}

// SetAcceptsMarketing はゲストのマーケティング同意フラグを保存する。
func (t *Tracker) SetAcceptsMarketing(ctx context.Context, v model.Visitor, accepts bool) error {
	if v.SessionID == "" {
		return nil
	}
	value := "0"
	if accepts {
		value = "1"
	}
	return t.sessions.Set(ctx, v.SessionID, map[string]string{model.SessionAcceptsMarketing: value})
}

// EnsureCartToken はカートトークンが未発行なら発行し、追跡開始日時とIPを記録する。
// 戻り値のcreatedは今回新規に発行したかを示す。
func (t *Tracker) EnsureCartToken(ctx context.Context, v model.Visitor) (token string, created bool, err error) {
	token, err = t.RetrieveCartToken(ctx, v)
	if err != nil {
		return "", false, err
	}
	if token != "" {
		return token, false, nil
	}

	token, err = GenerateToken()
	if err != nil {
		return "", false, err
	}

	idx := identityIndex(v)
	values := map[string]string{
		identityKeys.token[idx]:     token,
		identityKeys.startedAt[idx]: FormatTimestamp(t.now()),
	}
	if ip := FormatUserIP(v.IP); ip != "" {
		values[identityKeys.userIP[idx]] = ip
	}
	if err := t.writeIdentity(ctx, v, values); err != nil {
		return "", false, err
	}

	t.logger.Debug("カートトークンを発行しました",
		slog.Int64("customer_id", v.CustomerID),
		slog.Bool("logged_in", v.IsLoggedIn()),
	)
	return token, true, nil
}

// TrackCart はカート更新を記録し、前回から内容が変化したかを返す。
// 空のカートや追跡不可のIPからの更新は記録しない。
func (t *Tracker) TrackCart(ctx context.Context, v model.Visitor, c *model.Cart) (changed bool, err error) {
	if c.IsEmpty() || !t.canTrack(v.IP) {
		return false, nil
	}
	if v.SessionID == "" && !v.IsLoggedIn() {
		return false, nil
	}

	if _, _, err := t.EnsureCartToken(ctx, v); err != nil {
		return false, err
	}

	hash := Fingerprint(c, t.priceDecimals)
	identity, err := t.loadIdentity(ctx, v)
	if err != nil {
		return false, err
	}
	idx := identityIndex(v)
	if hash == identity[identityKeys.previousHash[idx]] {
		return false, nil
	}

	values := map[string]string{identityKeys.previousHash[idx]: hash}
	if !v.IsLoggedIn() {
		values[model.SessionCurrentCartHash] = hash
	}
	if err := t.writeIdentity(ctx, v, values); err != nil {
		return false, err
	}
	return true, nil
}

// SetRecovered はリカバリーリンク経由でカートが復元されたことを記録する。
func (t *Tracker) SetRecovered(ctx context.Context, v model.Visitor, recoveredToken string) error {
	if v.SessionID != "" {
		err := t.sessions.Set(ctx, v.SessionID, map[string]string{
			model.SessionRecoveredAt:        FormatTimestamp(t.now()),
			model.SessionRecoveredBy:        model.RecoveredByValue,
			model.SessionRecoveredCartToken: recoveredToken,
		})
		if err != nil {
			return err
		}
	}
	idx := identityIndex(v)
	return t.writeIdentity(ctx, v, map[string]string{identityKeys.pending[idx]: "1"})
}

// ClearTempData はセッションの一時データを削除し、ログイン済みなら顧客メタデータの一時データも削除する。
func (t *Tracker) ClearTempData(ctx context.Context, v model.Visitor) error {
	if v.SessionID != "" {
		if err := t.sessions.Delete(ctx, v.SessionID, sessionTempKeys...); err != nil {
			return fmt.Errorf("セッション一時データの削除に失敗しました: %w", err)
		}
	}
	if v.IsLoggedIn() {
		return t.RemoveCustomerTempData(ctx, v.CustomerID)
	}
	return nil
}

// RemoveCustomerTempData は顧客メタデータからカートトークン等の一時データを削除する。
func (t *Tracker) RemoveCustomerTempData(ctx context.Context, customerID int64) error {
	if customerID <= 0 {
		return nil
	}
	if err := t.customers.Delete(ctx, customerID, customerTempKeys...); err != nil {
		return fmt.Errorf("顧客一時データの削除に失敗しました: %w", err)
	}
	return nil
}

// loadRaw は識別区分側の保存先とセッションの両方を読み込む。
func (t *Tracker) loadRaw(ctx context.Context, v model.Visitor) (identity, session map[string]string, err error) {
	session = map[string]string{}
	if v.SessionID != "" {
		session, err = t.sessions.Load(ctx, v.SessionID)
		if err != nil {
			return nil, nil, err
		}
	}
	if !v.IsLoggedIn() {
		return session, session, nil
	}
	identity, err = t.customers.Load(ctx, v.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	return identity, session, nil
}

func (t *Tracker) loadIdentity(ctx context.Context, v model.Visitor) (map[string]string, error) {
	if v.IsLoggedIn() {
		return t.customers.Load(ctx, v.CustomerID)
	}
	if v.SessionID == "" {
		return map[string]string{}, nil
	}
	return t.sessions.Load(ctx, v.SessionID)
}

func (t *Tracker) writeIdentity(ctx context.Context, v model.Visitor, values map[string]string) error {
	if v.IsLoggedIn() {
		return t.customers.Set(ctx, v.CustomerID, values)
	}
	if v.SessionID == "" {
		return model.ErrMissingVisitor
	}
	return t.sessions.Set(ctx, v.SessionID, values)
}

// identityIndex はidentityKeysの添字を返す。0=顧客メタデータ, 1=セッション。
func identityIndex(v model.Visitor) int {
	if v.IsLoggedIn() {
		return 0
	}
	return 1
}

// ParseFlag はメタデータに保存された真偽値文字列を解釈する。
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// FormatTimestamp はメタデータ保存用にUNIX秒の文字列へ変換する。
func FormatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// ParseTimestamp はメタデータに保存されたUNIX秒の文字列を解釈する。空・不正な値はnilを返す。
func ParseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
