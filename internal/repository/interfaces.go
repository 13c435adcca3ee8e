// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
)

// OrderRepository はホスト側注文ストアのミラーに対する永続化インターフェース。
// 注文本体に加え、注文メタデータと注文メモを扱う。
type OrderRepository interface {
	// FindByID は指定IDの注文を明細付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Order, error)

	// Save は注文と明細をUPSERTする。明細は全件置き換える。
	Save(ctx context.Context, order *model.Order) error

	// UpdateStatus は注文ステータスを更新する。
	UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error

	// MarkPaid は支払日時を記録する。既に記録済みの場合は上書きしない。
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error

	// GetMeta は注文メタデータの値を返す。存在しない場合は空文字を返す。
	GetMeta(ctx context.Context, orderID int64, key string) (string, error)

	// ListMeta は注文の全メタデータを返す。存在しない場合は空のmapを返す。
	ListMeta(ctx context.Context, orderID int64) (map[string]string, error)

	// SetMeta は注文メタデータを同一トランザクションでUPSERTする。
	SetMeta(ctx context.Context, orderID int64, values map[string]string) error

	// DeleteMeta は注文メタデータを削除する。存在しないキーは無視する。
	DeleteMeta(ctx context.Context, orderID int64, keys ...string) error

	// AddNote は注文メモを追加する。
	AddNote(ctx context.Context, orderID int64, note string) error

	// HasNote は同一内容の注文メモが既に存在するかを返す。
	HasNote(ctx context.Context, orderID int64, note string) (bool, error)
}

// CustomerMetaRepository はログイン済み顧客のメタデータの永続化インターフェース。
// ログイン済み顧客のカート追跡状態はここが唯一の保存先となる。
type CustomerMetaRepository interface {
	// Load は顧客の全メタデータを返す。存在しない場合は空のmapを返す。
	Load(ctx context.Context, customerID int64) (map[string]string, error)

	// Set は顧客メタデータをUPSERTする。
	Set(ctx context.Context, customerID int64, values map[string]string) error

	// Delete は顧客メタデータを削除する。
	Delete(ctx context.Context, customerID int64, keys ...string) error
}

// SessionStore はゲスト訪問者のセッションデータの保存先インターフェース。
type SessionStore interface {
	// Load はセッションの全データを返す。期限切れ・未作成の場合は空のmapを返す。
	Load(ctx context.Context, sessionID string) (map[string]string, error)

	// Set はセッションデータを書き込み、有効期限を延長する。
	Set(ctx context.Context, sessionID string, values map[string]string) error

	// Delete はセッションデータを削除する。
	Delete(ctx context.Context, sessionID string, keys ...string) error
}

// JobRepository は遅延実行ジョブキューの永続化インターフェース。
type JobRepository interface {
	// HasPending は指定フックで、引数argKeyの値がargValueの保留中ジョブが存在するかを返す。
	HasPending(ctx context.Context, hook, argKey, argValue string) (bool, error)

	// Enqueue はジョブを保留中として登録する。IDが空の場合は採番する。
	Enqueue(ctx context.Context, job *model.ScheduledJob) error

	// ClaimDue はdue_at <= now の保留中ジョブを最大limit件取得し、実行中に更新する。
	// FOR UPDATE SKIP LOCKEDで複数ワーカー間の重複取得を防ぐ。
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error)

	// MarkCompleted はジョブを完了状態にする。
	MarkCompleted(ctx context.Context, id string) error

	// MarkFailed はジョブを失敗状態にし、エラーメッセージを記録する。
	MarkFailed(ctx context.Context, id string, errorMessage string) error

	// FailStaleRunning は指定日時より前から実行中のままのジョブを失敗状態にし、更新件数を返す。
	FailStaleRunning(ctx context.Context, before time.Time) (int64, error)

	// DeleteFinishedBefore は指定日時より前に更新された完了・失敗ジョブを削除し、削除件数を返す。
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
