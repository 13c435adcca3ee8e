package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/lib/pq"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// FindByID は指定IDの注文を明細付きで取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id int64) (*model.Order, error) {
	order := &model.Order{}
	var billing, shipping []byte
	var datePaid sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, number, customer_id, status, currency, currency_rate,
		        subtotal, discount_total, shipping_total, tax_total, total,
		        billing_email, billing, shipping, date_paid, created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(
		&order.ID, &order.Number, &order.CustomerID, &order.Status, &order.Currency, &order.CurrencyRate,
		&order.SubTotal, &order.DiscountTotal, &order.ShippingTotal, &order.TaxTotal, &order.Total,
		&order.BillingEmail, &billing, &shipping, &datePaid, &order.CreatedAt, &order.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(billing, &order.Billing); err != nil {
		return nil, fmt.Errorf("請求先住所の読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(shipping, &order.Shipping); err != nil {
		return nil, fmt.Errorf("配送先住所の読み取りに失敗しました: %w", err)
	}
	if datePaid.Valid {
		paid := datePaid.Time
		order.DatePaid = &paid
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *PostgresOrderRepo) listItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id, product_id, variation_id, sku, name, quantity, unit_price, line_total, line_tax
		 FROM order_items WHERE order_id = $1 ORDER BY position ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文明細の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.VariationID, &item.SKU, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &item.LineTax,
		); err != nil {
			return nil, fmt.Errorf("注文明細の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文明細の走査に失敗しました: %w", err)
	}

	return items, nil
}

// Save は注文と明細を同一トランザクションでUPSERTする。明細は全件置き換える。
func (r *PostgresOrderRepo) Save(ctx context.Context, order *model.Order) error {
	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return fmt.Errorf("請求先住所のシリアライズに失敗しました: %w", err)
	}
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("配送先住所のシリアライズに失敗しました: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (
		    id, number, customer_id, status, currency, currency_rate,
		    subtotal, discount_total, shipping_total, tax_total, total,
		    billing_email, billing, shipping, date_paid, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		    number = EXCLUDED.number, customer_id = EXCLUDED.customer_id,
		    status = EXCLUDED.status, currency = EXCLUDED.currency,
		    currency_rate = EXCLUDED.currency_rate, subtotal = EXCLUDED.subtotal,
		    discount_total = EXCLUDED.discount_total, shipping_total = EXCLUDED.shipping_total,
		    tax_total = EXCLUDED.tax_total, total = EXCLUDED.total,
		    billing_email = EXCLUDED.billing_email, billing = EXCLUDED.billing,
		    shipping = EXCLUDED.shipping,
		    date_paid = COALESCE(orders.date_paid, EXCLUDED.date_paid),
		    updated_at = EXCLUDED.updated_at`,
		order.ID, order.Number, order.CustomerID, order.Status, order.Currency, order.CurrencyRate,
		order.SubTotal, order.DiscountTotal, order.ShippingTotal, order.TaxTotal, order.Total,
		order.BillingEmail, billing, shipping, nullTime(order.DatePaid), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("注文の保存に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("注文明細の削除に失敗しました: %w", err)
	}

	for i, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (
			    order_id, position, item_id, product_id, variation_id, sku, name,
			    quantity, unit_price, line_total, line_tax
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			order.ID, i, item.ID, item.ProductID, item.VariationID, item.SKU, item.Name,
			item.Quantity, item.UnitPrice, item.LineTotal, item.LineTax,
		)
		if err != nil {
			return fmt.Errorf("注文明細の保存に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// UpdateStatus は注文ステータスを更新する。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("注文ステータスの更新に失敗しました: %w", err)
	}
	return requireAffected(result, id)
}

// MarkPaid は支払日時を記録する。既に記録済みの場合は上書きしない。
func (r *PostgresOrderRepo) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET date_paid = COALESCE(date_paid, $2), updated_at = now() WHERE id = $1`,
		id, paidAt,
	)
	if err != nil {
		return fmt.Errorf("支払日時の更新に失敗しました: %w", err)
	}
	return requireAffected(result, id)
}

// GetMeta は注文メタデータの値を返す。存在しない場合は空文字を返す。
func (r *PostgresOrderRepo) GetMeta(ctx context.Context, orderID int64, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT meta_value FROM order_meta WHERE order_id = $1 AND meta_key = $2`,
		orderID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("注文メタデータの取得に失敗しました: %w", err)
	}
	return value, nil
}

// ListMeta は注文の全メタデータを返す。存在しない場合は空のmapを返す。
func (r *PostgresOrderRepo) ListMeta(ctx context.Context, orderID int64) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文メタデータ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("注文メタデータの読み取りに失敗しました: %w", err)
		}
		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文メタデータの走査に失敗しました: %w", err)
	}

	return values, nil
}

// SetMeta は注文メタデータを同一トランザクションでUPSERTする。
func (r *PostgresOrderRepo) SetMeta(ctx context.Context, orderID int64, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, key := range sortedKeys(values) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_meta (order_id, meta_key, meta_value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (order_id, meta_key) DO UPDATE SET
			    meta_value = EXCLUDED.meta_value, updated_at = now()`,
			orderID, key, values[key],
		)
		if err != nil {
			return fmt.Errorf("注文メタデータの保存に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteMeta は注文メタデータを削除する。存在しないキーは無視する。
func (r *PostgresOrderRepo) DeleteMeta(ctx context.Context, orderID int64, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM order_meta WHERE order_id = $1 AND meta_key = ANY($2)`,
		orderID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("注文メタデータの削除に失敗しました: %w", err)
	}
	return nil
}

// AddNote は注文メモを追加する。
func (r *PostgresOrderRepo) AddNote(ctx context.Context, orderID int64, note string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`,
		orderID, note,
	)
	if err != nil {
		return fmt.Errorf("注文メモの追加に失敗しました: %w", err)
	}
	return nil
}

// HasNote は同一内容の注文メモが既に存在するかを返す。
func (r *PostgresOrderRepo) HasNote(ctx context.Context, orderID int64, note string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM order_notes WHERE order_id = $1 AND note = $2)`,
		orderID, note,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("注文メモの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// requireAffected は更新対象の注文が存在しない場合にErrOrderNotFoundを返す。
func requireAffected(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("注文 %d: %w", id, model.ErrOrderNotFound)
	}
	return nil
}

// nullTime はnilをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// sortedKeys はmapのキーを昇順で返す。SQLの発行順を決定的にするために使う。
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
