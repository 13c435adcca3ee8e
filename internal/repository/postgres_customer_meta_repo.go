package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresCustomerMetaRepo はPostgreSQLを使用した顧客メタデータリポジトリ。
type PostgresCustomerMetaRepo struct {
	db *sql.DB
}

// NewPostgresCustomerMetaRepo はPostgresCustomerMetaRepoを生成する。
func NewPostgresCustomerMetaRepo(db *sql.DB) *PostgresCustomerMetaRepo {
	return &PostgresCustomerMetaRepo{db: db}
}

// Load は顧客の全メタデータを返す。存在しない場合は空のmapを返す。
func (r *PostgresCustomerMetaRepo) Load(ctx context.Context, customerID int64) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT meta_key, meta_value FROM customer_meta WHERE customer_id = $1`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("顧客メタデータの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("顧客メタデータの読み取りに失敗しました: %w", err)
		}
		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("顧客メタデータの走査に失敗しました: %w", err)
	}

	return values, nil
}

// Set は顧客メタデータを同一トランザクションでUPSERTする。
func (r *PostgresCustomerMetaRepo) Set(ctx context.Context, customerID int64, values map[string]string) error {
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
			`INSERT INTO customer_meta (customer_id, meta_key, meta_value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (customer_id, meta_key) DO UPDATE SET
			    meta_value = EXCLUDED.meta_value, updated_at = now()`,
			customerID, key, values[key],
		)
		if err != nil {
			return fmt.Errorf("顧客メタデータの保存に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Delete は顧客メタデータを削除する。
func (r *PostgresCustomerMetaRepo) Delete(ctx context.Context, customerID int64, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM customer_meta WHERE customer_id = $1 AND meta_key = ANY($2)`,
		customerID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("顧客メタデータの削除に失敗しました: %w", err)
	}
	return nil
}
