package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/cartsync/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用した遅延実行ジョブリポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

// HasPending は指定フックで、引数argKeyの値がargValueの保留中ジョブが存在するかを返す。
func (r *PostgresJobRepo) HasPending(ctx context.Context, hook, argKey, argValue string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		    SELECT 1 FROM scheduled_jobs
		    WHERE hook = $1 AND args->>$2 = $3 AND status = 'pending'
		 )`,
		hook, argKey, argValue,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("保留中ジョブの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Enqueue はジョブを保留中として登録する。IDが空の場合は採番する。
func (r *PostgresJobRepo) Enqueue(ctx context.Context, job *model.ScheduledJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Args == nil {
		job.Args = map[string]string{}
	}
	args, err := json.Marshal(job.Args)
	if err != nil {
		return fmt.Errorf("ジョブ引数のシリアライズに失敗しました: %w", err)
	}

	job.Status = model.JobStatusPending
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, hook, args, due_at, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Hook, args, job.DueAt, job.Status,
	)
	if err != nil {
		return fmt.Errorf("ジョブの登録に失敗しました: %w", err)
	}
	return nil
}

// ClaimDue はdue_at <= now の保留中ジョブを最大limit件取得し、実行中に更新する。
// FOR UPDATE SKIP LOCKEDで複数ワーカー間の重複取得を防ぐ。
func (r *PostgresJobRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE scheduled_jobs SET status = 'running', attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
		    SELECT id FROM scheduled_jobs
		    WHERE status = 'pending' AND due_at <= $1
		    ORDER BY due_at ASC
		    LIMIT $2
		    FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, hook, args, due_at, status, attempts, error_message, created_at, updated_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("実行対象ジョブの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ScheduledJob
	for rows.Next() {
		job := &model.ScheduledJob{}
		var args []byte
		var errorMessage sql.NullString

		if err := rows.Scan(
			&job.ID, &job.Hook, &args, &job.DueAt, &job.Status,
			&job.Attempts, &errorMessage, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("実行対象ジョブの読み取りに失敗しました: %w", err)
		}
		if err := json.Unmarshal(args, &job.Args); err != nil {
			return nil, fmt.Errorf("ジョブ引数の読み取りに失敗しました: %w", err)
		}
		job.ErrorMessage = nullStringValue(errorMessage)

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("実行対象ジョブの走査に失敗しました: %w", err)
	}

	return jobs, nil
}

// MarkCompleted はジョブを完了状態にする。
func (r *PostgresJobRepo) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = 'completed', error_message = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("ジョブの完了更新に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed はジョブを失敗状態にし、エラーメッセージを記録する。
func (r *PostgresJobRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = 'failed', error_message = $2, updated_at = now() WHERE id = $1`,
		id, nullString(errorMessage),
	)
	if err != nil {
		return fmt.Errorf("ジョブの失敗更新に失敗しました: %w", err)
	}
	return nil
}

// staleJobMessage は実行中のまま放置されたジョブに記録するエラーメッセージ。
const staleJobMessage = "実行中のまま一定時間更新されなかったため中断しました"

// FailStaleRunning は指定日時より前から実行中のままのジョブを失敗状態にし、更新件数を返す。
// ワーカーが処理途中で停止した場合に残る行を削除対象に戻す。
func (r *PostgresJobRepo) FailStaleRunning(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = 'failed', error_message = $2, updated_at = now()
		 WHERE status = 'running' AND updated_at < $1`,
		before, staleJobMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("停止ジョブの失敗更新に失敗しました: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return updated, nil
}

// DeleteFinishedBefore は指定日時より前に更新された完了・失敗ジョブを削除し、削除件数を返す。
func (r *PostgresJobRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_jobs WHERE status IN ('completed', 'failed') AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("完了済みジョブの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}
