// Package cleanup は完了済みジョブの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した完了・失敗ジョブを日次バッチで削除する。
// 実行中のまま更新が止まったジョブは先に失敗状態へ移し、以降の削除対象に含める。
// 注文に付与された同期状態メタデータは監査証跡として残し、削除対象に含めない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cartsync/internal/metrics"
)

const (
	// DefaultRetentionDays は完了済みジョブの既定の保持日数。
	DefaultRetentionDays = 30
	// DefaultStaleAfter は実行中ジョブを停止とみなすまでの既定時間。
	DefaultStaleAfter = time.Hour
)

// JobPurger は完了済みジョブの削除を抽象化するインターフェース。
// repository.JobRepository が満たす。
type JobPurger interface {
	FailStaleRunning(ctx context.Context, before time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した完了済みジョブの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	jobs          JobPurger
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int           // ジョブの保持日数（デフォルト: 30）
	StaleAfter    time.Duration // 実行中ジョブを停止とみなすまでの時間（デフォルト: 1h）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(jobs JobPurger, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &CleanupJob{
		jobs:          jobs,
		metrics:       collector,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
		StaleAfter:    DefaultStaleAfter,
	}
}

// Run は保持期間を超過した完了・失敗ジョブを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	staleCount, err := j.jobs.FailStaleRunning(ctx, now.Add(-j.StaleAfter))
	if err != nil {
		j.logger.Error("停止ジョブの回収に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("stale_after", j.StaleAfter),
		)
		return fmt.Errorf("停止ジョブの回収に失敗: %w", err)
	}
	if staleCount > 0 {
		j.logger.Warn("実行中のまま停止していたジョブを失敗にしました",
			slog.Int64("stale_count", staleCount),
			slog.Duration("stale_after", j.StaleAfter),
		)
	}

	before := now.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.jobs.DeleteFinishedBefore(ctx, before)
	if err != nil {
		j.logger.Error("ジョブクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ジョブクリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordJobsPurged(deletedCount)
	j.logger.Info("ジョブクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は指定間隔でRunを繰り返す。コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_ = j.Run(ctx)
		}
	}
}
