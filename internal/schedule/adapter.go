// Package schedule は同期処理をバックグラウンドジョブキューへ遅延登録するアダプターと、
// 期限到来ジョブを実行するランナーを提供する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/repository"
)

// DefaultDelay は遅延同期ジョブの既定の実行待ち時間。
const DefaultDelay = 60 * time.Second

// Adapter は注文ごとの遅延同期ジョブを登録する。
// 同一注文に対する保留中ジョブは高々1件となるよう、登録前に既存ジョブを確認する。
type Adapter struct {
	jobs    repository.JobRepository
	delay   time.Duration
	metrics metrics.MetricsCollector
	now     func() time.Time
	logger  *slog.Logger
}

// NewAdapter はAdapterを生成する。delayが0以下の場合はDefaultDelayを使用する。
func NewAdapter(jobs repository.JobRepository, delay time.Duration, collector metrics.MetricsCollector, logger *slog.Logger) *Adapter {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Adapter{
		jobs:    jobs,
		delay:   delay,
		metrics: collector,
		now:     time.Now,
		logger:  logger,
	}
}

// ScheduleDeferredSync は注文の遅延同期ジョブを登録する。
// 同じ注文の保留中ジョブが既にあれば何もしない。
// 既存ジョブの確認自体に失敗した場合は、リカバリー機会を失わないよう登録を優先する。
// 既存確認と登録の間は排他しないため、ほぼ同時の呼び出しでは2件登録されうる。
func (a *Adapter) ScheduleDeferredSync(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return nil
	}
	orderKey := strconv.FormatInt(orderID, 10)

	exists, err := a.jobs.HasPending(ctx, model.HookSyncAbandonedCartOrder, model.JobArgOrderID, orderKey)
	if err != nil {
		a.logger.Warn("保留中ジョブの確認に失敗したため登録を続行します",
			slog.Int64("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	if exists {
		a.metrics.RecordJobDeduped()
		a.logger.Debug("同期ジョブは登録済みです", slog.Int64("order_id", orderID))
		return nil
	}

	job := &model.ScheduledJob{
		Hook:  model.HookSyncAbandonedCartOrder,
		Args:  map[string]string{model.JobArgOrderID: orderKey},
		DueAt: a.now().Add(a.delay),
	}
	if err := a.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("遅延同期ジョブの登録に失敗しました: %w", err)
	}

	a.metrics.RecordJobScheduled()
	a.logger.Info("遅延同期ジョブを登録しました",
		slog.Int64("order_id", orderID),
		slog.String("job_id", job.ID),
		slog.Time("due_at", job.DueAt),
	)
	return nil
}

// OrderIDArg はジョブ引数から注文IDを取り出す。
func OrderIDArg(job *model.ScheduledJob) (int64, error) {
	raw, ok := job.Args[model.JobArgOrderID]
	if !ok {
		return 0, fmt.Errorf("ジョブ引数に注文IDがありません: %s", job.ID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ジョブ引数の注文IDが不正です: %q: %w", raw, err)
	}
	return id, nil
}
