package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/repository"
)

// JobHandler はフックに対応するジョブの実行インターフェース。
type JobHandler interface {
	Handle(ctx context.Context, job *model.ScheduledJob) error
}

// JobHandlerFunc は関数をJobHandlerとして扱うアダプター。
type JobHandlerFunc func(ctx context.Context, job *model.ScheduledJob) error

// Handle はf(ctx, job)を呼び出す。
func (f JobHandlerFunc) Handle(ctx context.Context, job *model.ScheduledJob) error {
	return f(ctx, job)
}

// Runner は期限到来ジョブを取得し、フックごとのハンドラーで実行する。
// ティッカー間隔でポーリングし、semaphoreパターンで並列数を制御する。
// 失敗したジョブは失敗状態として記録し、再実行はしない。
type Runner struct {
	jobs           repository.JobRepository
	handlers       map[string]JobHandler
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	batchSize      int
	now            func() time.Time
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewRunner(jobs repository.JobRepository, collector metrics.MetricsCollector, logger *slog.Logger, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Runner{
		jobs:           jobs,
		handlers:       make(map[string]JobHandler),
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		batchSize:      maxConcurrency * 10,
		now:            time.Now,
	}
}

// Register はフックに対するハンドラーを登録する。
func (r *Runner) Register(hook string, h JobHandler) {
	r.handlers[hook] = h
}

// Start は指定間隔のティッカーでジョブの取得・実行を繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ジョブランナーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", r.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("ジョブサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ジョブランナーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("ジョブサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限到来ジョブを1回取得し、並列で実行する。
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 実行対象ジョブを取得（FOR UPDATE SKIP LOCKED）
	jobs, err := r.jobs.ClaimDue(ctx, r.now(), r.batchSize)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		r.logger.Debug("実行対象のジョブはありません")
		return nil
	}

	r.logger.Info("ジョブサイクルを開始します",
		slog.Int("job_count", len(jobs)),
	)

	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}

		go func(j *model.ScheduledJob) {
			defer wg.Done()
			defer func() { <-sem }()
			r.execute(ctx, j)
		}(job)
	}

	wg.Wait()

	r.logger.Info("ジョブサイクルが完了しました",
		slog.Int("job_count", len(jobs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// execute は1件のジョブを実行し、結果をジョブキューに記録する。
func (r *Runner) execute(ctx context.Context, job *model.ScheduledJob) {
	err := r.dispatch(ctx, job)
	if err != nil {
		r.metrics.RecordJobRun(job.Hook, metrics.ResultFailed)
		r.logger.Error("ジョブの実行に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("hook", job.Hook),
			slog.String("error", err.Error()),
		)
		if markErr := r.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			r.logger.Error("ジョブの失敗記録に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
		}
		return
	}

	r.metrics.RecordJobRun(job.Hook, metrics.ResultOK)
	if err := r.jobs.MarkCompleted(ctx, job.ID); err != nil {
		r.logger.Error("ジョブの完了記録に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) dispatch(ctx context.Context, job *model.ScheduledJob) (err error) {
	h, ok := r.handlers[job.Hook]
	if !ok {
		return fmt.Errorf("フックに対応するハンドラーが登録されていません: %s", job.Hook)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ジョブ実行中にpanicが発生しました: %v", rec)
		}
	}()
	return h.Handle(ctx, job)
}
