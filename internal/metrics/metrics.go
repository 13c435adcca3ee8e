// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期結果のラベル値。
const (
	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultTransient = "transient"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期オーケストレーター・送信クライアント・ジョブランナーから利用する。
type MetricsCollector interface {
	RecordSyncResult(kind, result string)
	RecordTransportStatus(statusCode int)
	RecordTransportLatency(duration time.Duration)
	RecordJobScheduled()
	RecordJobDeduped()
	RecordJobRun(hook, result string)
	RecordJobsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncResults      *prometheus.CounterVec
	transportStatus  *prometheus.CounterVec
	transportLatency prometheus.Histogram
	jobsScheduled    prometheus.Counter
	jobsDeduped      prometheus.Counter
	jobsRun          *prometheus.CounterVec
	jobsPurged       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartsync_sync_total",
			Help: "種別（order/cart）・結果別の同期処理数",
		}, []string{"kind", "result"}),
		transportStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartsync_transport_status_total",
			Help: "同期APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		transportLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartsync_transport_latency_seconds",
			Help:    "同期API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		jobsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_jobs_scheduled_total",
			Help: "登録された遅延同期ジョブの合計数",
		}),
		jobsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_jobs_deduped_total",
			Help: "保留中ジョブが存在したため登録を省略した合計数",
		}),
		jobsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartsync_jobs_run_total",
			Help: "フック・結果別のジョブ実行数",
		}, []string{"hook", "result"}),
		jobsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_jobs_purged_total",
			Help: "保持期間を過ぎて削除された完了済みジョブの合計数",
		}),
	}

	reg.MustRegister(
		c.syncResults,
		c.transportStatus,
		c.transportLatency,
		c.jobsScheduled,
		c.jobsDeduped,
		c.jobsRun,
		c.jobsPurged,
	)

	return c
}

// RecordSyncResult は同期処理の結果を記録する。
func (c *Collector) RecordSyncResult(kind, result string) {
	c.syncResults.WithLabelValues(kind, result).Inc()
}

// RecordTransportStatus は同期APIのHTTPステータスコードを記録する。
func (c *Collector) RecordTransportStatus(statusCode int) {
	c.transportStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTransportLatency は同期API呼び出しのレイテンシを記録する。
func (c *Collector) RecordTransportLatency(duration time.Duration) {
	c.transportLatency.Observe(duration.Seconds())
}

// RecordJobScheduled はジョブ登録を記録する。
func (c *Collector) RecordJobScheduled() {
	c.jobsScheduled.Inc()
}

// RecordJobDeduped は重複によるジョブ登録省略を記録する。
func (c *Collector) RecordJobDeduped() {
	c.jobsDeduped.Inc()
}

// RecordJobRun はジョブの実行結果を記録する。
func (c *Collector) RecordJobRun(hook, result string) {
	c.jobsRun.WithLabelValues(hook, result).Inc()
}

// RecordJobsPurged は削除したジョブ数を記録する。
func (c *Collector) RecordJobsPurged(count int64) {
	c.jobsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても収集できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// NewWorkerMux はワーカープロセス用に/metricsと/healthを提供するハンドラーを返す。
// ワーカーはAPIサーバーを持たないため、/healthはコンテナのヘルスチェックに使う。
func NewWorkerMux(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	return mux
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordSyncResult(string, string)      {}
func (NopCollector) RecordTransportStatus(int)            {}
func (NopCollector) RecordTransportLatency(time.Duration) {}
func (NopCollector) RecordJobScheduled()                  {}
func (NopCollector) RecordJobDeduped()                    {}
func (NopCollector) RecordJobRun(string, string)          {}
func (NopCollector) RecordJobsPurged(int64)               {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
