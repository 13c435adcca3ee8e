// Package remote は暗号化済みのカート/注文データを同期APIへ送信するクライアントを提供する。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cartsync/internal/metrics"
	"golang.org/x/time/rate"
)

// DefaultEndpoint は同期APIの既定エンドポイント。
const DefaultEndpoint = "https://api.retainful.com/v1/woocommerce/webhooks/checkout"

// maxErrorBodyBytes はエラーレスポンスをログに残す際に読み取る最大バイト数。
const maxErrorBodyBytes = 512

// maxDrainBytes は接続を再利用するために読み捨てるレスポンスボディの上限。
const maxDrainBytes = 64 << 10

// Class は同期APIのレスポンス分類。
type Class string

const (
	// ClassOK は受理されたことを示す。
	ClassOK Class = "ok"
	// ClassRejected はリクエスト内容が拒否されたことを示す。再送しても結果は変わらない。
	ClassRejected Class = "rejected"
	// ClassTransient は一時的な失敗（タイムアウト・5xx・429など）を示す。
	ClassTransient Class = "transient"
)

// Result は同期API呼び出しの結果。
type Result struct {
	StatusCode int
	Class      Class
}

// OK は送信が受理されたかを返す。
func (r Result) OK() bool {
	return r.Class == ClassOK
}

// Client は同期APIのクライアント。
// 送信レートはrate.Limiterで制限し、タイムアウトはhttp.Clientに委ねる。
type Client struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientを生成する。ratePerSecが0以下の場合はレート制限を行わない。
func NewClient(httpClient *http.Client, endpoint string, ratePerSec float64, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = max(1, int(ratePerSec))
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    collector,
		logger:     logger,
	}
}

// SyncCartDetails は暗号化済みデータを {"data": blob} として同期APIへPOSTする。
// headersはそのままリクエストヘッダーに設定する。
// 通信自体に失敗した場合はClassTransientの結果とエラーを返す。
// HTTPレスポンスを得られた場合はステータスに応じて分類し、エラーはnilとする。
func (c *Client) SyncCartDetails(ctx context.Context, appID, blob string, headers map[string]string) (Result, error) {
	transient := Result{Class: ClassTransient}

	if err := c.limiter.Wait(ctx); err != nil {
		return transient, fmt.Errorf("送信レート制限の待機に失敗しました: %w", err)
	}

	body, err := json.Marshal(map[string]string{"data": blob})
	if err != nil {
		return transient, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return transient, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "cartsync/1.0")
	req.Header.Set("app-id", appID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordTransportLatency(time.Since(start))
	if err != nil {
		c.logger.Error("同期APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("endpoint", c.endpoint),
		)
		return transient, fmt.Errorf("同期APIの呼び出しに失敗しました: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		resp.Body.Close()
	}()

	c.metrics.RecordTransportStatus(resp.StatusCode)
	result := Result{StatusCode: resp.StatusCode, Class: Classify(resp.StatusCode)}
	if !result.OK() {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("同期APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("class", string(result.Class)),
			slog.String("body", string(snippet)),
		)
	}
	return result, nil
}

// Classify はHTTPステータスコードを分類する。
// 2xxは受理、408・429・5xxは一時的失敗、それ以外は拒否とする。
func Classify(statusCode int) Class {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ClassOK
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return ClassTransient
	default:
		return ClassRejected
	}
}
