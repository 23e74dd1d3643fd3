// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// APIクライアント、スロットル、パイプラインの各記録先インターフェースを満たす。
type Collector struct {
	requests        *prometheus.CounterVec
	requestFailures *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	pages           prometheus.Counter
	workouts        *prometheus.CounterVec
	throttleWait    prometheus.Histogram
	runs            *prometheus.CounterVec
	lastRunDuration prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pelotonexport_api_requests_total",
			Help: "Peloton APIへのリクエスト数（エンドポイント・ステータスコード別）",
		}, []string{"endpoint", "status_code"}),
		requestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pelotonexport_api_request_failures_total",
			Help: "応答を得られなかったPeloton APIリクエスト数",
		}, []string{"endpoint"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pelotonexport_api_request_duration_seconds",
			Help:    "Peloton APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pelotonexport_listing_pages_total",
			Help: "取得したワークアウト一覧のページ数",
		}),
		workouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pelotonexport_workouts_total",
			Help: "処理したワークアウト数（結果別）",
		}, []string{"outcome"}),
		throttleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pelotonexport_throttle_wait_seconds",
			Help:    "スロットルで待機した時間（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pelotonexport_runs_total",
			Help: "エクスポート実行数（終了状態別）",
		}, []string{"state"}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pelotonexport_last_run_duration_seconds",
			Help: "直近のエクスポート実行にかかった時間（秒）",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestFailures,
		c.requestLatency,
		c.pages,
		c.workouts,
		c.throttleWait,
		c.runs,
		c.lastRunDuration,
	)

	return c
}

// RecordRequest は応答を得たリクエストを記録する。
func (c *Collector) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.requestLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRequestFailure は通信エラーで応答を得られなかったリクエストを記録する。
func (c *Collector) RecordRequestFailure(endpoint string) {
	c.requestFailures.WithLabelValues(endpoint).Inc()
}

// RecordPageFetched は一覧ページの取得を記録する。
func (c *Collector) RecordPageFetched() {
	c.pages.Inc()
}

// RecordThrottleWait はスロットルの待機時間を記録する。
func (c *Collector) RecordThrottleWait(d time.Duration) {
	c.throttleWait.Observe(d.Seconds())
}

// RecordWorkoutOutcome はワークアウト1件の処理結果を記録する。
func (c *Collector) RecordWorkoutOutcome(outcome model.ExportOutcome) {
	c.workouts.WithLabelValues(string(outcome)).Inc()
}

// RecordRun は実行の終了状態と所要時間を記録する。
func (c *Collector) RecordRun(state model.RunState, duration time.Duration) {
	c.runs.WithLabelValues(string(state)).Inc()
	c.lastRunDuration.Set(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile はnode_exporterのtextfileコレクター向けにメトリクスをファイルへ書き出す。
func WriteTextfile(gatherer prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("メトリクスファイルの書き出しに失敗しました: %w", err)
	}
	return nil
}
