// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthSuccess()
	RecordAuthFailure(reason string)
	RecordJWKSRefresh(success bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTaskMutation(operation string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authSuccess    prometheus.Counter
	authFail       *prometheus.CounterVec
	jwksRefresh    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	taskMutations  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_auth_success_total",
			Help: "トークン検証成功の合計数",
		}),
		authFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_auth_fail_total",
			Help: "トークン検証失敗の合計数（理由別）",
		}, []string{"reason"}),
		jwksRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_jwks_refresh_total",
			Help: "JWKS再取得の合計数（結果別）",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskboard_request_latency_seconds",
			Help:    "リクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		taskMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_task_mutations_total",
			Help: "タスク変更操作の合計数（操作別）",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.authSuccess,
		c.authFail,
		c.jwksRefresh,
		c.httpStatus,
		c.requestLatency,
		c.taskMutations,
	)

	return c
}

// RecordAuthSuccess はトークン検証成功を記録する。
func (c *Collector) RecordAuthSuccess() {
	c.authSuccess.Inc()
}

// RecordAuthFailure はトークン検証失敗を理由付きで記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFail.WithLabelValues(reason).Inc()
}

// RecordJWKSRefresh はJWKS再取得の結果を記録する。
func (c *Collector) RecordJWKSRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.jwksRefresh.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTaskMutation はタスク変更操作（create/update/delete）を記録する。
func (c *Collector) RecordTaskMutation(operation string) {
	c.taskMutations.WithLabelValues(operation).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
