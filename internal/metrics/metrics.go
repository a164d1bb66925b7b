// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	workflowTransitions *prometheus.CounterVec
	jobSubmissions      *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
	upstreamLatency     *prometheus.HistogramVec
	postsPublished      prometheus.Counter
	postsFailed         prometheus.Counter
	workflowsReaped     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workflowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roamjs_workflow_transitions_total",
			Help: "ワークフロー種別・遷移先状態別の遷移数",
		}, []string{"workflow", "status"}),
		jobSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roamjs_job_submissions_total",
			Help: "ジョブ名別の投入数",
		}, []string{"job"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roamjs_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roamjs_upstream_latency_seconds",
			Help:    "外部プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		postsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roamjs_posts_published_total",
			Help: "公開された予約投稿の合計数",
		}),
		postsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roamjs_posts_failed_total",
			Help: "公開に失敗した予約投稿の合計数",
		}),
		workflowsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roamjs_workflows_reaped_total",
			Help: "期限切れとして回収されたワークフローの合計数",
		}),
	}

	reg.MustRegister(
		c.workflowTransitions,
		c.jobSubmissions,
		c.httpStatus,
		c.upstreamLatency,
		c.postsPublished,
		c.postsFailed,
		c.workflowsReaped,
	)

	return c
}

// RecordWorkflowTransition はワークフローの状態遷移を記録する。
func (c *Collector) RecordWorkflowTransition(wfType, status string) {
	c.workflowTransitions.WithLabelValues(wfType, status).Inc()
}

// RecordJobSubmission はジョブ投入を記録する。
func (c *Collector) RecordJobSubmission(name string) {
	c.jobSubmissions.WithLabelValues(name).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は外部プロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(provider string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordPostPublished は予約投稿の公開成功を記録する。
func (c *Collector) RecordPostPublished() {
	c.postsPublished.Inc()
}

// RecordPostFailed は予約投稿の公開失敗を記録する。
func (c *Collector) RecordPostFailed() {
	c.postsFailed.Inc()
}

// RecordReapedWorkflows は回収された期限切れワークフロー数を記録する。
func (c *Collector) RecordReapedWorkflows(count int64) {
	c.workflowsReaped.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// UpstreamRecorder は外部プロバイダー呼び出しのレイテンシ記録インターフェース。
type UpstreamRecorder interface {
	RecordUpstreamLatency(provider string, duration time.Duration)
}

// InstrumentTransport はプロバイダー呼び出しのレイテンシを記録するRoundTripperを返す。
// 各外部プロバイダーのHTTPクライアントのTransportとして設定する。
func InstrumentTransport(provider string, rec UpstreamRecorder, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{provider: provider, rec: rec, base: base}
}

type instrumentedTransport struct {
	provider string
	rec      UpstreamRecorder
	base     http.RoundTripper
}

// RoundTrip はリクエストを転送し、失敗分も含めて所要時間を記録する。
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	t.rec.RecordUpstreamLatency(t.provider, time.Since(start))
	return resp, err
}
