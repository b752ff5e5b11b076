// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はサービス層・ミドルウェア・ワーカーが使うメトリクス記録のインターフェース。
type Recorder interface {
	RecordMemorialCreated()
	RecordMemorialPublished(amount int64)
	RecordHug()
	RecordGuestbookEntry()
	RecordUploads(count int)
	RecordUpstreamFailure(service string)
	RecordPaymentOrdersExpired(count int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	memorialsCreated   prometheus.Counter
	memorialsPublished prometheus.Counter
	revenue            prometheus.Counter
	hugs               prometheus.Counter
	guestbookEntries   prometheus.Counter
	uploads            prometheus.Counter
	upstreamFailures   *prometheus.CounterVec
	ordersExpired      prometheus.Counter
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		memorialsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_memorials_created_total",
			Help: "作成されたメモリアルの合計数",
		}),
		memorialsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_memorials_published_total",
			Help: "公開されたメモリアルの合計数",
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_payment_amount_total",
			Help: "公開時に記録された支払額の合計",
		}),
		hugs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_hugs_total",
			Help: "受け付けたハグの合計数",
		}),
		guestbookEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_guestbook_entries_total",
			Help: "ゲストブック書き込みの合計数",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_uploads_total",
			Help: "アップロードされた画像の合計数",
		}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soulishere_upstream_failures_total",
			Help: "外部サービス呼び出し失敗の合計数",
		}, []string{"service"}),
		ordersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soulishere_payment_orders_expired_total",
			Help: "期限切れで失敗扱いにした決済オーダーの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soulishere_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soulishere_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.memorialsCreated,
		c.memorialsPublished,
		c.revenue,
		c.hugs,
		c.guestbookEntries,
		c.uploads,
		c.upstreamFailures,
		c.ordersExpired,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

func (c *Collector) RecordMemorialCreated() {
	c.memorialsCreated.Inc()
}

// RecordMemorialPublished は公開件数と支払額を記録する。
func (c *Collector) RecordMemorialPublished(amount int64) {
	c.memorialsPublished.Inc()
	if amount > 0 {
		c.revenue.Add(float64(amount))
	}
}

func (c *Collector) RecordHug() {
	c.hugs.Inc()
}

func (c *Collector) RecordGuestbookEntry() {
	c.guestbookEntries.Inc()
}

func (c *Collector) RecordUploads(count int) {
	c.uploads.Add(float64(count))
}

// RecordUpstreamFailure は外部サービス名ごとに失敗を記録する。
func (c *Collector) RecordUpstreamFailure(service string) {
	c.upstreamFailures.WithLabelValues(service).Inc()
}

func (c *Collector) RecordPaymentOrdersExpired(count int64) {
	c.ordersExpired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordMemorialCreated()             {}
func (Nop) RecordMemorialPublished(int64)      {}
func (Nop) RecordHug()                         {}
func (Nop) RecordGuestbookEntry()              {}
func (Nop) RecordUploads(int)                  {}
func (Nop) RecordUpstreamFailure(string)       {}
func (Nop) RecordPaymentOrdersExpired(int64)   {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// OrNop はrがnilの場合にNopを返す。
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
