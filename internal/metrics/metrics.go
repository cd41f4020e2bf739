// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・外部カタログクライアント・ワーカーから利用する。
type MetricsCollector interface {
	RecordLibraryAdd(kind, result string)
	RecordLoginAttempt(result string)
	ObserveCatalogRequest(source string, duration time.Duration)
	RecordCatalogFailure(source, reason string)
	SetCatalogBreakerState(source string, state float64)
	RecordCatalogCache(hit bool)
	RecordLoginAttemptsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	libraryAdd     *prometheus.CounterVec
	loginAttempts  *prometheus.CounterVec
	catalogLatency *prometheus.HistogramVec
	catalogFail    *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	catalogCache   *prometheus.CounterVec
	attemptsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		libraryAdd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediatech_library_add_total",
			Help: "ライブラリ追加の結果別件数",
		}, []string{"kind", "result"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediatech_login_attempts_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"result"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediatech_catalog_request_seconds",
			Help:    "外部カタログAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		catalogFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediatech_catalog_failures_total",
			Help: "外部カタログAPI呼び出しの失敗件数",
		}, []string{"source", "reason"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediatech_catalog_breaker_state",
			Help: "外部カタログのサーキットブレーカー状態（0=closed, 1=half-open, 2=open）",
		}, []string{"source"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediatech_catalog_cache_total",
			Help: "カタログ検索キャッシュのヒット・ミス件数",
		}, []string{"result"}),
		attemptsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediatech_login_attempts_purged_total",
			Help: "保持期間切れで削除されたログイン試行記録の合計数",
		}),
	}

	reg.MustRegister(
		c.libraryAdd,
		c.loginAttempts,
		c.catalogLatency,
		c.catalogFail,
		c.breakerState,
		c.catalogCache,
		c.attemptsPurged,
	)

	return c
}

// RecordLibraryAdd はライブラリ追加の結果（created, already_present, error）を記録する。
func (c *Collector) RecordLibraryAdd(kind, result string) {
	c.libraryAdd.WithLabelValues(kind, result).Inc()
}

// RecordLoginAttempt はログイン試行の結果（success, failure, blocked）を記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// ObserveCatalogRequest は外部カタログAPI呼び出しのレイテンシを記録する。
func (c *Collector) ObserveCatalogRequest(source string, duration time.Duration) {
	c.catalogLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCatalogFailure は外部カタログAPI呼び出しの失敗を記録する。
func (c *Collector) RecordCatalogFailure(source, reason string) {
	c.catalogFail.WithLabelValues(source, reason).Inc()
}

// SetCatalogBreakerState はサーキットブレーカーの状態を記録する。
func (c *Collector) SetCatalogBreakerState(source string, state float64) {
	c.breakerState.WithLabelValues(source).Set(state)
}

// RecordCatalogCache は検索キャッシュのヒット・ミスを記録する。
func (c *Collector) RecordCatalogCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.catalogCache.WithLabelValues(result).Inc()
}

// RecordLoginAttemptsPurged は削除したログイン試行記録の件数を記録する。
func (c *Collector) RecordLoginAttemptsPurged(count int64) {
	c.attemptsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
