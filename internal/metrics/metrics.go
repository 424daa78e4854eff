// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LifecycleRecorder はキャラクターのライフサイクル操作を記録する。
// サービス層から利用する。
type LifecycleRecorder interface {
	RecordCharacterCreated()
	RecordCharacterLimitRejected()
	RecordCommentAnnotated()
	RecordCharacterMarked()
	RecordForbidden(operation string)
}

// PurgeRecorder は完全削除ジョブの実行結果を記録する。
type PurgeRecorder interface {
	RecordPurgeRun(purged int, duration time.Duration)
	RecordPurgeFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	charactersCreated prometheus.Counter
	limitRejected     prometheus.Counter
	commentsAnnotated prometheus.Counter
	charactersMarked  prometheus.Counter
	forbidden         *prometheus.CounterVec
	purgeRuns         prometheus.Counter
	purgeFailures     prometheus.Counter
	purgedTotal       prometheus.Counter
	purgeDuration     prometheus.Histogram
	purgeLastSuccess  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		charactersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_characters_created_total",
			Help: "作成されたキャラクターの合計数",
		}),
		limitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_character_limit_rejected_total",
			Help: "上限超過で拒否されたキャラクター作成の合計数",
		}),
		commentsAnnotated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_comments_annotated_total",
			Help: "コメント更新の合計数",
		}),
		charactersMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_characters_marked_total",
			Help: "削除予約の合計数（再予約を含む）",
		}),
		forbidden: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_forbidden_total",
			Help: "所有者以外による操作の拒否数",
		}, []string{"operation"}),
		purgeRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_purge_runs_total",
			Help: "完全削除ジョブの成功した実行回数",
		}),
		purgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_purge_failures_total",
			Help: "完全削除ジョブの失敗回数",
		}),
		purgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_characters_purged_total",
			Help: "完全削除されたキャラクターの合計数",
		}),
		purgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_purge_duration_seconds",
			Help:    "完全削除ジョブの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		purgeLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roster_purge_last_success_timestamp_seconds",
			Help: "完全削除ジョブが最後に成功した時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.charactersCreated,
		c.limitRejected,
		c.commentsAnnotated,
		c.charactersMarked,
		c.forbidden,
		c.purgeRuns,
		c.purgeFailures,
		c.purgedTotal,
		c.purgeDuration,
		c.purgeLastSuccess,
	)

	return c
}

// RecordCharacterCreated はキャラクター作成を記録する。
func (c *Collector) RecordCharacterCreated() {
	c.charactersCreated.Inc()
}

// RecordCharacterLimitRejected は上限超過による作成拒否を記録する。
func (c *Collector) RecordCharacterLimitRejected() {
	c.limitRejected.Inc()
}

// RecordCommentAnnotated はコメント更新を記録する。
func (c *Collector) RecordCommentAnnotated() {
	c.commentsAnnotated.Inc()
}

// RecordCharacterMarked は削除予約を記録する。
func (c *Collector) RecordCharacterMarked() {
	c.charactersMarked.Inc()
}

// RecordForbidden は所有者以外による操作の拒否を記録する。
func (c *Collector) RecordForbidden(operation string) {
	c.forbidden.WithLabelValues(operation).Inc()
}

// RecordPurgeRun は完全削除ジョブの成功を記録する。
func (c *Collector) RecordPurgeRun(purged int, duration time.Duration) {
	c.purgeRuns.Inc()
	c.purgedTotal.Add(float64(purged))
	c.purgeDuration.Observe(duration.Seconds())
	c.purgeLastSuccess.SetToCurrentTime()
}

// RecordPurgeFailure は完全削除ジョブの失敗を記録する。
func (c *Collector) RecordPurgeFailure() {
	c.purgeFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// workerモードでAPIサーバーとは別ポートに公開する場合に使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ LifecycleRecorder = (*Collector)(nil)
	_ PurgeRecorder     = (*Collector)(nil)
)
