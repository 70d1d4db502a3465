package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約操作の総数（operation: create/confirm/cancel, outcome: success/capacity_exceeded/rejected/error）
	ReservationOperationsTotal *prometheus.CounterVec

	// キャパシティ台帳の更新結果（operation: try_confirm/release, result: applied/rejected/error）
	CapacityLedgerTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// アウトボックスイベントの送信結果（status: sent/failed）
	OutboxEventsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Total number of reservation lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		CapacityLedgerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacity_ledger_operations_total",
				Help: "Total number of confirmed-count mutations attempted by the capacity ledger",
			},
			[]string{"operation", "result"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		OutboxEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_events_total",
				Help: "Total number of outbox events relayed to the broker",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationOperationsTotal,
		m.CapacityLedgerTotal,
		m.DistributedLockDuration,
		m.OutboxEventsTotal,
	)

	return m
}

// RecordReservation は予約操作の結果を記録する。nil レシーバでも安全
func (m *Metrics) RecordReservation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ReservationOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordLedger はキャパシティ台帳の更新結果を記録する
func (m *Metrics) RecordLedger(operation, result string) {
	if m == nil {
		return
	}
	m.CapacityLedgerTotal.WithLabelValues(operation, result).Inc()
}

// ObserveLock は分散ロック操作の所要時間を記録する
func (m *Metrics) ObserveLock(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(seconds)
}

// RecordOutbox はアウトボックス送信結果を記録する
func (m *Metrics) RecordOutbox(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxEventsTotal.WithLabelValues(status).Add(float64(n))
}

var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
