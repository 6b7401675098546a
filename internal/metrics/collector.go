// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/generation"
	"github.com/BaSui01/agentroom/room"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有记录方法对 nil 接收者安全。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 房间指标
	roomsActive     prometheus.Gauge
	roomsRemoved    *prometheus.CounterVec
	participants    *prometheus.GaugeVec
	turnsTotal      prometheus.Counter
	handoversTotal  *prometheus.CounterVec
	membershipTotal *prometheus.CounterVec

	// 编排运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 生成调用指标
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	logger *zap.Logger
	mu     sync.Mutex
	rooms  map[string]struct{}
	seq    *room.Sequencer

	otel *OTelRecorder
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
		rooms:  make(map[string]struct{}),
		seq:    room.NewSequencer(0),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 房间指标
	c.roomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of live conversation rooms",
		},
	)

	c.roomsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_removed_total",
			Help:      "Total number of rooms removed, by reason",
		},
		[]string{"reason"},
	)

	c.participants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_participants",
			Help:      "Participants of the most recently updated room, by status",
		},
		[]string{"status"},
	)

	c.turnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of recorded conversation turns",
		},
	)

	c.handoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handovers_total",
			Help:      "Total number of applied dominance handovers",
		},
		[]string{"reason"},
	)

	c.membershipTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_events_total",
			Help:      "Total number of executed membership events",
		},
		[]string{"kind"},
	)

	// 编排运行指标
	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs",
		},
		[]string{"status"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Orchestration run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	// 生成调用指标
	c.generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Total number of text generation calls",
		},
		[]string{"kind", "outcome"},
	)

	c.generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Text generation call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// AttachOTel additionally records conversation and generation metrics to r.
// Call it before the collector is shared.
func (c *Collector) AttachOTel(r *OTelRecorder) {
	if c == nil {
		return
	}
	c.otel = r
}

// =============================================================================
// 🏠 房间指标记录（room.Observer）
// =============================================================================

// RoomUpdated 跟踪存活房间并刷新参与者分布
func (c *Collector) RoomUpdated(r room.Room) {
	if c == nil {
		return
	}
	c.mu.Lock()
	// 过期快照不能让已删除的房间重新计数
	if !c.seq.Update(r) {
		c.mu.Unlock()
		return
	}
	c.rooms[r.ID] = struct{}{}
	c.roomsActive.Set(float64(len(c.rooms)))
	c.mu.Unlock()

	for _, s := range []room.Status{room.StatusJoining, room.StatusActive, room.StatusLeaving} {
		c.participants.WithLabelValues(string(s)).Set(float64(r.CountWithStatus(s)))
	}
}

// RoomDeleted 记录房间移除
func (c *Collector) RoomDeleted(r room.Room, reason room.DeleteReason) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.seq.Delete(r) {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, r.ID)
	c.roomsActive.Set(float64(len(c.rooms)))
	c.mu.Unlock()

	c.roomsRemoved.WithLabelValues(string(reason)).Inc()
}

// RecordTurn 记录一次发言
func (c *Collector) RecordTurn() {
	if c == nil {
		return
	}
	c.turnsTotal.Inc()
	c.otel.recordTurn()
}

// RecordHandover 记录一次主导权移交
func (c *Collector) RecordHandover(reason string) {
	if c == nil {
		return
	}
	c.handoversTotal.WithLabelValues(reason).Inc()
	c.otel.recordHandover(reason)
}

// RecordMembership 记录一次成员变更
func (c *Collector) RecordMembership(kind string) {
	if c == nil {
		return
	}
	c.membershipTotal.WithLabelValues(kind).Inc()
	c.otel.recordMembership(kind)
}

// =============================================================================
// 🎬 编排与生成指标记录
// =============================================================================

// RecordRun 记录一次编排运行
func (c *Collector) RecordRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.otel.recordRun(status, duration)
}

// ObserveGeneration 记录一次生成调用（generation.CallObserver）
func (c *Collector) ObserveGeneration(kind generation.Kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationTotal.WithLabelValues(string(kind), outcome).Inc()
	c.generationDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	c.otel.recordGeneration(kind, outcome, d)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	_ room.Observer           = (*Collector)(nil)
	_ generation.CallObserver = (*Collector)(nil)
)
