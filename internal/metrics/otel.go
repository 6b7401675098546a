package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentroom/generation"
)

// =============================================================================
// 📡 OpenTelemetry 指标
// =============================================================================

// OTelRecorder 将会话指标记录为 OpenTelemetry instruments，由全局
// MeterProvider 通过 OTLP 导出。所有记录方法对 nil 接收者安全。
type OTelRecorder struct {
	runTotal        metric.Int64Counter
	runDuration     metric.Float64Histogram
	turnTotal       metric.Int64Counter
	handoverTotal   metric.Int64Counter
	membershipTotal metric.Int64Counter

	generationTotal    metric.Int64Counter
	generationDuration metric.Float64Histogram
}

// NewOTelRecorder creates the instruments on meter.
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	r := &OTelRecorder{}
	var err error

	// 运行计数与耗时
	r.runTotal, err = meter.Int64Counter("agentroom.run.total",
		metric.WithDescription("Total number of orchestrator runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	r.runDuration, err = meter.Float64Histogram("agentroom.run.duration",
		metric.WithDescription("Run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120))
	if err != nil {
		return nil, err
	}

	// 会话事件
	r.turnTotal, err = meter.Int64Counter("agentroom.turn.total",
		metric.WithDescription("Total number of generated turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	r.handoverTotal, err = meter.Int64Counter("agentroom.handover.total",
		metric.WithDescription("Total number of dominance handovers"),
		metric.WithUnit("{handover}"))
	if err != nil {
		return nil, err
	}
	r.membershipTotal, err = meter.Int64Counter("agentroom.membership.total",
		metric.WithDescription("Total number of membership events"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}

	// 生成调用
	r.generationTotal, err = meter.Int64Counter("agentroom.generation.total",
		metric.WithDescription("Total number of generation calls"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	r.generationDuration, err = meter.Float64Histogram("agentroom.generation.duration",
		metric.WithDescription("Generation call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *OTelRecorder) recordRun(status string, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	r.runTotal.Add(context.Background(), 1, attrs)
	r.runDuration.Record(context.Background(), d.Seconds(), attrs)
}

func (r *OTelRecorder) recordTurn() {
	if r == nil {
		return
	}
	r.turnTotal.Add(context.Background(), 1)
}

func (r *OTelRecorder) recordHandover(reason string) {
	if r == nil {
		return
	}
	r.handoverTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *OTelRecorder) recordMembership(kind string) {
	if r == nil {
		return
	}
	r.membershipTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *OTelRecorder) recordGeneration(kind generation.Kind, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.generationTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
	r.generationDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("kind", string(kind))))
}
