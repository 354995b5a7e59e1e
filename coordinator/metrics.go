package coordinator

import (
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	turns           metric.Int64Counter
	turnsRefused    metric.Int64Counter
	turnsFailed     metric.Int64Counter
	toolCalls       metric.Int64Counter
	toolCallsFailed metric.Int64Counter
	detections      metric.Int64Counter
	detectionHits   metric.Int64Counter

	turnDuration      metric.Float64Histogram
	toolCallDuration  metric.Float64Histogram
	detectionDuration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) instruments {
	var m instruments
	m.turns, _ = meter.Int64Counter("turns_total",
		metric.WithDescription("Total number of conversation turns handled"))
	m.turnsRefused, _ = meter.Int64Counter("turns_refused_total",
		metric.WithDescription("Total number of turns refused as off-topic"))
	m.turnsFailed, _ = meter.Int64Counter("turns_failed_total",
		metric.WithDescription("Total number of turns that returned an error"))
	m.toolCalls, _ = meter.Int64Counter("tool_calls_total",
		metric.WithDescription("Total number of recipe tool calls executed"))
	m.toolCallsFailed, _ = meter.Int64Counter("tool_calls_failed_total",
		metric.WithDescription("Total number of recipe tool calls that failed"))
	m.detections, _ = meter.Int64Counter("detections_total",
		metric.WithDescription("Total number of images sent to ingredient detection"))
	m.detectionHits, _ = meter.Int64Counter("detection_cache_hits_total",
		metric.WithDescription("Total number of images answered from the session detection cache"))

	m.turnDuration, _ = meter.Float64Histogram("turn_duration_seconds",
		metric.WithDescription("Duration of a whole turn in seconds"))
	m.toolCallDuration, _ = meter.Float64Histogram("tool_call_duration_seconds",
		metric.WithDescription("Duration of individual recipe tool calls in seconds"))
	m.detectionDuration, _ = meter.Float64Histogram("detection_duration_seconds",
		metric.WithDescription("Duration of ingredient detection including retries in seconds"))
	return m
}
