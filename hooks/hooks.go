// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewSlog builds a text or JSON slog.Logger writing to w at the named level.
// Unknown levels fall back to info.
func NewSlog(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Slog exposes the underlying slog.Logger.
func (s *SlogLogger) Slog() *slog.Logger { return s.log }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []interface{}) []any { return fields }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each pipeline stage.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStage(_ context.Context, stage string, img *core.RasterImage) {
	h.logger.Debug("pipeline.stage.start", append([]interface{}{"stage", stage}, rasterFields(img)...)...)
}

func (h *LoggingHook) AfterStage(_ context.Context, stage string, img *core.RasterImage, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.stage.error",
			"stage", stage,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("pipeline.stage.done",
		append([]interface{}{"stage", stage, "duration_ms", d.Milliseconds()}, rasterFields(img)...)...,
	)
}

func rasterFields(img *core.RasterImage) []interface{} {
	if img == nil {
		return nil
	}
	return []interface{}{
		"width", img.Width,
		"height", img.Height,
		"channels", img.Channels,
		"depth", img.Depth,
	}
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stageDurationsMs map[string]int64 // cumulative ms per stage
	stageCalls       map[string]int64 // call count per stage
	stageErrors      map[string]int64
	categories       map[string]int64 // error count per category

	totalThroughputB int64
	totalMemoryB     int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[string]int64),
		stageCalls:       make(map[string]int64),
		stageErrors:      make(map[string]int64),
		categories:       make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stage string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.stageDurationsMs[stage] += ms
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

func (m *InMemoryMetrics) RecordMemory(bytes int64) {
	atomic.AddInt64(&m.totalMemoryB, bytes)
}

func (m *InMemoryMetrics) RecordError(stage string, category string) {
	m.mu.Lock()
	m.stageErrors[stage]++
	m.categories[category]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StageDurationsMs: make(map[string]int64, len(m.stageDurationsMs)),
		StageCalls:       make(map[string]int64, len(m.stageCalls)),
		StageErrors:      make(map[string]int64, len(m.stageErrors)),
		ErrorCategories:  make(map[string]int64, len(m.categories)),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
		TotalMemoryB:     atomic.LoadInt64(&m.totalMemoryB),
	}
	for k, v := range m.stageDurationsMs {
		snap.StageDurationsMs[k] = v
	}
	for k, v := range m.stageCalls {
		snap.StageCalls[k] = v
	}
	for k, v := range m.stageErrors {
		snap.StageErrors[k] = v
	}
	for k, v := range m.categories {
		snap.ErrorCategories[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StageDurationsMs map[string]int64 `json:"stage_durations_ms"`
	StageCalls       map[string]int64 `json:"stage_calls"`
	StageErrors      map[string]int64 `json:"stage_errors"`
	ErrorCategories  map[string]int64 `json:"error_categories"`
	TotalThroughputB int64            `json:"total_throughput_bytes"`
	TotalMemoryB     int64            `json:"total_memory_bytes"`
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds pipeline events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStage(_ context.Context, _ string, _ *core.RasterImage) {}

func (h *MetricsHook) AfterStage(_ context.Context, stage string, img *core.RasterImage, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stage, d)
	if err != nil {
		category := string(apperrors.CategoryOf(err))
		if category == "" {
			category = string(apperrors.CategoryPipeline)
		}
		h.collector.RecordError(stage, category)
		return
	}
	if img != nil && stage == core.StageFinalize {
		h.collector.RecordMemory(img.SizeBytes())
	}
}
