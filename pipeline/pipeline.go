// Package pipeline runs the orientation, geometry and resize stages over a
// raster and reports each stage to hooks.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/rasterpipe/adapters/resample"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
)

// Executor drives Runs. It holds no per-run state and is safe for concurrent
// use; the engine configuration is read at each invocation.
type Executor struct {
	engine *config.EngineConfig
	scalar core.Resampler
	vector core.Resampler
	hooks  []core.Hook
}

// Option configures an Executor.
type Option func(*Executor)

// WithKernels replaces the scalar and vectorised resampling kernels.
func WithKernels(scalar, vector core.Resampler) Option {
	return func(e *Executor) {
		e.scalar, e.vector = scalar, vector
	}
}

// WithHooks registers observers.
func WithHooks(h ...core.Hook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, h...) }
}

// NewExecutor returns an Executor reading engine. A nil engine means the
// process-wide config.Engine().
func NewExecutor(engine *config.EngineConfig, opts ...Option) *Executor {
	if engine == nil {
		engine = config.Engine()
	}
	e := &Executor{
		engine: engine,
		scalar: resample.Draw{},
		vector: resample.Imaging{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddHook registers an observer.  Returns the same Executor for chaining.
func (e *Executor) AddHook(h core.Hook) *Executor {
	e.hooks = append(e.hooks, h)
	return e
}

// Kernel returns the resampler the current engine settings select.
func (e *Executor) Kernel() core.Resampler {
	if e.engine.Snapshot().SIMD {
		return e.vector
	}
	return e.scalar
}

// Run transforms img according to req and returns the frozen result with its
// consumption record.
func (e *Executor) Run(ctx context.Context, img *core.RasterImage, meta core.SourceMetadata, req core.TransformRequest) (*core.RasterImage, core.ConsumptionRecord, error) {
	out, err := e.Execute(ctx, img, meta, req)
	if err != nil {
		return nil, core.ConsumptionRecord{}, err
	}
	return out.Image, out.Record, nil
}

// Execute is Run with per-stage timings.
func (e *Executor) Execute(ctx context.Context, img *core.RasterImage, meta core.SourceMetadata, req core.TransformRequest) (*core.RunOutput, error) {
	run, err := NewRun(img, meta, req)
	if err != nil {
		return nil, err
	}
	kernel := e.Kernel()

	stages := []struct {
		name string
		fn   func() error
	}{
		{core.StageOrientation, run.ResolveOrientation},
		{core.StageGeometry, run.ApplyGeometry},
		{core.StageResize, func() error { return run.Resize(ctx, kernel) }},
		{core.StageFinalize, run.Finalize},
	}

	timings := make(map[string]time.Duration, len(stages))
	for _, st := range stages {
		e.callHooksBefore(ctx, st.name, run.Image())
		start := time.Now()
		err := st.fn()
		elapsed := time.Since(start)
		timings[st.name] = elapsed

		var out *core.RasterImage
		if err == nil {
			out = run.Image()
		}
		e.callHooksAfter(ctx, st.name, out, elapsed, err)
		if err != nil {
			return nil, err
		}
	}

	final, record, err := run.Take()
	if err != nil {
		return nil, err
	}
	return &core.RunOutput{Image: final, Record: record, Timings: timings}, nil
}

func (e *Executor) callHooksBefore(ctx context.Context, name string, img *core.RasterImage) {
	for _, h := range e.hooks {
		h.BeforeStage(ctx, name, img)
	}
}

func (e *Executor) callHooksAfter(ctx context.Context, name string, img *core.RasterImage, d time.Duration, err error) {
	for _, h := range e.hooks {
		h.AfterStage(ctx, name, img, d, err)
	}
}
