// Package rasterpipe transforms raster images: EXIF orientation, explicit
// rotation and mirroring, and fit-policy resizing, with the output orientation
// tag decided so that the encoded result never displays rotated twice.
package rasterpipe

import (
	"context"
	"io"

	"github.com/Skryldev/rasterpipe/adapters/cache"
	"github.com/Skryldev/rasterpipe/adapters/decoder"
	"github.com/Skryldev/rasterpipe/adapters/encoder"
	"github.com/Skryldev/rasterpipe/adapters/storage"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	"github.com/Skryldev/rasterpipe/hooks"
	"github.com/Skryldev/rasterpipe/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	WebP = core.FormatWebP
	AVIF = core.FormatAVIF
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Processor is the primary entry point.
type Processor struct {
	inner    *core.Processor
	reg      *core.DefaultRegistry
	executor *pipeline.Executor
	cache    *cache.LRU
	metrics  *hooks.InMemoryMetrics
}

// Option customises New.
type Option func(*options)

type options struct {
	engine  *config.EngineConfig
	logger  core.Logger
	store   core.StorageAdapter
	codecs  []func(core.Registry)
	scalar  core.Resampler
	vector  core.Resampler
	hooks   []core.Hook
	noStore bool
}

// WithEngine uses engine instead of a fresh one built from cfg.Engine.
func WithEngine(engine *config.EngineConfig) Option {
	return func(o *options) { o.engine = engine }
}

// WithLogger attaches a structured logger and a logging hook.
func WithLogger(l core.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStorage overrides the adapter selected by cfg.Storage.
func WithStorage(s core.StorageAdapter) Option {
	return func(o *options) { o.store, o.noStore = s, s == nil }
}

// WithCodecs runs fn against the registry after the built-in codecs are
// registered, e.g. vips.RegisterVipsBackend.
func WithCodecs(fn func(core.Registry)) Option {
	return func(o *options) { o.codecs = append(o.codecs, fn) }
}

// WithKernels replaces the scalar and vectorised resampling kernels.
func WithKernels(scalar, vector core.Resampler) Option {
	return func(o *options) { o.scalar, o.vector = scalar, vector }
}

// WithHooks registers stage observers.
func WithHooks(h ...core.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h...) }
}

// New creates a fully wired Processor with JPEG, PNG, GIF, WebP and AVIF
// codecs registered. Pass a custom config.Config to override defaults.
func New(cfg config.Config, opts ...Option) (*Processor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = config.NewEngineConfig(cfg.Engine)
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatAVIF, decoder.NewAVIF())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatGIF, encoder.NewGIF())
	reg.RegisterEncoder(core.FormatWebP, encoder.NewWebP(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatAVIF, encoder.NewAVIF(0))
	for _, fn := range o.codecs {
		fn(reg)
	}

	metrics := hooks.NewInMemoryMetrics()
	stageHooks := []core.Hook{hooks.NewMetricsHook(metrics)}
	if o.logger != nil {
		stageHooks = append(stageHooks, hooks.NewLoggingHook(o.logger))
	}
	stageHooks = append(stageHooks, o.hooks...)

	execOpts := []pipeline.Option{pipeline.WithHooks(stageHooks...)}
	if o.scalar != nil && o.vector != nil {
		execOpts = append(execOpts, pipeline.WithKernels(o.scalar, o.vector))
	}
	executor := pipeline.NewExecutor(o.engine, execOpts...)

	lru, err := cache.NewLRU(cfg.Engine.CacheEntries)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil && !o.noStore {
		if store, err = storage.Open(cfg); err != nil {
			return nil, err
		}
	}

	inner := core.New(cfg, reg, o.engine)
	inner.SetRunner(executor)
	inner.SetCache(lru)
	inner.SetMetrics(metrics)
	if store != nil {
		inner.SetStorage(store)
	}
	if o.logger != nil {
		inner.SetLogger(o.logger)
	}
	for _, h := range stageHooks {
		inner.AddHook(h)
	}

	return &Processor{inner: inner, reg: reg, executor: executor, cache: lru, metrics: metrics}, nil
}

// RegisterDecoder registers a custom decoder for the given format.
func (p *Processor) RegisterDecoder(f core.Format, d core.Decoder) { p.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (p *Processor) RegisterEncoder(f core.Format, e core.Encoder) { p.reg.RegisterEncoder(f, e) }

// Formats lists the decodable and encodable formats.
func (p *Processor) Formats() (decodable, encodable []core.Format) {
	return p.reg.DecodableFormats(), p.reg.EncodableFormats()
}

// Engine returns the engine configuration read by this processor.
func (p *Processor) Engine() *config.EngineConfig { return p.inner.Engine() }

// Start starts the background worker pool.
func (p *Processor) Start() { p.inner.Start() }

// Stop drains and shuts down the worker pool.
func (p *Processor) Stop() { p.inner.Stop() }

// Process transforms src per req and encodes the result per out.
func (p *Processor) Process(ctx context.Context, src core.Source, req core.TransformRequest, out core.OutputOptions) (*core.ProcessingResult, error) {
	return p.inner.Process(ctx, src, req, out)
}

// Transform runs the pipeline on an already decoded raster.
func (p *Processor) Transform(ctx context.Context, img *core.RasterImage, meta core.SourceMetadata, req core.TransformRequest) (*core.RasterImage, core.ConsumptionRecord, error) {
	return p.executor.Run(ctx, img, meta, req)
}

// Batch runs the same request on multiple sources concurrently.
func (p *Processor) Batch(ctx context.Context, sources []core.Source, req core.TransformRequest, out core.OutputOptions) ([]*core.ProcessingResult, []error) {
	return p.inner.Batch(ctx, sources, req, out)
}

// ProcessVariants decodes src once and produces every named variant.
func (p *Processor) ProcessVariants(ctx context.Context, src core.Source, variants []core.VariantDefinition) (map[string]*core.ProcessingResult, error) {
	return p.inner.ProcessVariants(ctx, src, variants)
}

// Inspect reports the geometry and metadata of src without transforming it.
func (p *Processor) Inspect(ctx context.Context, src core.Source) (*core.ImageInfo, error) {
	return p.inner.Inspect(ctx, src)
}

// Submit enqueues an async job for the worker pool and returns its ID.
func (p *Processor) Submit(job core.Job) (string, error) { return p.inner.Submit(job) }

// Stats combines processor counters with stage metrics.
type Stats struct {
	core.Stats
	CacheMisses int64                 `json:"cache_misses"`
	Metrics     hooks.MetricsSnapshot `json:"metrics"`
}

// Stats returns processing statistics.
func (p *Processor) Stats() Stats {
	_, misses := p.cache.Stats()
	return Stats{Stats: p.inner.Stats(), CacheMisses: misses, Metrics: p.metrics.Snapshot()}
}

// ── Source constructors ────────────────────────────────────────────────────────

// FromReader creates a Source from an io.Reader.
func FromReader(r io.Reader) core.Source { return core.Source{Reader: r, Size: -1} }

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}

// ── Request constructors ──────────────────────────────────────────────────────

// Request builds a validated TransformRequest.
func Request(opts ...core.RequestOption) (core.TransformRequest, error) {
	return core.NewTransformRequest(opts...)
}

// AutoRotate consumes the source orientation tag.
func AutoRotate() core.RequestOption { return core.WithAutoRotate() }

// Rotate applies a fixed counter-clockwise rotation of 0, 90, 180 or 270.
func Rotate(degrees int) core.RequestOption { return core.WithRotate(degrees) }

// Flip mirrors vertically after rotation.
func Flip() core.RequestOption { return core.WithFlip(true) }

// Flop mirrors horizontally after rotation.
func Flop() core.RequestOption { return core.WithFlop(true) }

// Resize sets the target box. A zero dimension is derived from the other.
func Resize(width, height int, fit core.FitPolicy) core.RequestOption {
	return core.WithResize(width, height, fit)
}

// KeepMetadata asks the encoder to carry metadata into the output.
func KeepMetadata() core.RequestOption { return core.WithKeepMetadata(true) }

// OverrideOrientation writes o as the output orientation tag.
func OverrideOrientation(o core.Orientation) core.RequestOption {
	return core.WithMetadataOverride(o)
}
