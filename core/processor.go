package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Skryldev/rasterpipe/config"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// OrientationEmbedder is implemented by encoders that write an orientation
// tag into their output. Encoders without it are assumed to write none.
type OrientationEmbedder interface {
	EmbedsOrientation(format Format) bool
}

// Processor is the central orchestrator: decode, run the pipeline, decide
// metadata, encode, optionally store. It is safe for concurrent use.
type Processor struct {
	cfg      config.Config
	engine   *config.EngineConfig
	registry Registry
	runner   PipelineRunner
	cache    Cache
	store    StorageAdapter
	hooks    []Hook
	logger   Logger
	metrics  MetricsCollector

	// gate bounds concurrent invocations. It is replaced when the engine
	// concurrency changes; holders release into the gate they acquired.
	gate atomic.Pointer[gate]

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
	cacheHits      int64
}

type gate struct {
	size int
	sem  *semaphore.Weighted
}

// New creates a Processor. A nil engine means config.Engine(). Call
// SetRunner before processing, Start() before submitting jobs and Stop()
// when done.
func New(cfg config.Config, reg Registry, engine *config.EngineConfig) *Processor {
	if engine == nil {
		engine = config.Engine()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &Processor{
		cfg:      cfg,
		engine:   engine,
		registry: reg,
		logger:   nopLogger{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
	engine.OnChange(p.onEngineChange)
	return p
}

// SetRunner sets the pipeline executor.
func (p *Processor) SetRunner(r PipelineRunner) { p.runner = r }

// SetCache attaches the operation cache used while the engine cache is on.
func (p *Processor) SetCache(c Cache) { p.cache = c }

// SetStorage attaches the sink used for OutputOptions.Store.
func (p *Processor) SetStorage(s StorageAdapter) { p.store = s }

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	p.logger = l
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) { p.metrics = m }

// AddHook registers an observer for the decode, encode and store stages.
// Pipeline stage hooks belong on the runner.
func (p *Processor) AddHook(h Hook) { p.hooks = append(p.hooks, h) }

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Engine returns the engine configuration this processor reads.
func (p *Processor) Engine() *config.EngineConfig { return p.engine }

// Start launches the worker pool.  It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = p.engine.Snapshot().EffectiveConcurrency()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers after their current job.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.shutdown) })
	p.wg.Wait()
}

// decoded is a source after decoding, shared by every run derived from it.
type decoded struct {
	digest string
	format Format
	image  *RasterImage
	meta   SourceMetadata
	size   int64
	took   time.Duration
}

// Process is the primary synchronous API: it reads src, transforms it per req
// and encodes the result per out. The request is validated before src is read.
func (p *Processor) Process(ctx context.Context, src Source, req TransformRequest, out OutputOptions) (*ProcessingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, p.fail(err)
	}
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, p.fail(err)
	}
	defer release()

	start := time.Now()
	d, err := p.decode(ctx, src)
	if err != nil {
		return nil, p.fail(err)
	}
	res, err := p.transform(ctx, d, req, out)
	if err != nil {
		return nil, p.fail(err)
	}
	res.ProcessingTime = time.Since(start)
	atomic.AddInt64(&p.processedCount, 1)
	return res, nil
}

// ProcessVariants decodes src once and runs every variant against the shared
// frozen raster concurrently. Results are keyed by variant name.
func (p *Processor) ProcessVariants(ctx context.Context, src Source, variants []VariantDefinition) (map[string]*ProcessingResult, error) {
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if err := v.Request.Validate(); err != nil {
			return nil, p.fail(err)
		}
		if seen[v.Name] {
			return nil, p.fail(apperrors.InvalidArgument("variants", v.Name, errors.New("duplicate variant name")))
		}
		seen[v.Name] = true
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, p.fail(err)
	}
	start := time.Now()
	d, err := p.decode(ctx, src)
	release()
	if err != nil {
		return nil, p.fail(err)
	}
	d.image.Freeze()

	results := make(map[string]*ProcessingResult, len(variants))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.engine.Snapshot().EffectiveConcurrency())
	for _, v := range variants {
		g.Go(func() error {
			release, err := p.acquire(gctx)
			if err != nil {
				return err
			}
			defer release()
			res, err := p.transform(gctx, d, v.Request, v.Output)
			if err != nil {
				return err
			}
			res.ProcessingTime = time.Since(start)
			mu.Lock()
			results[v.Name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, p.fail(err)
	}
	atomic.AddInt64(&p.processedCount, int64(len(variants)))
	return results, nil
}

// Batch processes multiple sources with the same request concurrently
// (fan-out / fan-in). errs[i] belongs to sources[i].
func (p *Processor) Batch(ctx context.Context, sources []Source, req TransformRequest, out OutputOptions) ([]*ProcessingResult, []error) {
	results := make([]*ProcessingResult, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(p.engine.Snapshot().EffectiveConcurrency())
	for i, src := range sources {
		g.Go(func() error {
			o := out
			if o.Store != nil {
				key := *o.Store
				key.Path = fmt.Sprintf("%s.%d", key.Path, i)
				o.Store = &key
			}
			results[i], errs[i] = p.Process(ctx, src, req, o)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// Inspect decodes src and reports its geometry and metadata.
func (p *Processor) Inspect(ctx context.Context, src Source) (*ImageInfo, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, p.fail(err)
	}
	defer release()

	d, err := p.decode(ctx, src)
	if err != nil {
		return nil, p.fail(err)
	}
	info := &ImageInfo{
		Width:     d.image.Width,
		Height:    d.image.Height,
		Channels:  d.image.Channels,
		Depth:     d.image.Depth,
		Format:    d.format,
		HasAlpha:  d.image.Channels == 2 || d.image.Channels == 4,
		SizeBytes: d.size,
		Metadata:  d.meta,
	}
	if o, ok := d.meta.Orientation(); ok {
		info.Orientation = o
	}
	return info, nil
}

// Submit enqueues an async job and returns its ID.  Returns ErrWorkerPoolFull
// if the queue is full.
func (p *Processor) Submit(job Job) (string, error) {
	if err := job.Request.Validate(); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	select {
	case p.jobQueue <- job:
		return job.ID, nil
	default:
		return "", apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

// ── stages ────────────────────────────────────────────────────────────────────

func (p *Processor) decode(ctx context.Context, src Source) (*decoded, error) {
	if src.Reader == nil {
		return nil, apperrors.New(apperrors.CategoryInput, StageDecode, apperrors.ErrEmptyInput)
	}
	start := time.Now()

	// --- 1. Drain source into memory (respecting max size limit) -------------
	limitedR := src.Reader
	if p.cfg.MaxImageBytes > 0 {
		limitedR = &utils.LimitedReader{R: src.Reader, Max: p.cfg.MaxImageBytes}
	}
	buf, err := utils.DrainReader(ctx, limitedR, p.cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrTooLarge) {
			return nil, apperrors.New(apperrors.CategoryInput, StageDecode, err)
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, StageDecode, apperrors.ErrEmptyInput)
	}
	p.recordThroughput(int64(len(raw)))

	// --- 2. Detect format ----------------------------------------------------
	format := Format(utils.DetectFormat(raw))
	if hinted := contentTypeToFormat(src.ContentType); hinted != FormatUnknown {
		format = hinted
	}

	d := &decoded{digest: utils.Digest(raw), format: format, size: int64(len(raw))}

	// --- 3. Decode, through the cache when enabled ---------------------------
	key := "src:" + d.digest
	if p.cacheEnabled() {
		if e, ok := p.cache.Get(key); ok {
			atomic.AddInt64(&p.cacheHits, 1)
			d.image, d.meta, d.format = e.Image, e.Metadata, e.Format
			d.took = time.Since(start)
			return d, nil
		}
	}

	dec, ok := p.registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, StageDecode,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	p.notifyBefore(ctx, StageDecode, nil)
	t := time.Now()
	img, meta, err := dec.Decode(ctx, raw)
	elapsed := time.Since(t)
	if err != nil {
		err = apperrors.Wrap(apperrors.CategoryDecode, StageDecode, err)
		p.notifyAfter(ctx, StageDecode, nil, elapsed, err)
		return nil, err
	}
	p.notifyAfter(ctx, StageDecode, img, elapsed, nil)

	d.image, d.meta = img, meta
	if p.cacheEnabled() {
		p.cache.Add(key, CacheEntry{Image: img, Metadata: meta, Format: format})
	}
	d.took = time.Since(start)
	return d, nil
}

func (p *Processor) transform(ctx context.Context, d *decoded, req TransformRequest, out OutputOptions) (*ProcessingResult, error) {
	if p.runner == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, "process", errors.New("no pipeline runner configured"))
	}
	timings := map[string]time.Duration{StageDecode: d.took}

	// --- 4. Run the pipeline, through the result cache when enabled -----------
	var (
		final  *RasterImage
		record ConsumptionRecord
		hit    bool
	)
	key := "out:" + d.digest + "|" + req.Key()
	if p.cacheEnabled() {
		if e, ok := p.cache.Get(key); ok {
			atomic.AddInt64(&p.cacheHits, 1)
			final, record, hit = e.Image, e.Record, true
		}
	}
	if !hit {
		run, err := p.runner.Execute(ctx, d.image, d.meta, req)
		if err != nil {
			return nil, err
		}
		final, record = run.Image, run.Record
		for k, v := range run.Timings {
			timings[k] = v
		}
		if p.cacheEnabled() {
			p.cache.Add(key, CacheEntry{Image: final, Metadata: d.meta, Format: d.format, Record: record})
		}
	}

	// --- 5. Decide metadata and encode ----------------------------------------
	policy := DecideMetadata(record.ConsumedExif, req.MetadataOverride, req.KeepMetadata)
	format := p.outputFormat(out, d.format)
	enc, ok := p.registry.EncoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, StageEncode,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	quality := out.Quality
	if quality <= 0 {
		quality = p.cfg.DefaultQuality
	}
	opts := EncodeOptions{
		Quality:      quality,
		Lossless:     out.Lossless,
		Interlaced:   out.Interlaced,
		Metadata:     policy,
		Source:       d.meta,
		KeepMetadata: req.KeepMetadata,
	}

	p.notifyBefore(ctx, StageEncode, final)
	t := time.Now()
	data, err := enc.Encode(ctx, final, opts)
	timings[StageEncode] = time.Since(t)
	if err != nil {
		err = apperrors.Wrap(apperrors.CategoryEncode, StageEncode, err)
		p.notifyAfter(ctx, StageEncode, final, timings[StageEncode], err)
		return nil, err
	}
	p.notifyAfter(ctx, StageEncode, final, timings[StageEncode], nil)

	res := &ProcessingResult{
		Data:         data,
		Format:       format,
		Width:        final.Width,
		Height:       final.Height,
		Policy:       policy,
		Record:       record,
		Image:        final,
		StageTimings: timings,
		CacheHit:     hit,
	}
	if em, ok := enc.(OrientationEmbedder); ok && em.EmbedsOrientation(format) {
		res.Orientation, res.HasOrientation = policy.Embedded(d.meta)
	}

	// --- 6. Persist -------------------------------------------------------------
	if out.Store != nil {
		if err := p.persist(ctx, *out.Store, res, timings); err != nil {
			return nil, err
		}
		key := *out.Store
		res.Stored = &key
	}
	return res, nil
}

func (p *Processor) persist(ctx context.Context, key StorageKey, res *ProcessingResult, timings map[string]time.Duration) error {
	if p.store == nil {
		return apperrors.New(apperrors.CategoryStorage, StageStore, apperrors.ErrStorageUnavailable)
	}
	meta := map[string]string{
		"content-type": res.Format.ContentType(),
		"width":        strconv.Itoa(res.Width),
		"height":       strconv.Itoa(res.Height),
		"policy":       res.Policy.String(),
		"consumed":     strconv.FormatBool(res.Record.ConsumedExif),
	}
	if res.HasOrientation {
		meta["orientation"] = res.Orientation.String()
	}

	p.notifyBefore(ctx, StageStore, res.Image)
	t := time.Now()
	err := p.runWithRetry(ctx, StageStore, func() error {
		return p.store.Put(ctx, key, bytes.NewReader(res.Data), meta)
	})
	timings[StageStore] = time.Since(t)
	p.notifyAfter(ctx, StageStore, res.Image, timings[StageStore], err)
	return err
}

func (p *Processor) outputFormat(out OutputOptions, src Format) Format {
	if out.Format != "" && out.Format != FormatUnknown {
		return out.Format
	}
	if src != "" && src != FormatUnknown {
		return src
	}
	return ParseFormat(p.cfg.DefaultFormat)
}

// ── concurrency gate ──────────────────────────────────────────────────────────

// acquire takes a slot in the gate sized from the current engine concurrency.
func (p *Processor) acquire(ctx context.Context) (func(), error) {
	size := p.engine.Snapshot().EffectiveConcurrency()
	g := p.gate.Load()
	if g == nil || g.size != size {
		next := &gate{size: size, sem: semaphore.NewWeighted(int64(size))}
		if p.gate.CompareAndSwap(g, next) {
			g = next
		} else {
			g = p.gate.Load()
		}
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "acquire", err)
	}
	return func() { g.sem.Release(1) }, nil
}

func (p *Processor) cacheEnabled() bool {
	return p.cache != nil && p.engine.Snapshot().Cache
}

func (p *Processor) onEngineChange(s config.EngineSettings) {
	if !s.Cache && p.cache != nil && p.cache.Len() > 0 {
		p.cache.Purge()
		p.logger.Debug("engine.cache.purged")
	}
	p.logger.Info("engine.changed",
		"cache", s.Cache,
		"simd", s.SIMD,
		"concurrency", s.EffectiveConcurrency(),
	)
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	ctx := job.Ctx
	timeout := p.cfg.JobTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.Process(ctx, job.Source, job.Request, job.Output)
	if err != nil {
		p.logger.Warn("job.failed", "job_id", job.ID, "error", err.Error())
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Result: result, Err: err}
	}
}

// runWithRetry retries fn while it fails with a transient error.
func (p *Processor) runWithRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := p.cfg.MaxRetries
	delay := p.cfg.RetryDelay

	var err error
	for i := 0; i <= maxRetries; i++ {
		err = fn()
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		if i < maxRetries {
			p.logger.Warn("retry", "op", op, "attempt", i+1, "error", err.Error())
			select {
			case <-ctx.Done():
				return apperrors.Wrap(apperrors.CategoryPipeline, op, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return err
}

func (p *Processor) notifyBefore(ctx context.Context, name string, img *RasterImage) {
	for _, h := range p.hooks {
		h.BeforeStage(ctx, name, img)
	}
}

func (p *Processor) notifyAfter(ctx context.Context, name string, img *RasterImage, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStage(ctx, name, img, d, err)
	}
}

func (p *Processor) fail(err error) error {
	atomic.AddInt64(&p.errorCount, 1)
	p.logger.Debug("process.failed", "category", string(apperrors.CategoryOf(err)), "error", err.Error())
	return err
}

func (p *Processor) recordThroughput(n int64) {
	if p.metrics != nil {
		p.metrics.RecordThroughput(n)
	}
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	switch ct {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/gif":
		return FormatGIF
	case "image/webp":
		return FormatWebP
	case "image/avif":
		return FormatAVIF
	}
	return FormatUnknown
}

// ── stats ─────────────────────────────────────────────────────────────────────

// Stats is a point-in-time view of processor counters.
type Stats struct {
	Processed    int64 `json:"processed"`
	Errors       int64 `json:"errors"`
	CacheHits    int64 `json:"cache_hits"`
	CacheEntries int   `json:"cache_entries"`
	Queued       int   `json:"queued"`
	Concurrency  int   `json:"concurrency"`
}

// Stats returns lightweight processing statistics.
func (p *Processor) Stats() Stats {
	s := Stats{
		Processed:   atomic.LoadInt64(&p.processedCount),
		Errors:      atomic.LoadInt64(&p.errorCount),
		CacheHits:   atomic.LoadInt64(&p.cacheHits),
		Queued:      len(p.jobQueue),
		Concurrency: p.engine.Snapshot().EffectiveConcurrency(),
	}
	if p.cache != nil {
		s.CacheEntries = p.cache.Len()
	}
	return s
}

// ProcessedCount returns the total number of successfully processed images.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of processing errors.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
