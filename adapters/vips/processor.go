package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
	// Logger receives libvips log output; nil uses slog.Default().
	Logger *slog.Logger
}

// Backend is a unified libvips-powered Decoder, Encoder and Resampler.
// Pixels cross the boundary as rasters, so libvips never applies orientation
// on its own. Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

var startOnce sync.Once

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 80
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	startOnce.Do(func() {
		logger := cfg.Logger
		govips.LoggingSettings(func(domain string, level govips.LogLevel, msg string) {
			logger.Log(context.Background(), slogLevel(level), msg, "domain", domain)
		}, govips.LogLevelWarning)
		govips.Startup(&govips.Config{
			ConcurrencyLevel: cfg.MaxWorkers,
			MaxCacheSize:     cfg.MaxCacheSize,
			ReportLeaks:      cfg.ReportLeaks,
			CollectStats:     true,
		})
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF, core.FormatUnknown:
		return true
	}
	return false
}

// Decode loads data with libvips, records its orientation tag and hands the
// stored pixels back as a raster.
func (b *Backend) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	if len(data) == 0 {
		return nil, nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	meta := core.SourceMetadata{}
	if o := ref.Orientation(); o > 0 {
		meta[core.MetaOrientation] = core.Orientation(o).String()
	}

	raster, err := toRaster(ref, 0)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	return raster, meta, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

// EncodeFor returns an Encoder bound to one output format.
func (b *Backend) EncodeFor(f core.Format) core.Encoder { return &formatEncoder{b: b, format: f} }

type formatEncoder struct {
	b      *Backend
	format core.Format
}

func (e *formatEncoder) CanEncode(f core.Format) bool { return f == e.format && e.b.CanEncode(f) }

func (e *formatEncoder) EmbedsOrientation(f core.Format) bool { return f == e.format }

func (e *formatEncoder) Encode(ctx context.Context, img *core.RasterImage, opts core.EncodeOptions) ([]byte, error) {
	return e.b.EncodeFormat(ctx, img, e.format, opts)
}

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP:
		return true
	}
	return false
}

// EncodeFormat writes img as f. The orientation decided by the metadata
// policy is set on the image; everything else is stripped.
func (b *Backend) EncodeFormat(ctx context.Context, img *core.RasterImage, f core.Format, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}
	ref, err := fromRaster(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}
	defer ref.Close()

	strip := true
	if o, ok := opts.Metadata.Embedded(opts.Source); ok {
		if err := ref.SetOrientation(int(o)); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.orientation", err)
		}
		strip = false
	} else if err := ref.RemoveOrientation(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.orientation", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	switch f {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = strip
		ep.Interlace = opts.Interlaced
		buf, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = strip
		ep.Interlace = opts.Interlaced
		buf, _, err := ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = strip
		buf, _, err := ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
		}
		return buf, nil
	}
	return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, f))
}

// ─── Resampler ────────────────────────────────────────────────────────────────

// Kernel is a core.Resampler backed by vips_thumbnail with a forced size.
type Kernel struct{ b *Backend }

// Resampler returns the libvips resampling kernel.
func (b *Backend) Resampler() *Kernel { return &Kernel{b: b} }

func (k *Kernel) Name() string { return "vips" }

func (k *Kernel) Resample(ctx context.Context, img *core.RasterImage, width, height int) (*core.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.resample", err)
	}
	if width <= 0 || height <= 0 {
		return nil, apperrors.Geometry("vips.resample", fmt.Sprintf("%dx%d", width, height), apperrors.ErrZeroSize)
	}
	ref, err := fromRaster(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.resample", err)
	}
	defer ref.Close()

	if err := ref.ThumbnailWithSize(width, height, govips.InterestingNone, govips.SizeForce); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.resample", err)
	}
	out, err := toRaster(ref, img.Channels)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.resample", err)
	}
	if out.Width != width || out.Height != height {
		return nil, apperrors.Geometry("vips.resample",
			fmt.Sprintf("%dx%d != %dx%d", out.Width, out.Height, width, height), apperrors.ErrInvalidDimensions)
	}
	return out, nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the pure-Go codecs with libvips where libvips
// supports the format.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b.EncodeFor(f))
	}
	reg.RegisterDecoder(core.FormatGIF, b)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// toRaster exports ref as lossless PNG and converts it. A non-zero channels
// value forces that channel count.
func toRaster(ref *govips.ImageRef, channels int) (*core.RasterImage, error) {
	ep := govips.NewPngExportParams()
	ep.StripMetadata = true
	ep.Compression = 0
	buf, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	r := core.RasterFromImage(img)
	if channels == 0 || r.Channels == channels {
		return r, nil
	}
	b := img.Bounds()
	if r.Depth == 2 {
		dst := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return core.FromNRGBA64(dst, channels), nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return core.FromNRGBA(dst, channels), nil
}

func fromRaster(img *core.RasterImage) (*govips.ImageRef, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img.ToImage()); err != nil {
		return nil, err
	}
	return govips.NewImageFromBuffer(buf.Bytes())
}

func slogLevel(l govips.LogLevel) slog.Level {
	switch l {
	case govips.LogLevelError, govips.LogLevelCritical:
		return slog.LevelError
	case govips.LogLevelWarning:
		return slog.LevelWarn
	case govips.LogLevelMessage, govips.LogLevelInfo:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = (*formatEncoder)(nil)
var _ core.OrientationEmbedder = (*formatEncoder)(nil)
var _ core.Resampler = (*Kernel)(nil)
