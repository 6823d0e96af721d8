package core

import (
	"context"
	"io"
	"time"
)

// Decoder converts encoded bytes into a raster and its source metadata.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Decode returns the stored pixels, without applying any orientation, and
	// the metadata found in the container. Metadata is nil for formats
	// that carry none.
	Decode(ctx context.Context, data []byte) (*RasterImage, SourceMetadata, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises a raster to bytes in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, img *RasterImage, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality    int  // 1-100; 0 = use encoder default
	Lossless   bool // WebP / AVIF lossless mode
	Interlaced bool // progressive JPEG / interlaced PNG

	// Metadata is the orientation policy decided after the run; Source is the
	// metadata it refers to for PassThrough.
	Metadata OutputMetadataPolicy
	Source   SourceMetadata
	// KeepMetadata keeps non-orientation metadata in backends that carry it.
	KeepMetadata bool
}

// Resampler scales a raster to exactly width×height. It must not modify img.
type Resampler interface {
	Name() string
	Resample(ctx context.Context, img *RasterImage, width, height int) (*RasterImage, error)
}

// Cache holds frozen rasters keyed by content digest.
type Cache interface {
	Get(key string) (CacheEntry, bool)
	Add(key string, e CacheEntry)
	Purge()
	Len() int
}

// PipelineRunner is the executor as seen by the Processor, so that core does
// not import the pipeline package.
type PipelineRunner interface {
	Execute(ctx context.Context, img *RasterImage, meta SourceMetadata, req TransformRequest) (*RunOutput, error)
}

// RunOutput is what one executor invocation produced.
type RunOutput struct {
	Image   *RasterImage
	Record  ConsumptionRecord
	Timings map[string]time.Duration
}

// StorageAdapter persists processed images and retrieves them later.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key StorageKey, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key StorageKey) (io.ReadCloser, error)
	Delete(ctx context.Context, key StorageKey) error
	Exists(ctx context.Context, key StorageKey) (bool, error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stage string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stage string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}
