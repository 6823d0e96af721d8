package core

import (
	"context"
	"io"
	"strings"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatUnknown Format = "unknown"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) Format {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "webp":
		return FormatWebP
	case "avif":
		return FormatAVIF
	}
	return FormatUnknown
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatUnknown || f == "" {
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

// Pipeline stage names as reported to hooks and timings.
const (
	StageDecode      = "decode"
	StageOrientation = "orientation"
	StageGeometry    = "geometry"
	StageResize      = "resize"
	StageFinalize    = "finalize"
	StageEncode      = "encode"
	StageStore       = "store"
)

// ConsumptionRecord describes what a pipeline run did with the source.
type ConsumptionRecord struct {
	// ConsumedExif is true only for Auto rotation with an orientation tag present.
	ConsumedExif bool
	// Orientation is the consumed tag; unset when nothing was consumed.
	Orientation Orientation
	// Applied lists the geometry operations in the order they ran.
	Applied []string
}

// ImageInfo describes a source image without transforming it.
type ImageInfo struct {
	Width       int
	Height      int
	Channels    int
	Depth       int
	Format      Format
	HasAlpha    bool
	SizeBytes   int64
	Orientation Orientation // unset when absent
	Metadata    SourceMetadata
}

// ProcessingResult is returned to the caller after a full run.
type ProcessingResult struct {
	Data   []byte
	Format Format
	Width  int
	Height int

	// Orientation is the tag written into Data; HasOrientation is false when
	// none was written.
	Orientation    Orientation
	HasOrientation bool
	Policy         OutputMetadataPolicy
	Record         ConsumptionRecord

	// Image is the finalised, frozen raster that was encoded.
	Image *RasterImage
	// Stored is set when the output was persisted.
	Stored *StorageKey

	// Observability.
	ProcessingTime time.Duration
	StageTimings   map[string]time.Duration
	CacheHit       bool
}

// Source abstracts where raw bytes come from (reader, file path, URL, etc.).
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // optional logical name / filename
	Size        int64  // -1 if unknown
}

// OutputOptions controls encoding and persistence of a run's output.
type OutputOptions struct {
	Format     Format // empty keeps the source format
	Quality    int    // 1-100; 0 = config default
	Lossless   bool
	Interlaced bool
	Store      *StorageKey // persist the encoded output when set
}

// Job encapsulates a single unit of work for the worker pool.
type Job struct {
	ID      string
	Ctx     context.Context //nolint:containedctx // intentional for async jobs
	Source  Source
	Request TransformRequest
	Output  OutputOptions
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// VariantDefinition asks for a named output derived from a shared source.
type VariantDefinition struct {
	Name    string
	Request TransformRequest
	Output  OutputOptions
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID  string
	Result *ProcessingResult
	Err    error
}

// Hook is an optional observer invoked around pipeline stages. img is the
// stage input before and the stage output after; it must not be modified.
type Hook interface {
	BeforeStage(ctx context.Context, stage string, img *RasterImage)
	AfterStage(ctx context.Context, stage string, img *RasterImage, d time.Duration, err error)
}

// StorageKey uniquely identifies a stored image.
type StorageKey struct {
	Bucket string
	Path   string
}

// CacheEntry is a cached decoded or transformed raster. Image is frozen.
type CacheEntry struct {
	Image    *RasterImage
	Metadata SourceMetadata
	Format   Format
	Record   ConsumptionRecord
}
