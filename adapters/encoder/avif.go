package encoder

import (
	"bytes"
	"context"

	"github.com/gen2brain/avif"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// AVIF encodes images with gen2brain/avif.
type AVIF struct {
	DefaultQuality int
	// Speed trades encode time for size, 0 (slowest) to 10; default 6.
	Speed int
}

func NewAVIF(defaultQuality int) *AVIF {
	if defaultQuality <= 0 {
		defaultQuality = 60
	}
	return &AVIF{DefaultQuality: defaultQuality, Speed: 6}
}

func (a *AVIF) CanEncode(format core.Format) bool { return format == core.FormatAVIF }

func (a *AVIF) Encode(ctx context.Context, img *core.RasterImage, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "avif.encode", err)
	}
	if err := img.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "avif.encode", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = a.DefaultQuality
	}
	if opts.Lossless {
		quality = 100
	}

	var buf bytes.Buffer
	if err := avif.Encode(&buf, img.ToImage(), avif.Options{Quality: quality, QualityAlpha: quality, Speed: a.Speed}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "avif.encode", err)
	}
	return buf.Bytes(), nil
}
