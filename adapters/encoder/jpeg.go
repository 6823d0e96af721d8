// Package encoder provides format-specific image encoders. Only JPEG embeds
// orientation metadata; the other pure-Go encoders write none.
package encoder

import (
	"bytes"
	"context"
	"image/jpeg"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// JPEG encodes images to JPEG format.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 80
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

// EmbedsOrientation reports that JPEG output carries the policy's orientation.
func (j *JPEG) EmbedsOrientation(format core.Format) bool { return format == core.FormatJPEG }

// Encode writes baseline JPEG and, when the metadata policy yields an
// orientation, an EXIF APP1 segment carrying it.
func (j *JPEG) Encode(ctx context.Context, img *core.RasterImage, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	if err := img.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.ToImage(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}

	o, ok := opts.Metadata.Embedded(opts.Source)
	if !ok {
		return buf.Bytes(), nil
	}
	out, err := utils.InsertJPEGOrientation(buf.Bytes(), uint16(o))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode.exif", err)
	}
	return out, nil
}

var _ core.OrientationEmbedder = (*JPEG)(nil)
