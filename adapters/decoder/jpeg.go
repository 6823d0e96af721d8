// Package decoder provides format-specific image decoders. Decoders return the
// stored pixels untouched; orientation is applied by the pipeline.
package decoder

import (
	"bytes"
	"context"

	"github.com/gen2brain/jpegn"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// JPEG decodes JPEG images with jpegn and reads EXIF with goexif.
type JPEG struct {
	// Upsample selects the chroma upsampling filter; defaults to CatmullRom.
	Upsample jpegn.UpsampleMethod
}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{Upsample: jpegn.CatmullRom} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	if len(data) == 0 {
		return nil, nil, apperrors.New(apperrors.CategoryDecode, "jpeg.decode", apperrors.ErrEmptyInput)
	}

	img, err := jpegn.Decode(bytes.NewReader(data), &jpegn.Options{UpsampleMethod: j.Upsample})
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	return core.RasterFromImage(img), readEXIF(data), nil
}

// readEXIF extracts the tags the pipeline cares about. JPEG always supports
// metadata, so the map is non-nil even when no EXIF block is present.
func readEXIF(data []byte) core.SourceMetadata {
	meta := core.SourceMetadata{}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return meta
	}
	if v, err := tag.Int(0); err == nil {
		meta[core.MetaOrientation] = core.Orientation(v).String()
	}
	return meta
}
