package decoder

import (
	"bytes"
	"context"

	"github.com/gen2brain/avif"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// AVIF decodes AVIF images with gen2brain/avif.
type AVIF struct{}

func NewAVIF() *AVIF { return &AVIF{} }

func (a *AVIF) CanDecode(format core.Format) bool {
	return format == core.FormatAVIF
}

func (a *AVIF) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "avif.decode", err)
	}
	img, err := avif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "avif.decode", err)
	}
	return core.RasterFromImage(img), nil, nil
}
