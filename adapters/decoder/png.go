package decoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// PNG decodes PNG images using the standard library. 16-bit PNGs keep their
// depth. No orientation metadata is read.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	return core.RasterFromImage(img), nil, nil
}
