package encoder

import (
	"bytes"
	"context"
	"image/gif"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// GIF encodes a single-frame GIF with a 256-colour palette.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanEncode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Encode(ctx context.Context, img *core.RasterImage, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}
	if err := img.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img.ToImage(), &gif.Options{NumColors: 256}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}
	return buf.Bytes(), nil
}
