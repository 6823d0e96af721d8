package decoder

import (
	"bytes"
	"context"
	"image/gif"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// GIF decodes the first frame of a GIF. GIF carries no orientation metadata.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanDecode(format core.Format) bool {
	return format == core.FormatGIF
}

func (g *GIF) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}
	img, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}
	return core.RasterFromImage(img), nil, nil
}
