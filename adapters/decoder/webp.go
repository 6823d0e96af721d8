package decoder

import (
	"bytes"
	"context"

	"golang.org/x/image/webp"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// WebP decodes WebP images using golang.org/x/image/webp. EXIF chunks are not
// read, so WebP sources report no metadata.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, data []byte) (*core.RasterImage, core.SourceMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	return core.RasterFromImage(img), nil, nil
}
