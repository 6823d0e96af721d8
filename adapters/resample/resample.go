// Package resample provides the interpolation kernels used by the resize
// stage. Draw is the portable scalar kernel; Imaging is the parallel
// row-vectorised kernel selected when the engine SIMD setting is on.
package resample

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// Draw resamples with golang.org/x/image/draw. It keeps 16-bit depth.
type Draw struct {
	// Interpolator defaults to CatmullRom.
	Interpolator xdraw.Interpolator
}

func (Draw) Name() string { return "draw" }

func (d Draw) Resample(ctx context.Context, img *core.RasterImage, width, height int) (*core.RasterImage, error) {
	if err := check(ctx, img, width, height); err != nil {
		return nil, err
	}
	interp := d.Interpolator
	if interp == nil {
		interp = xdraw.CatmullRom
	}

	src := img.ToImage()
	rect := image.Rect(0, 0, width, height)
	switch {
	case img.Channels == 1 && img.Depth == 1:
		dst := image.NewGray(rect)
		interp.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
		return core.RasterFromImage(dst), nil
	case img.Channels == 1:
		dst := image.NewGray16(rect)
		interp.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
		return core.RasterFromImage(dst), nil
	case img.Depth == 2:
		dst := image.NewNRGBA64(rect)
		interp.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
		return core.FromNRGBA64(dst, img.Channels), nil
	}
	dst := image.NewNRGBA(rect)
	interp.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
	return core.FromNRGBA(dst, img.Channels), nil
}

// Imaging resamples with disintegration/imaging, which spreads rows across
// goroutines. It works on 8-bit samples; 16-bit rasters go through Fallback.
type Imaging struct {
	// Filter defaults to Lanczos.
	Filter *imaging.ResampleFilter
	// Fallback handles 16-bit rasters; defaults to Draw.
	Fallback core.Resampler
}

func (Imaging) Name() string { return "imaging" }

func (k Imaging) Resample(ctx context.Context, img *core.RasterImage, width, height int) (*core.RasterImage, error) {
	if err := check(ctx, img, width, height); err != nil {
		return nil, err
	}
	if img.Depth != 1 {
		fb := k.Fallback
		if fb == nil {
			fb = Draw{}
		}
		return fb.Resample(ctx, img, width, height)
	}
	filter := imaging.Lanczos
	if k.Filter != nil {
		filter = *k.Filter
	}
	dst := imaging.Resize(img.ToImage(), width, height, filter)
	return core.FromNRGBA(dst, img.Channels), nil
}

func check(ctx context.Context, img *core.RasterImage, width, height int) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "resample", err)
	}
	if width <= 0 || height <= 0 {
		return apperrors.Geometry("resample", fmt.Sprintf("%dx%d", width, height), apperrors.ErrZeroSize)
	}
	return img.Validate()
}
