package resample_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/rasterpipe/adapters/resample"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func solid(w, h, channels, depth int, v byte) *core.RasterImage {
	r := core.AllocRaster(w, h, channels, depth)
	for i := range r.Pix {
		r.Pix[i] = v
	}
	return r
}

func TestKernels_KeepLayout(t *testing.T) {
	kernels := []core.Resampler{resample.Draw{}, resample.Imaging{}}
	layouts := []struct{ channels, depth int }{{1, 1}, {3, 1}, {4, 1}, {1, 2}, {4, 2}}

	for _, k := range kernels {
		for _, l := range layouts {
			src := solid(40, 30, l.channels, l.depth, 0xff)
			out, err := k.Resample(context.Background(), src, 20, 15)
			require.NoError(t, err, "%s %d/%d", k.Name(), l.channels, l.depth)
			assert.Equal(t, 20, out.Width)
			assert.Equal(t, 15, out.Height)
			assert.Equal(t, l.channels, out.Channels, k.Name())
			assert.Equal(t, l.depth, out.Depth, k.Name())
			assert.NoError(t, out.Validate())
		}
	}
}

func TestKernels_UniformStaysUniform(t *testing.T) {
	for _, k := range []core.Resampler{resample.Draw{}, resample.Imaging{}} {
		out, err := k.Resample(context.Background(), solid(16, 16, 3, 1, 0x80), 5, 7)
		require.NoError(t, err)
		for i, b := range out.Pix {
			assert.InDelta(t, 0x80, int(b), 1, "%s byte %d", k.Name(), i)
		}
	}
}

func TestKernels_DoNotTouchSource(t *testing.T) {
	src := solid(8, 8, 3, 1, 0x10).Freeze()
	before := src.Clone()
	for _, k := range []core.Resampler{resample.Draw{}, resample.Imaging{}} {
		_, err := k.Resample(context.Background(), src, 3, 3)
		require.NoError(t, err)
	}
	assert.True(t, before.Equal(src))
}

func TestKernels_Errors(t *testing.T) {
	src := solid(4, 4, 3, 1, 0)
	for _, k := range []core.Resampler{resample.Draw{}, resample.Imaging{}} {
		_, err := k.Resample(context.Background(), src, 0, 4)
		assert.ErrorIs(t, err, apperrors.ErrZeroSize)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = k.Resample(ctx, src, 2, 2)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, apperrors.CategoryPipeline, apperrors.CategoryOf(err))
	}
}

type countingKernel struct{ calls int }

func (*countingKernel) Name() string { return "counting" }

func (c *countingKernel) Resample(_ context.Context, img *core.RasterImage, w, h int) (*core.RasterImage, error) {
	c.calls++
	return core.AllocRaster(w, h, img.Channels, img.Depth), nil
}

func TestImaging_SixteenBitUsesFallback(t *testing.T) {
	fb := &countingKernel{}
	k := resample.Imaging{Fallback: fb}

	_, err := k.Resample(context.Background(), solid(4, 4, 4, 2, 0), 2, 2)
	require.NoError(t, err)
	_, err = k.Resample(context.Background(), solid(4, 4, 4, 1, 0), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, fb.calls)
}
