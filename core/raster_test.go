package core

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// marker returns a 1-channel raster whose pixel (x, y) holds y*w+x+1, so
// every position is distinguishable after a permutation.
func marker(t *testing.T, w, h int) *RasterImage {
	t.Helper()
	r := AllocRaster(w, h, 1, 1)
	for i := range r.Pix {
		r.Pix[i] = byte(i + 1)
	}
	return r
}

func at(r *RasterImage, x, y int) byte { return r.Pix[y*r.Stride()+x*r.PixelSize()] }

func TestRasterValidate(t *testing.T) {
	tests := []struct {
		name string
		r    *RasterImage
		want error
	}{
		{"ok", &RasterImage{Pix: make([]byte, 2*3*4), Width: 2, Height: 3, Channels: 4, Depth: 1}, nil},
		{"sixteen bit", &RasterImage{Pix: make([]byte, 2*2*3*2), Width: 2, Height: 2, Channels: 3, Depth: 2}, nil},
		{"short buffer", &RasterImage{Pix: make([]byte, 5), Width: 2, Height: 3, Channels: 1, Depth: 1}, apperrors.ErrBufferSize},
		{"five channels", &RasterImage{Pix: make([]byte, 5), Width: 1, Height: 1, Channels: 5, Depth: 1}, apperrors.ErrUnsupportedLayout},
		{"depth three", &RasterImage{Pix: make([]byte, 3), Width: 1, Height: 1, Channels: 1, Depth: 3}, apperrors.ErrUnsupportedLayout},
		{"negative", &RasterImage{Width: -1, Height: 1, Channels: 1, Depth: 1}, apperrors.ErrInvalidDimensions},
		{"nil", nil, apperrors.ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewRasterImage(t *testing.T) {
	_, err := NewRasterImage(make([]byte, 7), 2, 2, 2, 1)
	assert.ErrorIs(t, err, apperrors.ErrBufferSize)

	r, err := NewRasterImage(make([]byte, 8), 2, 2, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Stride())
	assert.EqualValues(t, 8, r.SizeBytes())
}

func TestRotate(t *testing.T) {
	// 3x2:
	//   1 2 3
	//   4 5 6
	src := marker(t, 3, 2)

	r90, err := src.Rotate(Angle90)
	require.NoError(t, err)
	assert.Equal(t, 2, r90.Width)
	assert.Equal(t, 3, r90.Height)
	// Counter-clockwise: the top-right pixel ends up top-left.
	assert.Equal(t, []byte{3, 6, 2, 5, 1, 4}, r90.Pix)

	r180, err := src.Rotate(Angle180)
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 5, 4, 3, 2, 1}, r180.Pix)

	r270, err := src.Rotate(Angle270)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 1, 5, 2, 6, 3}, r270.Pix)

	r0, err := src.Rotate(Angle0)
	require.NoError(t, err)
	assert.Same(t, src, r0)

	_, err = src.Rotate(Angle(45))
	assert.ErrorIs(t, err, apperrors.ErrInvalidAngle)
}

func TestRotateComposes(t *testing.T) {
	src := marker(t, 5, 3)
	a, _ := src.Rotate(Angle90)
	b, _ := a.Rotate(Angle270)
	assert.True(t, src.Equal(b))

	c, _ := a.Rotate(Angle90)
	d, _ := src.Rotate(Angle180)
	assert.True(t, c.Equal(d))
}

func TestFlips(t *testing.T) {
	src := marker(t, 3, 2)
	assert.Equal(t, []byte{3, 2, 1, 6, 5, 4}, src.FlipHorizontal().Pix)
	assert.Equal(t, []byte{4, 5, 6, 1, 2, 3}, src.FlipVertical().Pix)
	assert.True(t, src.FlipHorizontal().FlipHorizontal().Equal(src))
}

func TestGeometryKeepsLayoutAndNeverWritesSource(t *testing.T) {
	src := AllocRaster(4, 3, 4, 2)
	for i := range src.Pix {
		src.Pix[i] = byte(i)
	}
	before := src.Clone()
	src.Freeze()

	rot, err := src.Rotate(Angle270)
	require.NoError(t, err)
	assert.Equal(t, 4, rot.Channels)
	assert.Equal(t, 2, rot.Depth)
	require.NoError(t, rot.Validate())
	src.FlipHorizontal()
	src.FlipVertical()

	assert.True(t, before.Equal(src))
	assert.False(t, rot.Frozen())
	// The pixel at (0, 0) moves to (h-1, 0) under a 270° turn.
	assert.Equal(t, src.Pix[:8], rot.Pix[(3-1)*8:(3-1)*8+8])
}

func TestCrop(t *testing.T) {
	src := marker(t, 4, 3)
	c, err := src.Crop(1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 7, 10, 11}, c.Pix)

	same, err := src.Crop(0, 0, 4, 3)
	require.NoError(t, err)
	assert.Same(t, src, same)

	_, err = src.Crop(3, 0, 2, 1)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryGeometry))
}

func TestWritable(t *testing.T) {
	r := marker(t, 2, 2)
	assert.Same(t, r, r.Writable())
	r.Freeze()
	w := r.Writable()
	assert.NotSame(t, r, w)
	assert.False(t, w.Frozen())
	assert.True(t, w.Equal(r))
}

func TestRasterFromImage(t *testing.T) {
	t.Run("gray keeps one channel", func(t *testing.T) {
		g := image.NewGray(image.Rect(0, 0, 2, 2))
		g.Pix = []byte{1, 2, 3, 4}
		r := RasterFromImage(g)
		assert.Equal(t, 1, r.Channels)
		assert.Equal(t, []byte{1, 2, 3, 4}, r.Pix)
	})
	t.Run("opaque drops alpha", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		r := RasterFromImage(img)
		assert.Equal(t, 3, r.Channels)
		assert.Equal(t, []byte{10, 20, 30}, r.Pix)
	})
	t.Run("alpha kept", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
		r := RasterFromImage(img)
		assert.Equal(t, 4, r.Channels)
		assert.Equal(t, []byte{10, 20, 30, 40}, r.Pix)
	})
	t.Run("sixteen bit", func(t *testing.T) {
		img := image.NewNRGBA64(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.NRGBA64{R: 0x1234, G: 0x5678, B: 0x9abc, A: 0xffff})
		r := RasterFromImage(img)
		assert.Equal(t, 2, r.Depth)
		assert.Equal(t, 3, r.Channels)
		assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc}, r.Pix)
	})
}

func TestToImageRoundTrip(t *testing.T) {
	for _, ch := range []int{1, 2, 3, 4} {
		src := AllocRaster(3, 2, ch, 1)
		for i := range src.Pix {
			src.Pix[i] = byte(10 * (i + 1))
		}
		if ch == 2 || ch == 4 {
			for i := ch - 1; i < len(src.Pix); i += ch {
				src.Pix[i] = 0xff
			}
		}
		img := src.ToImage()
		assert.Equal(t, 3, img.Bounds().Dx())
		if ch == 1 {
			assert.True(t, RasterFromImage(img).Equal(src))
		}
	}
	rgb := AllocRaster(1, 1, 3, 1)
	copy(rgb.Pix, []byte{1, 2, 3})
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 0xff}, rgb.ToImage().At(0, 0))
	assert.Equal(t, byte(1), at(rgb, 0, 0))
}
