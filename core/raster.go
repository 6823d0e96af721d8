package core

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// RasterImage is a decoded pixel buffer. Samples are interleaved per pixel,
// rows are tightly packed and 16-bit samples are big-endian, matching the
// layout of image.Gray16 / image.NRGBA64.
//
// Channels: 1 gray, 2 gray+alpha, 3 RGB, 4 RGBA (non-premultiplied).
// Depth: bytes per channel, 1 or 2.
type RasterImage struct {
	Pix      []byte
	Width    int
	Height   int
	Channels int
	Depth    int

	frozen bool
}

// NewRasterImage wraps pix and checks the buffer invariant.
func NewRasterImage(pix []byte, width, height, channels, depth int) (*RasterImage, error) {
	r := &RasterImage{Pix: pix, Width: width, Height: height, Channels: channels, Depth: depth}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// AllocRaster returns a zeroed raster with the given geometry.
func AllocRaster(width, height, channels, depth int) *RasterImage {
	return &RasterImage{
		Pix:      make([]byte, width*height*channels*depth),
		Width:    width,
		Height:   height,
		Channels: channels,
		Depth:    depth,
	}
}

// Validate checks len(Pix) == Width*Height*Channels*Depth.
func (r *RasterImage) Validate() error {
	if r == nil {
		return apperrors.New(apperrors.CategoryInput, "raster.validate", apperrors.ErrEmptyInput)
	}
	if r.Channels < 1 || r.Channels > 4 || (r.Depth != 1 && r.Depth != 2) {
		return apperrors.New(apperrors.CategoryInput, "raster.validate",
			fmt.Errorf("%w: %d channels, %d bytes per channel", apperrors.ErrUnsupportedLayout, r.Channels, r.Depth))
	}
	if r.Width < 0 || r.Height < 0 {
		return apperrors.New(apperrors.CategoryInput, "raster.validate",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, r.Width, r.Height))
	}
	if want := r.Width * r.Height * r.Channels * r.Depth; len(r.Pix) != want {
		return apperrors.New(apperrors.CategoryInput, "raster.validate",
			fmt.Errorf("%w: have %d bytes, want %d", apperrors.ErrBufferSize, len(r.Pix), want))
	}
	return nil
}

// PixelSize is the number of bytes per pixel.
func (r *RasterImage) PixelSize() int { return r.Channels * r.Depth }

// Stride is the number of bytes per row.
func (r *RasterImage) Stride() int { return r.Width * r.PixelSize() }

// SizeBytes is the length of the pixel buffer.
func (r *RasterImage) SizeBytes() int64 { return int64(len(r.Pix)) }

// Freeze marks the raster read-only. Frozen rasters may be shared between
// goroutines and cache entries. Freezing a frozen raster does not write to it.
func (r *RasterImage) Freeze() *RasterImage {
	if !r.frozen {
		r.frozen = true
	}
	return r
}

// Frozen reports whether the raster has been frozen.
func (r *RasterImage) Frozen() bool { return r.frozen }

// Clone returns an unfrozen deep copy.
func (r *RasterImage) Clone() *RasterImage {
	pix := make([]byte, len(r.Pix))
	copy(pix, r.Pix)
	return &RasterImage{Pix: pix, Width: r.Width, Height: r.Height, Channels: r.Channels, Depth: r.Depth}
}

// Writable returns r itself when the caller may mutate it, or a private copy
// when r is frozen.
func (r *RasterImage) Writable() *RasterImage {
	if r.frozen {
		return r.Clone()
	}
	return r
}

// Equal reports whether both rasters have the same geometry and bytes.
func (r *RasterImage) Equal(o *RasterImage) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Width == o.Width && r.Height == o.Height &&
		r.Channels == o.Channels && r.Depth == o.Depth &&
		bytes.Equal(r.Pix, o.Pix)
}

// ── Geometry ──────────────────────────────────────────────────────────────────
//
// Geometry is a pure permutation of pixels, so it is done directly on the
// buffer: every channel layout and depth is preserved byte for byte. Each
// operation returns a new raster and never writes into r.

// remap copies every source pixel (x, y) to dst(fn(x, y)).
func (r *RasterImage) remap(dstW, dstH int, fn func(x, y int) (int, int)) *RasterImage {
	dst := AllocRaster(dstW, dstH, r.Channels, r.Depth)
	ps := r.PixelSize()
	srcStride, dstStride := r.Stride(), dst.Stride()
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*srcStride : (y+1)*srcStride]
		for x := 0; x < r.Width; x++ {
			dx, dy := fn(x, y)
			o := dy*dstStride + dx*ps
			copy(dst.Pix[o:o+ps], row[x*ps:(x+1)*ps])
		}
	}
	return dst
}

// Rotate turns the image counter-clockwise by angle. 90 and 270 swap the axes.
func (r *RasterImage) Rotate(angle Angle) (*RasterImage, error) {
	w, h := r.Width, r.Height
	switch angle {
	case Angle0:
		return r, nil
	case Angle90:
		return r.remap(h, w, func(x, y int) (int, int) { return y, w - 1 - x }), nil
	case Angle180:
		return r.remap(w, h, func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }), nil
	case Angle270:
		return r.remap(h, w, func(x, y int) (int, int) { return h - 1 - y, x }), nil
	}
	return nil, apperrors.InvalidArgument("raster.rotate", int(angle), apperrors.ErrInvalidAngle)
}

// FlipVertical mirrors the image top to bottom.
func (r *RasterImage) FlipVertical() *RasterImage {
	dst := AllocRaster(r.Width, r.Height, r.Channels, r.Depth)
	stride := r.Stride()
	for y := 0; y < r.Height; y++ {
		copy(dst.Pix[(r.Height-1-y)*stride:(r.Height-y)*stride], r.Pix[y*stride:(y+1)*stride])
	}
	return dst
}

// FlipHorizontal mirrors the image left to right.
func (r *RasterImage) FlipHorizontal() *RasterImage {
	w := r.Width
	return r.remap(w, r.Height, func(x, y int) (int, int) { return w - 1 - x, y })
}

// Crop returns the w×h region whose top-left corner is (x, y).
func (r *RasterImage) Crop(x, y, w, h int) (*RasterImage, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > r.Width || y+h > r.Height {
		return nil, apperrors.Geometry("raster.crop", image.Rect(x, y, x+w, y+h),
			fmt.Errorf("%w: outside %dx%d", apperrors.ErrInvalidDimensions, r.Width, r.Height))
	}
	if x == 0 && y == 0 && w == r.Width && h == r.Height {
		return r, nil
	}
	dst := AllocRaster(w, h, r.Channels, r.Depth)
	ps := r.PixelSize()
	for row := 0; row < h; row++ {
		so := (y+row)*r.Stride() + x*ps
		copy(dst.Pix[row*dst.Stride():(row+1)*dst.Stride()], r.Pix[so:so+w*ps])
	}
	return dst, nil
}

// ── image.Image interop ───────────────────────────────────────────────────────

// ToImage exposes the raster as an image.Image for codecs and resampling
// kernels. Layouts with a direct stdlib equivalent share the buffer; the
// result must be treated as read-only.
func (r *RasterImage) ToImage() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch {
	case r.Channels == 1 && r.Depth == 1:
		return &image.Gray{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	case r.Channels == 1 && r.Depth == 2:
		return &image.Gray16{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	case r.Channels == 4 && r.Depth == 1:
		return &image.NRGBA{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	case r.Channels == 4 && r.Depth == 2:
		return &image.NRGBA64{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	}
	return r.expand()
}

// expand widens 2- and 3-channel rasters to RGBA at the same depth.
func (r *RasterImage) expand() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	n := r.Width * r.Height
	if r.Depth == 1 {
		dst := image.NewNRGBA(rect)
		for i := 0; i < n; i++ {
			s, d := r.Pix[i*r.Channels:], dst.Pix[i*4:]
			switch r.Channels {
			case 2:
				d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
			case 3:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
			}
		}
		return dst
	}
	dst := image.NewNRGBA64(rect)
	for i := 0; i < n; i++ {
		s, d := r.Pix[i*r.Channels*2:], dst.Pix[i*8:]
		switch r.Channels {
		case 2:
			copy(d[0:2], s[0:2])
			copy(d[2:4], s[0:2])
			copy(d[4:6], s[0:2])
			copy(d[6:8], s[2:4])
		case 3:
			copy(d[0:6], s[0:6])
			d[6], d[7] = 0xff, 0xff
		}
	}
	return dst
}

// RasterFromImage converts a decoded image into a raster. Gray sources keep a
// single channel, opaque colour sources drop alpha, 16-bit sources keep
// 16-bit samples.
func RasterFromImage(img image.Image) *RasterImage {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		return fromPlanar(src.Pix, src.Stride, b, 1, 1)
	case *image.Gray16:
		return fromPlanar(src.Pix, src.Stride, b, 1, 2)
	}

	opaque := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		opaque = o.Opaque()
	}
	channels := 4
	if opaque {
		channels = 3
	}
	if is16Bit(img) {
		nrgba := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, b.Min, xdraw.Src)
		return FromNRGBA64(nrgba, channels)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, b.Min, xdraw.Src)
	}
	return FromNRGBA(nrgba, channels)
}

// FromNRGBA narrows an 8-bit NRGBA image to the requested channel count.
// Gray layouts take the red channel.
func FromNRGBA(src *image.NRGBA, channels int) *RasterImage {
	b := src.Bounds()
	dst := AllocRaster(b.Dx(), b.Dy(), channels, 1)
	for y := 0; y < dst.Height; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+dst.Width*4]
		drow := dst.Pix[y*dst.Stride() : (y+1)*dst.Stride()]
		for x := 0; x < dst.Width; x++ {
			s, d := srow[x*4:x*4+4], drow[x*channels:]
			switch channels {
			case 1:
				d[0] = s[0]
			case 2:
				d[0], d[1] = s[0], s[3]
			case 3:
				d[0], d[1], d[2] = s[0], s[1], s[2]
			default:
				copy(d[:4], s)
			}
		}
	}
	return dst
}

// FromNRGBA64 narrows a 16-bit NRGBA image to the requested channel count.
func FromNRGBA64(src *image.NRGBA64, channels int) *RasterImage {
	b := src.Bounds()
	dst := AllocRaster(b.Dx(), b.Dy(), channels, 2)
	for y := 0; y < dst.Height; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+dst.Width*8]
		drow := dst.Pix[y*dst.Stride() : (y+1)*dst.Stride()]
		for x := 0; x < dst.Width; x++ {
			s, d := srow[x*8:x*8+8], drow[x*channels*2:]
			switch channels {
			case 1:
				copy(d[0:2], s[0:2])
			case 2:
				copy(d[0:2], s[0:2])
				copy(d[2:4], s[6:8])
			case 3:
				copy(d[0:6], s[0:6])
			default:
				copy(d[0:8], s)
			}
		}
	}
	return dst
}

func fromPlanar(pix []byte, stride int, b image.Rectangle, channels, depth int) *RasterImage {
	dst := AllocRaster(b.Dx(), b.Dy(), channels, depth)
	rowLen := dst.Stride()
	for y := 0; y < dst.Height; y++ {
		copy(dst.Pix[y*rowLen:(y+1)*rowLen], pix[y*stride:y*stride+rowLen])
	}
	return dst
}

func is16Bit(img image.Image) bool {
	switch img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model:
		return true
	}
	return false
}
