package vips_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/adapters/resample"
	"github.com/Skryldev/rasterpipe/adapters/vips"
	"github.com/Skryldev/rasterpipe/core"
)

func TestBackend_DecodeReportsTagWithoutApplyingIt(t *testing.T) {
	img, meta, err := backend.Decode(context.Background(), makeJPEG(t, 60, 40, core.OrientationRightTop))
	require.NoError(t, err)
	assert.Equal(t, 60, img.Width)
	assert.Equal(t, 40, img.Height)

	o, ok := meta.Orientation()
	require.True(t, ok)
	assert.Equal(t, core.OrientationRightTop, o)
}

func TestBackend_EncodeHonoursPolicy(t *testing.T) {
	src := core.AllocRaster(16, 8, 3, 1)
	enc := backend.EncodeFor(core.FormatJPEG)

	data, err := enc.Encode(context.Background(), src, core.EncodeOptions{Metadata: core.OverrideMetadata(core.OrientationLeftBottom)})
	require.NoError(t, err)
	x, err := exif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	tag, err := x.Get(exif.Orientation)
	require.NoError(t, err)
	v, err := tag.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	data, err = enc.Encode(context.Background(), src, core.EncodeOptions{Metadata: core.StripMetadata()})
	require.NoError(t, err)
	_, meta, err := backend.Decode(context.Background(), data)
	require.NoError(t, err)
	_, ok := meta.Orientation()
	assert.False(t, ok)
}

func TestKernel_KeepsChannelsAndSize(t *testing.T) {
	k := backend.Resampler()
	for _, ch := range []int{1, 3, 4} {
		out, err := k.Resample(context.Background(), core.AllocRaster(40, 30, ch, 1), 17, 11)
		require.NoError(t, err)
		assert.Equal(t, 17, out.Width)
		assert.Equal(t, 11, out.Height)
		assert.Equal(t, ch, out.Channels)
	}
	_, err := k.Resample(context.Background(), core.AllocRaster(4, 4, 3, 1), 0, 4)
	assert.Error(t, err)
}

func TestProcessor_WithVipsBackend(t *testing.T) {
	proc, err := rasterpipe.New(rasterpipe.DefaultConfig(),
		rasterpipe.WithCodecs(func(reg core.Registry) { vips.RegisterVipsBackend(reg, backend) }),
		rasterpipe.WithKernels(resample.Draw{}, backend.Resampler()),
	)
	require.NoError(t, err)
	assert.Equal(t, "vips", proc.Executor().Kernel().Name())

	req, err := rasterpipe.Request(rasterpipe.AutoRotate(), rasterpipe.Resize(32, 0, core.FitCover))
	require.NoError(t, err)
	res, err := proc.Process(context.Background(),
		rasterpipe.FromReader(bytes.NewReader(makeJPEG(t, 60, 80, core.OrientationLeftBottom))),
		req, core.OutputOptions{Format: core.FormatWebP})
	require.NoError(t, err)
	assert.Equal(t, 32, res.Width)
	assert.Equal(t, 24, res.Height)
	assert.False(t, res.HasOrientation)
}
