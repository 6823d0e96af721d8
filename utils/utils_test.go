package utils_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/rasterpipe/utils"
)

func plainJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func readOrientation(t *testing.T, data []byte) int {
	t.Helper()
	x, err := exif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	tag, err := x.Get(exif.Orientation)
	require.NoError(t, err)
	v, err := tag.Int(0)
	require.NoError(t, err)
	return v
}

func TestInsertJPEGOrientation(t *testing.T) {
	src := plainJPEG(t)

	for _, o := range []uint16{1, 3, 5, 8} {
		out, err := utils.InsertJPEGOrientation(src, o)
		require.NoError(t, err)
		assert.Equal(t, int(o), readOrientation(t, out))

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	}
}

func TestInsertJPEGOrientation_ReplacesExisting(t *testing.T) {
	once, err := utils.InsertJPEGOrientation(plainJPEG(t), 6)
	require.NoError(t, err)
	twice, err := utils.InsertJPEGOrientation(once, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, readOrientation(t, twice))
	assert.Equal(t, 1, bytes.Count(twice, []byte("Exif\x00\x00")))
	assert.Equal(t, len(once), len(twice))
}

func appSegment(marker byte, data string) []byte {
	n := len(data) + 2
	return append([]byte{0xFF, marker, byte(n >> 8), byte(n)}, data...)
}

func TestInsertJPEGOrientation_SegmentOrder(t *testing.T) {
	src := plainJPEG(t)
	jfif := appSegment(0xE0, "JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	xmp := appSegment(0xE1, "http://ns.adobe.com/xap/1.0/\x00<x/>")

	in := append([]byte{0xFF, 0xD8}, jfif...)
	in = append(in, xmp...)
	in = append(in, src[2:]...)

	out, err := utils.InsertJPEGOrientation(in, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, readOrientation(t, out))

	exifSeg := appSegment(0xE1, string(utils.OrientationPayload(6)))
	want := append([]byte{0xFF, 0xD8}, jfif...)
	want = append(want, exifSeg...)
	want = append(want, xmp...)
	want = append(want, src[2:]...)
	assert.Equal(t, want, out)
}

func TestInsertJPEGOrientation_Truncated(t *testing.T) {
	src := plainJPEG(t)
	in := append([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x40, 0x00}, "Exif"...)
	_, err := utils.InsertJPEGOrientation(in, 1)
	assert.ErrorIs(t, err, utils.ErrNotJPEG)

	_, err = utils.InsertJPEGOrientation(src[:1], 1)
	assert.ErrorIs(t, err, utils.ErrNotJPEG)
}

func TestInsertJPEGOrientation_NotJPEG(t *testing.T) {
	_, err := utils.InsertJPEGOrientation([]byte("\x89PNG\r\n\x1a\n"), 1)
	assert.ErrorIs(t, err, utils.ErrNotJPEG)
}

func TestDetectFormat(t *testing.T) {
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, image.NewGray(image.Rect(0, 0, 1, 1))))

	cases := map[string][]byte{
		"jpeg":    plainJPEG(t),
		"png":     pngBuf.Bytes(),
		"gif":     []byte("GIF89a\x01\x00\x01\x00"),
		"webp":    []byte("RIFF\x00\x00\x00\x00WEBPVP8 "),
		"avif":    []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"),
		"unknown": []byte("hello, world"),
	}
	for want, data := range cases {
		assert.Equal(t, want, utils.DetectFormat(data), want)
	}
	assert.Equal(t, "unknown", utils.DetectFormat([]byte{0xFF}))
}

func TestDigest(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		utils.Digest(nil))
	assert.NotEqual(t, utils.Digest([]byte("a")), utils.Digest([]byte("b")))
}

func TestLimitedReader(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		max     int64
		wantErr error
	}{
		{"under", "abc", 4, nil},
		{"exact", "abcd", 4, nil},
		{"over", "abcde", 4, utils.ErrTooLarge},
		{"unlimited", strings.Repeat("x", 1<<16), 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := io.ReadAll(&utils.LimitedReader{R: strings.NewReader(tc.input), Max: tc.max})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.input, string(data))
		})
	}
}

func TestDrainReader(t *testing.T) {
	buf, err := utils.DrainReader(context.Background(), strings.NewReader("pixels"), 2)
	require.NoError(t, err)
	assert.Equal(t, "pixels", buf.String())
	utils.ReleaseBuffer(buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = utils.DrainReader(ctx, strings.NewReader("pixels"), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkedWriter(t *testing.T) {
	var sizes []int
	w := &utils.ChunkedWriter{W: writerFunc(func(p []byte) (int, error) {
		sizes = append(sizes, len(p))
		return len(p), nil
	}), ChunkSize: 4}

	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []int{4, 4, 2}, sizes)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
