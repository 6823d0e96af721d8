package main

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/rasterpipe/adapters/decoder"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// execute runs the root command with args and returns its output. Flag values
// are package state, so every run starts from the defaults.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range []*cobra.Command{transformCmd, engineCmd} {
		reset(c.Flags())
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJPEG(t *testing.T, dir string, w, h int, o core.Orientation) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	data, err := utils.InsertJPEGOrientation(buf.Bytes(), uint16(o))
	require.NoError(t, err)
	path := filepath.Join(dir, "in.jpg")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestEngineCommand(t *testing.T) {
	out, err := execute(t, "engine", "--simd=false", "--concurrency", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "cache:        true")
	assert.Contains(t, out, "simd:         false")
	assert.Contains(t, out, "concurrency:  3")
	assert.Contains(t, out, "backend:      go")
}

func TestEngineCommand_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rasterpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  cache: false\n  concurrency: 5\n"), 0o600))

	out, err := execute(t, "engine", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "cache:        false")
	assert.Contains(t, out, "concurrency:  5")

	// Flags win over the file.
	out, err = execute(t, "engine", "-c", path, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "concurrency:  2")
}

func TestEngineCommand_InvalidFlags(t *testing.T) {
	_, err := execute(t, "engine", "--concurrency", "-1")
	assert.Error(t, err)
	_, err = execute(t, "engine", "--log-format", "xml")
	assert.Error(t, err)
}

func TestTransformCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, 60, 80, core.OrientationLeftBottom)
	outPath := filepath.Join(dir, "out.jpg")

	out, err := execute(t, "transform", in, outPath, "--rotate", "auto", "--width", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "32x24 jpeg orientation=none policy=strip")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	img, meta, err := decoder.NewJPEG().Decode(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
	assert.Equal(t, 24, img.Height)
	_, ok := meta.Orientation()
	assert.False(t, ok)
}

func TestTransformCommand_FormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, 10, 20, core.OrientationTopLeft)

	out, err := execute(t, "transform", in, filepath.Join(dir, "out.png"), "--rotate", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "20x10 png")

	out, err = execute(t, "transform", in, filepath.Join(dir, "out.bin"), "--format", "gif", "--orientation", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "gif orientation=none policy=override(3)")
}

func TestTransformCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, 4, 4, core.OrientationTopLeft)
	out := filepath.Join(dir, "out.jpg")

	for _, args := range [][]string{
		{"transform", in},
		{"transform", in, out, "--rotate", "45"},
		{"transform", in, out, "--width", "4", "--fit", "stretch"},
		{"transform", in, out, "--fit", "cover"},
		{"transform", in, out, "--fit", "inside", "--rotate", "auto"},
		{"transform", in, out, "--orientation", "9"},
		{"transform", in, out, "--format", "bmp"},
		{"transform", filepath.Join(dir, "missing.jpg"), out},
	} {
		_, err := execute(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestTransformCommand_FitNeedsSize(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, 4, 4, core.OrientationTopLeft)
	out := filepath.Join(dir, "out.jpg")

	_, err := execute(t, "transform", in, out, "--fit", "cover")
	assert.ErrorIs(t, err, apperrors.ErrMissingDimensions)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvalidArgument))
	assert.NoFileExists(t, out)
}
