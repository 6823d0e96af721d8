package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func TestFixedRotation(t *testing.T) {
	for _, a := range []int{0, 90, 180, 270} {
		m, err := FixedRotation(a)
		require.NoError(t, err)
		assert.Equal(t, RotateFixed, m.Kind())
		assert.Equal(t, Angle(a), m.Angle())
	}
	for _, a := range []int{1, -90, 45, 360} {
		_, err := FixedRotation(a)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAngle, "angle %d", a)
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvalidArgument))
	}
}

func TestParseRotation(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"", "none", false},
		{"none", "none", false},
		{"AUTO", "auto", false},
		{"90", "90", false},
		{"270", "270", false},
		{"1", "", true},
		{"left", "", true},
	}
	for _, tt := range tests {
		m, err := ParseRotation(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, apperrors.ErrInvalidAngle, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, m.String())
	}
}

func TestNewTransformRequestDefaults(t *testing.T) {
	req, err := NewTransformRequest()
	require.NoError(t, err)
	assert.Equal(t, RotateNone, req.Rotation.Kind())
	assert.False(t, req.Flip)
	assert.False(t, req.Flop)
	_, ok := req.Resize()
	assert.False(t, ok)

	explicit, err := NewTransformRequest(WithFlip(false), WithFlop(false))
	require.NoError(t, err)
	assert.Equal(t, req, explicit)
}

func TestTransformRequestResizeIsACopy(t *testing.T) {
	req, err := NewTransformRequest(WithResize(320, 0, FitInside))
	require.NoError(t, err)
	shared := req

	target, ok := req.Resize()
	require.True(t, ok)
	target.Width = -1

	got, _ := shared.Resize()
	assert.Equal(t, 320, got.Width)
	assert.NoError(t, req.Validate())
	assert.Equal(t, req.Key(), shared.Key())
}

func TestNewTransformRequestInvalid(t *testing.T) {
	tests := []struct {
		name string
		opt  RequestOption
		want error
	}{
		{"bad angle", WithRotate(1), apperrors.ErrInvalidAngle},
		{"no dimensions", WithResize(0, 0, FitCover), apperrors.ErrMissingDimensions},
		{"negative width", WithResize(-1, 10, FitCover), apperrors.ErrNegativeDimension},
		{"unknown fit", WithResize(10, 10, FitPolicy("stretch")), apperrors.ErrUnknownFit},
		{"bad override", WithMetadataOverride(9), apperrors.ErrInvalidOrientation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransformRequest(tt.opt)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.CategoryInvalidArgument, apperrors.CategoryOf(err))
		})
	}
}

func TestParseFit(t *testing.T) {
	f, err := ParseFit("")
	require.NoError(t, err)
	assert.Equal(t, FitCover, f)

	f, err = ParseFit(" Inside ")
	require.NoError(t, err)
	assert.Equal(t, FitInside, f)

	_, err = ParseFit("crop")
	assert.ErrorIs(t, err, apperrors.ErrUnknownFit)
}

func TestResizePlan(t *testing.T) {
	tests := []struct {
		name       string
		target     ResizeTarget
		srcW, srcH int
		want       ResizePlan
	}{
		{"width only landscape", ResizeTarget{Width: 320}, 2725, 2225, ResizePlan{320, 261, 320, 261}},
		{"width only rounds down", ResizeTarget{Width: 320}, 800, 533, ResizePlan{320, 213, 320, 213}},
		{"width only rounds up", ResizeTarget{Width: 320}, 600, 800, ResizePlan{320, 427, 320, 427}},
		{"height only", ResizeTarget{Height: 240}, 800, 600, ResizePlan{320, 240, 320, 240}},
		{"cover crops", ResizeTarget{Width: 320, Height: 240, Fit: FitCover}, 2725, 2225, ResizePlan{320, 261, 320, 240}},
		{"default fit is cover", ResizeTarget{Width: 320, Height: 240}, 300, 400, ResizePlan{320, 427, 320, 240}},
		{"fill ignores aspect", ResizeTarget{Width: 320, Height: 240, Fit: FitFill}, 2725, 2225, ResizePlan{320, 240, 320, 240}},
		{"inside", ResizeTarget{Width: 320, Height: 240, Fit: FitInside}, 2725, 2225, ResizePlan{294, 240, 294, 240}},
		{"contain", ResizeTarget{Width: 320, Height: 240, Fit: FitContain}, 600, 800, ResizePlan{180, 240, 180, 240}},
		{"outside", ResizeTarget{Width: 320, Height: 240, Fit: FitOutside}, 2725, 2225, ResizePlan{320, 261, 320, 261}},
		{"exact aspect", ResizeTarget{Width: 320, Height: 240, Fit: FitCover}, 640, 480, ResizePlan{320, 240, 320, 240}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.target.Plan(tt.srcW, tt.srcH)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.CropWidth != tt.want.Width || tt.want.CropHeight != tt.want.Height, got.NeedsCrop())
		})
	}
}

func TestResizePlanZeroSize(t *testing.T) {
	_, err := ResizeTarget{Width: 10}.Plan(1000, 1)
	assert.ErrorIs(t, err, apperrors.ErrZeroSize)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryGeometry))

	_, err = ResizeTarget{Width: 10}.Plan(0, 10)
	assert.ErrorIs(t, err, apperrors.ErrZeroSize)
}

func TestRequestKey(t *testing.T) {
	a, err := NewTransformRequest(WithAutoRotate(), WithResize(320, 0, ""))
	require.NoError(t, err)
	b, err := NewTransformRequest(WithAutoRotate(), WithResize(320, 0, FitCover))
	require.NoError(t, err)
	c, err := NewTransformRequest(WithRotate(90), WithResize(320, 0, FitCover))
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "rot=90;flip=false;flop=false;resize=320x0:cover;orient=0;keep=false", c.Key())
}
