package core

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ── Rotation mode ─────────────────────────────────────────────────────────────

// RotationKind tags the variant held by a RotationMode.
type RotationKind uint8

const (
	RotateNone RotationKind = iota
	RotateAuto
	RotateFixed
)

// RotationMode is one of None, Auto (derive from the EXIF tag) or Fixed(angle).
// The zero value is None.
type RotationMode struct {
	kind  RotationKind
	angle Angle
}

// NoRotation leaves the pixels as stored.
func NoRotation() RotationMode { return RotationMode{} }

// AutoRotation rotates and mirrors according to the source orientation tag.
func AutoRotation() RotationMode { return RotationMode{kind: RotateAuto} }

// FixedRotation rotates counter-clockwise by angle degrees and ignores any
// orientation tag.
func FixedRotation(angle int) (RotationMode, error) {
	a := Angle(angle)
	if !a.Valid() {
		return RotationMode{}, apperrors.InvalidArgument("rotate", angle, apperrors.ErrInvalidAngle)
	}
	return RotationMode{kind: RotateFixed, angle: a}, nil
}

// ParseRotation accepts "", "none", "auto" or an angle in degrees.
func ParseRotation(s string) (RotationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoRotation(), nil
	case "auto":
		return AutoRotation(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return RotationMode{}, apperrors.InvalidArgument("rotate", s, apperrors.ErrInvalidAngle)
	}
	return FixedRotation(n)
}

func (m RotationMode) Kind() RotationKind { return m.kind }

// Angle is the fixed angle; zero for None and Auto.
func (m RotationMode) Angle() Angle { return m.angle }

func (m RotationMode) String() string {
	switch m.kind {
	case RotateAuto:
		return "auto"
	case RotateFixed:
		return strconv.Itoa(int(m.angle))
	}
	return "none"
}

// ── Fit policy ────────────────────────────────────────────────────────────────

// FitPolicy decides how a source is mapped onto a resize box.
type FitPolicy string

const (
	FitCover   FitPolicy = "cover"   // preserve aspect, cover the box, centre-crop to it
	FitContain FitPolicy = "contain" // preserve aspect, fit within the box, no padding
	FitFill    FitPolicy = "fill"    // ignore aspect, exactly the box
	FitInside  FitPolicy = "inside"  // preserve aspect, as large as possible within the box
	FitOutside FitPolicy = "outside" // preserve aspect, as small as possible covering the box
)

// ParseFit returns the fit policy named s. An empty string means cover.
func ParseFit(s string) (FitPolicy, error) {
	f := FitPolicy(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FitCover, nil
	}
	if !f.Valid() {
		return "", apperrors.InvalidArgument("fit", s, apperrors.ErrUnknownFit)
	}
	return f, nil
}

func (f FitPolicy) Valid() bool {
	switch f {
	case FitCover, FitContain, FitFill, FitInside, FitOutside:
		return true
	}
	return false
}

// ── Resize target ─────────────────────────────────────────────────────────────

// ResizeTarget is a requested output box. A zero dimension is absent and is
// derived from the source aspect ratio.
type ResizeTarget struct {
	Width  int
	Height int
	Fit    FitPolicy // empty means cover
}

func (t ResizeTarget) fit() FitPolicy {
	if t.Fit == "" {
		return FitCover
	}
	return t.Fit
}

// Validate checks the target without looking at any image.
func (t ResizeTarget) Validate() error {
	if t.Width < 0 {
		return apperrors.InvalidArgument("resize.width", t.Width, apperrors.ErrNegativeDimension)
	}
	if t.Height < 0 {
		return apperrors.InvalidArgument("resize.height", t.Height, apperrors.ErrNegativeDimension)
	}
	if t.Width == 0 && t.Height == 0 {
		return apperrors.InvalidArgument("resize", nil, apperrors.ErrMissingDimensions)
	}
	if !t.fit().Valid() {
		return apperrors.InvalidArgument("resize.fit", string(t.Fit), apperrors.ErrUnknownFit)
	}
	return nil
}

// ResizePlan is the outcome of applying a target to a concrete source size:
// resample to Width×Height, then centre-crop to CropWidth×CropHeight.
type ResizePlan struct {
	Width, Height         int
	CropWidth, CropHeight int
}

// NeedsCrop reports whether the plan ends with a crop.
func (p ResizePlan) NeedsCrop() bool { return p.CropWidth != p.Width || p.CropHeight != p.Height }

// Plan computes the output geometry for a srcW×srcH image. Derived dimensions
// are rounded half up. A plan with a zero dimension is an UnsupportedGeometry
// error.
func (t ResizeTarget) Plan(srcW, srcH int) (ResizePlan, error) {
	if err := t.Validate(); err != nil {
		return ResizePlan{}, err
	}
	if srcW <= 0 || srcH <= 0 {
		return ResizePlan{}, apperrors.Geometry("resize", fmt.Sprintf("%dx%d", srcW, srcH), apperrors.ErrZeroSize)
	}

	w, h := t.Width, t.Height
	fit := t.fit()
	var plan ResizePlan
	switch {
	case h == 0:
		plan.Width, plan.Height = w, scaleRound(srcH, w, srcW)
	case w == 0:
		plan.Width, plan.Height = scaleRound(srcW, h, srcH), h
	case fit == FitFill:
		plan.Width, plan.Height = w, h
	case fit == FitInside || fit == FitContain:
		// w/srcW <= h/srcH: width is the binding side.
		if int64(w)*int64(srcH) <= int64(h)*int64(srcW) {
			plan.Width, plan.Height = w, scaleRound(srcH, w, srcW)
		} else {
			plan.Width, plan.Height = scaleRound(srcW, h, srcH), h
		}
	default: // cover, outside
		if int64(w)*int64(srcH) >= int64(h)*int64(srcW) {
			plan.Width, plan.Height = w, scaleRound(srcH, w, srcW)
		} else {
			plan.Width, plan.Height = scaleRound(srcW, h, srcH), h
		}
	}

	plan.CropWidth, plan.CropHeight = plan.Width, plan.Height
	if fit == FitCover && w > 0 && h > 0 {
		plan.CropWidth, plan.CropHeight = min(w, plan.Width), min(h, plan.Height)
	}
	if plan.Width <= 0 || plan.Height <= 0 || plan.CropWidth <= 0 || plan.CropHeight <= 0 {
		return ResizePlan{}, apperrors.Geometry("resize",
			fmt.Sprintf("%dx%d -> %dx%d", srcW, srcH, plan.CropWidth, plan.CropHeight), apperrors.ErrZeroSize)
	}
	return plan, nil
}

// scaleRound returns round-half-up(v*num/den).
func scaleRound(v, num, den int) int {
	n := 2*int64(v)*int64(num) + int64(den)
	return int(n / (2 * int64(den)))
}

// ── TransformRequest ──────────────────────────────────────────────────────────

// TransformRequest is the caller's intent for one pipeline run. It is a value
// type; build it with NewTransformRequest so it is validated up front.
type TransformRequest struct {
	Rotation RotationMode
	Flip     bool // vertical mirror
	Flop     bool // horizontal mirror

	resize    ResizeTarget
	hasResize bool

	// MetadataOverride forces this orientation tag into the output. Zero is unset.
	MetadataOverride Orientation
	// KeepMetadata asks for source metadata to be carried into the output.
	KeepMetadata bool
}

// RequestOption configures a TransformRequest.
type RequestOption func(*TransformRequest) error

// NewTransformRequest applies opts in order and validates the result.
func NewTransformRequest(opts ...RequestOption) (TransformRequest, error) {
	var r TransformRequest
	for _, opt := range opts {
		if err := opt(&r); err != nil {
			return TransformRequest{}, err
		}
	}
	if err := r.Validate(); err != nil {
		return TransformRequest{}, err
	}
	return r, nil
}

// WithAutoRotate orients the image from its EXIF tag.
func WithAutoRotate() RequestOption {
	return func(r *TransformRequest) error {
		r.Rotation = AutoRotation()
		return nil
	}
}

// WithRotate rotates counter-clockwise by a fixed angle.
func WithRotate(angle int) RequestOption {
	return func(r *TransformRequest) error {
		m, err := FixedRotation(angle)
		if err != nil {
			return err
		}
		r.Rotation = m
		return nil
	}
}

// WithRotation sets an already-built rotation mode.
func WithRotation(m RotationMode) RequestOption {
	return func(r *TransformRequest) error {
		r.Rotation = m
		return nil
	}
}

func WithFlip(v bool) RequestOption {
	return func(r *TransformRequest) error {
		r.Flip = v
		return nil
	}
}

func WithFlop(v bool) RequestOption {
	return func(r *TransformRequest) error {
		r.Flop = v
		return nil
	}
}

// WithResize sets the output box. Pass 0 for a dimension to derive it.
func WithResize(width, height int, fit FitPolicy) RequestOption {
	return func(r *TransformRequest) error {
		r.resize = ResizeTarget{Width: width, Height: height, Fit: fit}
		r.hasResize = true
		return nil
	}
}

// Resize returns a copy of the output box and whether one was requested.
func (r TransformRequest) Resize() (ResizeTarget, bool) { return r.resize, r.hasResize }

// WithMetadataOverride writes the given orientation tag into the output.
func WithMetadataOverride(o Orientation) RequestOption {
	return func(r *TransformRequest) error {
		r.MetadataOverride = o
		return nil
	}
}

// WithKeepMetadata carries source metadata into the output when no tag was
// consumed.
func WithKeepMetadata(v bool) RequestOption {
	return func(r *TransformRequest) error {
		r.KeepMetadata = v
		return nil
	}
}

// Validate reports the first invalid argument in r.
func (r TransformRequest) Validate() error {
	if r.Rotation.kind == RotateFixed && !r.Rotation.angle.Valid() {
		return apperrors.InvalidArgument("rotate", int(r.Rotation.angle), apperrors.ErrInvalidAngle)
	}
	if r.Rotation.kind > RotateFixed {
		return apperrors.InvalidArgument("rotate", int(r.Rotation.kind), apperrors.ErrInvalidAngle)
	}
	if r.hasResize {
		if err := r.resize.Validate(); err != nil {
			return err
		}
	}
	if r.MetadataOverride != OrientationUnset && !r.MetadataOverride.Valid() {
		return apperrors.InvalidArgument("metadata.orientation", int(r.MetadataOverride), apperrors.ErrInvalidOrientation)
	}
	return nil
}

// Key is a stable textual form of r, used to key cached results.
func (r TransformRequest) Key() string {
	var b strings.Builder
	b.WriteString("rot=")
	b.WriteString(r.Rotation.String())
	fmt.Fprintf(&b, ";flip=%t;flop=%t", r.Flip, r.Flop)
	if r.hasResize {
		fmt.Fprintf(&b, ";resize=%dx%d:%s", r.resize.Width, r.resize.Height, r.resize.fit())
	}
	fmt.Fprintf(&b, ";orient=%d;keep=%t", r.MetadataOverride, r.KeepMetadata)
	return b.String()
}
