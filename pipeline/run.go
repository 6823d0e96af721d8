package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// State is the position of a Run in its lifecycle. States only move forward.
type State uint8

const (
	StateDecoded State = iota
	StateOrientationResolved
	StateGeometryApplied
	StateResized
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateDecoded:
		return "decoded"
	case StateOrientationResolved:
		return "orientation_resolved"
	case StateGeometryApplied:
		return "geometry_applied"
	case StateResized:
		return "resized"
	case StateFinalized:
		return "finalized"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Run carries one raster through the pipeline states. It is not safe for
// concurrent use; each invocation owns its Run.
type Run struct {
	state     State
	input     *core.RasterImage
	img       *core.RasterImage
	meta      core.SourceMetadata
	req       core.TransformRequest
	transform core.GeometricTransform
	record    core.ConsumptionRecord
	taken     bool
}

// NewRun validates req and img and returns a Run in StateDecoded. The request
// is checked before the buffer is looked at.
func NewRun(img *core.RasterImage, meta core.SourceMetadata, req core.TransformRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return &Run{state: StateDecoded, input: img, img: img, meta: meta, req: req}, nil
}

// State returns the current state.
func (r *Run) State() State { return r.state }

// Image is the raster as of the current state.
func (r *Run) Image() *core.RasterImage { return r.img }

// Transform is the rotation and mirror chosen by ResolveOrientation.
func (r *Run) Transform() core.GeometricTransform { return r.transform }

func (r *Run) expect(s State, op string) error {
	if r.state != s {
		return apperrors.New(apperrors.CategoryPipeline, op,
			fmt.Errorf("%w: in %s, want %s", apperrors.ErrStateOrder, r.state, s))
	}
	return nil
}

// ResolveOrientation picks the rotation for the request's rotation mode.
// Auto consumes the source tag when there is a valid one; Fixed ignores it.
func (r *Run) ResolveOrientation() error {
	if err := r.expect(StateDecoded, core.StageOrientation); err != nil {
		return err
	}
	switch r.req.Rotation.Kind() {
	case core.RotateAuto:
		if tag, ok := r.meta.Orientation(); ok {
			r.transform = core.Resolve(tag)
			r.record.ConsumedExif = true
			r.record.Orientation = tag
		}
	case core.RotateFixed:
		r.transform = core.GeometricTransform{Rotation: r.req.Rotation.Angle()}
	}
	r.state = StateOrientationResolved
	return nil
}

// ApplyGeometry rotates, then applies the horizontal mirror (orientation
// mirror XOR flop), then the vertical flip.
func (r *Run) ApplyGeometry() error {
	if err := r.expect(StateOrientationResolved, core.StageGeometry); err != nil {
		return err
	}
	img := r.img
	if r.transform.Rotation != core.Angle0 {
		rotated, err := img.Rotate(r.transform.Rotation)
		if err != nil {
			return err
		}
		img = rotated
		r.record.Applied = append(r.record.Applied, "rotate:"+strconv.Itoa(int(r.transform.Rotation)))
	}
	if r.transform.Mirror != r.req.Flop {
		img = img.FlipHorizontal()
		if r.req.Flop {
			r.record.Applied = append(r.record.Applied, "flop")
		} else {
			r.record.Applied = append(r.record.Applied, "mirror")
		}
	}
	if r.req.Flip {
		img = img.FlipVertical()
		r.record.Applied = append(r.record.Applied, "flip")
	}
	r.img = img
	r.state = StateGeometryApplied
	return nil
}

// Resize scales to the request's target using kernel, then centre-crops for
// the cover policy. Without a target it only advances the state.
func (r *Run) Resize(ctx context.Context, kernel core.Resampler) error {
	if err := r.expect(StateGeometryApplied, core.StageResize); err != nil {
		return err
	}
	if target, ok := r.req.Resize(); ok {
		out, err := resize(ctx, r.img, target, kernel)
		if err != nil {
			return err
		}
		if out != r.img {
			r.record.Applied = append(r.record.Applied, fmt.Sprintf("resize:%dx%d", out.Width, out.Height))
		}
		r.img = out
	}
	r.state = StateResized
	return nil
}

// Finalize freezes the raster; the Run then only supports Take. When no stage
// produced a new raster the input is never written: a frozen input is handed
// back as is and an unfrozen one is copied first.
func (r *Run) Finalize() error {
	if err := r.expect(StateResized, core.StageFinalize); err != nil {
		return err
	}
	switch {
	case r.img != r.input:
		r.img.Freeze()
	case !r.img.Frozen():
		r.img = r.img.Clone().Freeze()
	}
	r.state = StateFinalized
	return nil
}

// Take hands out the final raster and record. It succeeds once.
func (r *Run) Take() (*core.RasterImage, core.ConsumptionRecord, error) {
	if err := r.expect(StateFinalized, "take"); err != nil {
		return nil, core.ConsumptionRecord{}, err
	}
	if r.taken {
		return nil, core.ConsumptionRecord{}, apperrors.New(apperrors.CategoryPipeline, "take", apperrors.ErrAlreadyTaken)
	}
	r.taken = true
	return r.img, r.record, nil
}

func resize(ctx context.Context, img *core.RasterImage, target core.ResizeTarget, kernel core.Resampler) (*core.RasterImage, error) {
	plan, err := target.Plan(img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	out := img
	if plan.Width != img.Width || plan.Height != img.Height {
		if kernel == nil {
			return nil, apperrors.New(apperrors.CategoryPipeline, core.StageResize, fmt.Errorf("no resampling kernel"))
		}
		out, err = kernel.Resample(ctx, img, plan.Width, plan.Height)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, core.StageResize, err)
		}
	}
	if plan.NeedsCrop() {
		x := (plan.Width - plan.CropWidth) / 2
		y := (plan.Height - plan.CropHeight) / 2
		return out.Crop(x, y, plan.CropWidth, plan.CropHeight)
	}
	return out, nil
}
