package core

import "fmt"

// MetaOrientation is the SourceMetadata key holding the EXIF orientation tag.
const MetaOrientation = "orientation"

// SourceMetadata holds tags extracted from the source container, keyed by
// lower-case tag name. A nil map means the format carries no metadata.
type SourceMetadata map[string]string

// Orientation returns the source orientation tag when present and valid.
func (m SourceMetadata) Orientation() (Orientation, bool) {
	v, ok := m[MetaOrientation]
	if !ok {
		return OrientationUnset, false
	}
	return ParseOrientation(v)
}

// Supported reports whether the source format carried a metadata block at all.
func (m SourceMetadata) Supported() bool { return m != nil }

// MetadataAction is what the encoder does with orientation metadata.
type MetadataAction uint8

const (
	ActionStrip MetadataAction = iota
	ActionPassThrough
	ActionOverride
)

func (a MetadataAction) String() string {
	switch a {
	case ActionPassThrough:
		return "passthrough"
	case ActionOverride:
		return "override"
	}
	return "strip"
}

// OutputMetadataPolicy tells the encoder which orientation tag, if any, to
// write. Value is only meaningful for ActionOverride.
type OutputMetadataPolicy struct {
	Action MetadataAction
	Value  Orientation
}

func StripMetadata() OutputMetadataPolicy { return OutputMetadataPolicy{Action: ActionStrip} }
func PassThroughMetadata() OutputMetadataPolicy {
	return OutputMetadataPolicy{Action: ActionPassThrough}
}
func OverrideMetadata(o Orientation) OutputMetadataPolicy {
	return OutputMetadataPolicy{Action: ActionOverride, Value: o}
}

func (p OutputMetadataPolicy) String() string {
	if p.Action == ActionOverride {
		return fmt.Sprintf("override(%d)", p.Value)
	}
	return p.Action.String()
}

// Embedded is the orientation value an encoder honouring p writes for a
// source with metadata src.
func (p OutputMetadataPolicy) Embedded(src SourceMetadata) (Orientation, bool) {
	switch p.Action {
	case ActionOverride:
		return p.Value, p.Value.Valid()
	case ActionPassThrough:
		return src.Orientation()
	}
	return OrientationUnset, false
}

// DecideMetadata picks the output policy after a pipeline run. An explicit
// override always wins; a consumed tag is never written back since the pixels
// are already upright; otherwise metadata survives only when asked for.
func DecideMetadata(consumedExif bool, override Orientation, outputRequested bool) OutputMetadataPolicy {
	switch {
	case override.Valid():
		return OverrideMetadata(override)
	case consumedExif:
		return StripMetadata()
	case !outputRequested:
		return StripMetadata()
	}
	return PassThroughMetadata()
}
