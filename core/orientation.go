package core

import (
	"strconv"
	"strings"
)

// Angle is a counter-clockwise rotation in degrees.
type Angle int

const (
	Angle0   Angle = 0
	Angle90  Angle = 90
	Angle180 Angle = 180
	Angle270 Angle = 270
)

// Valid reports whether a is a right-angle multiple the pipeline can apply.
func (a Angle) Valid() bool {
	switch a {
	case Angle0, Angle90, Angle180, Angle270:
		return true
	}
	return false
}

// SwapsAxes reports whether rotating by a exchanges width and height.
func (a Angle) SwapsAxes() bool { return a == Angle90 || a == Angle270 }

// Orientation is the EXIF orientation tag. Zero means unset.
type Orientation int

const (
	OrientationUnset       Orientation = 0
	OrientationTopLeft     Orientation = 1
	OrientationTopRight    Orientation = 2
	OrientationBottomRight Orientation = 3
	OrientationBottomLeft  Orientation = 4
	OrientationLeftTop     Orientation = 5
	OrientationRightTop    Orientation = 6
	OrientationRightBottom Orientation = 7
	OrientationLeftBottom  Orientation = 8
)

// Valid reports whether o is one of the eight defined tag values.
func (o Orientation) Valid() bool { return o >= OrientationTopLeft && o <= OrientationLeftBottom }

// SwapsAxes reports whether displaying an image with tag o exchanges its
// stored width and height.
func (o Orientation) SwapsAxes() bool { return o >= OrientationLeftTop && o <= OrientationLeftBottom }

func (o Orientation) String() string { return strconv.Itoa(int(o)) }

// ParseOrientation reads a tag value as stored in SourceMetadata.
func ParseOrientation(s string) (Orientation, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return OrientationUnset, false
	}
	o := Orientation(n)
	return o, o.Valid()
}

// GeometricTransform is a rotation followed by an optional horizontal mirror.
type GeometricTransform struct {
	Rotation Angle
	Mirror   bool
}

// IsIdentity reports whether applying g leaves pixels untouched.
func (g GeometricTransform) IsIdentity() bool { return g.Rotation == Angle0 && !g.Mirror }

var orientationTable = [...]GeometricTransform{
	OrientationTopLeft:     {Angle0, false},
	OrientationTopRight:    {Angle0, true},
	OrientationBottomRight: {Angle180, false},
	OrientationBottomLeft:  {Angle180, true},
	OrientationLeftTop:     {Angle270, true},
	OrientationRightTop:    {Angle270, false},
	OrientationRightBottom: {Angle90, true},
	OrientationLeftBottom:  {Angle90, false},
}

// Resolve maps an orientation tag to the transform that brings the stored
// pixels upright. Unknown tags resolve to the identity.
func Resolve(tag Orientation) GeometricTransform {
	if !tag.Valid() {
		return GeometricTransform{}
	}
	return orientationTable[tag]
}
