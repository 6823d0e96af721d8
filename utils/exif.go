package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jseg "github.com/garyhouston/jpegsegs"
)

const (
	tagOrientation = 0x0112
	typeShort      = 3
)

var exifHeader = []byte("Exif\x00\x00")

// ErrNotJPEG is returned when a buffer does not start with a JPEG SOI marker.
var ErrNotJPEG = errors.New("not a JPEG stream")

// OrientationPayload builds the data of a minimal big-endian EXIF APP1
// segment holding a single IFD0 entry: the orientation tag.
func OrientationPayload(orientation uint16) []byte {
	var tiff bytes.Buffer
	be := binary.BigEndian
	tiff.Write(exifHeader)
	tiff.WriteString("MM")
	_ = binary.Write(&tiff, be, uint16(42))
	_ = binary.Write(&tiff, be, uint32(8)) // IFD0 follows the header
	_ = binary.Write(&tiff, be, uint16(1)) // one entry
	_ = binary.Write(&tiff, be, uint16(tagOrientation))
	_ = binary.Write(&tiff, be, uint16(typeShort))
	_ = binary.Write(&tiff, be, uint32(1))
	_ = binary.Write(&tiff, be, orientation)
	_ = binary.Write(&tiff, be, uint16(0)) // value padding
	_ = binary.Write(&tiff, be, uint32(0)) // no IFD1
	return tiff.Bytes()
}

type segment struct {
	marker jseg.Marker
	data   []byte
}

// InsertJPEGOrientation returns a copy of jpg with an orientation APP1
// segment placed after SOI and any leading JFIF APP0 segment. Existing EXIF
// APP1 segments in that leading run are dropped. Everything from the first
// non-APP0/APP1 marker on is copied unchanged.
func InsertJPEGOrientation(jpg []byte, orientation uint16) ([]byte, error) {
	r := bytes.NewReader(jpg)
	scanner, err := jseg.NewScanner(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJPEG, err)
	}

	var (
		app0 *segment
		head []segment
		rest int64
	)
	for {
		rest, _ = r.Seek(0, io.SeekCurrent)
		marker, data, err := scanner.Scan()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotJPEG, err)
		}
		if marker != jseg.APP0 && marker != jseg.APP1 {
			break
		}
		seg := segment{marker: marker, data: bytes.Clone(data)}
		switch {
		case marker == jseg.APP0 && app0 == nil:
			app0 = &seg
		case marker == jseg.APP1 && bytes.HasPrefix(seg.data, exifHeader):
			// replaced below
		default:
			head = append(head, seg)
		}
	}

	out := &seekBuffer{buf: make([]byte, 0, len(jpg)+64)}
	dumper, err := jseg.NewDumper(out)
	if err != nil {
		return nil, err
	}
	segs := make([]segment, 0, len(head)+2)
	if app0 != nil {
		segs = append(segs, *app0)
	}
	segs = append(segs, segment{marker: jseg.APP1, data: OrientationPayload(orientation)})
	segs = append(segs, head...)
	for _, s := range segs {
		if err := dumper.Dump(s.marker, s.data); err != nil {
			return nil, err
		}
	}
	if _, err := out.Write(jpg[rest:]); err != nil {
		return nil, err
	}
	return out.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker for the segment dumper.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.buf))
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if base+offset < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(base + offset)
	return int64(b.pos), nil
}
