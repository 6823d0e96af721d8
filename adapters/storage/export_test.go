package storage

import (
	"io"
	"os"
)

// SetCreate replaces the function Local uses to open files for writing.
func (l *Local) SetCreate(fn func(path string, perm os.FileMode) (io.WriteCloser, error)) {
	l.create = fn
}
