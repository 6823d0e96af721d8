package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func TestProcessingError_Message(t *testing.T) {
	err := apperrors.InvalidArgument("rotate", 45, apperrors.ErrInvalidAngle)
	assert.Equal(t, "[invalid_argument] rotate (45): "+apperrors.ErrInvalidAngle.Error(), err.Error())

	err = apperrors.New(apperrors.CategoryDecode, "decode.png", errors.New("bad crc"))
	assert.Equal(t, "[decode] decode.png: bad crc", err.Error())
}

func TestWrapKeepsCategory(t *testing.T) {
	inner := apperrors.Geometry("resize", "1000x0", apperrors.ErrZeroSize)
	wrapped := apperrors.Wrap(apperrors.CategoryPipeline, "run", fmt.Errorf("stage: %w", inner))

	assert.Equal(t, apperrors.CategoryGeometry, apperrors.CategoryOf(wrapped))
	assert.ErrorIs(t, wrapped, apperrors.ErrZeroSize)
	assert.Nil(t, apperrors.Wrap(apperrors.CategoryPipeline, "run", nil))

	foreign := apperrors.Wrap(apperrors.CategoryStorage, "put", errors.New("disk full"))
	assert.True(t, apperrors.IsCategory(foreign, apperrors.CategoryStorage))
}

func TestRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(apperrors.Transient("s3.put", errors.New("timeout"))))
	assert.False(t, apperrors.IsRetryable(apperrors.New(apperrors.CategoryStorage, "s3.put", errors.New("denied"))))
	assert.False(t, apperrors.IsRetryable(errors.New("plain")))
}

func TestCategoryOfForeignError(t *testing.T) {
	assert.Equal(t, apperrors.Category(""), apperrors.CategoryOf(errors.New("plain")))
	assert.False(t, apperrors.IsCategory(nil, apperrors.CategoryDecode))
}
