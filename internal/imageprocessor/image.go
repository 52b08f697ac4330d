// Package imageprocessor validates uploaded photos and turns them into the
// fixed-size tensors consumed by the classifiers.
package imageprocessor

import (
	"errors"
	"image"
)

// ErrInvalidImage marks client-side image faults: undecodable bytes or
// dimensions outside the accepted range.
var ErrInvalidImage = errors.New("image processing error")

// Accepted dimension range, inclusive, per side.
const (
	MinDimension = 50
	MaxDimension = 4000
)

// ColorMode is the colour mode of a validated image.
type ColorMode string

const (
	ModeRGB  ColorMode = "RGB"
	ModeRGBA ColorMode = "RGBA"
)

// ValidatedImage is a decoded image whose size and mode have been checked.
type ValidatedImage struct {
	img    *image.NRGBA
	Width  int
	Height int
	Mode   ColorMode
	Format string
}

// Image returns the normalised pixels.
func (v *ValidatedImage) Image() image.Image {
	return v.img
}

// Layout is the memory order of a tensor.
type Layout string

const (
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
)

// Tensor holds normalised RGB values in [0,1] for a Size x Size image with a
// batch dimension of one.
type Tensor struct {
	Data   []float32
	Size   int
	Layout Layout
}

// Shape returns the four tensor dimensions in layout order.
func (t Tensor) Shape() []int64 {
	s := int64(t.Size)
	if t.Layout == LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}
