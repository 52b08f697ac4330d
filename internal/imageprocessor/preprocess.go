package imageprocessor

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// DefaultSizes is the scale ladder, tried in this order.
var DefaultSizes = []int{224, 128, 256}

// Preprocessor resizes a validated image to each configured size.
type Preprocessor struct {
	sizes  []int
	layout Layout
	logger *zap.Logger
}

// NewPreprocessor builds a preprocessor. A nil or empty sizes slice selects
// DefaultSizes.
func NewPreprocessor(sizes []int, layout Layout, logger *zap.Logger) *Preprocessor {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	if layout == "" {
		layout = LayoutNHWC
	}
	return &Preprocessor{
		sizes:  append([]int(nil), sizes...),
		layout: layout,
		logger: logger.Named("preprocessor"),
	}
}

// Sizes returns a copy of the scale ladder.
func (p *Preprocessor) Sizes() []int {
	return append([]int(nil), p.sizes...)
}

// Layout returns the tensor layout produced by Preprocess.
func (p *Preprocessor) Layout() Layout {
	return p.layout
}

// Preprocess returns one tensor per size that could be produced, in ladder
// order. A failing size is logged and skipped; only when every size fails
// is an error returned.
func (p *Preprocessor) Preprocess(img *ValidatedImage) ([]Tensor, error) {
	tensors := make([]Tensor, 0, len(p.sizes))
	for _, size := range p.sizes {
		tensor, err := toTensor(img.Image(), size, p.layout)
		if err != nil {
			p.logger.Warn("preprocessing failed for size", zap.Int("size", size), zap.Error(err))
			continue
		}
		tensors = append(tensors, tensor)
	}
	if len(tensors) == 0 {
		return nil, fmt.Errorf("%w: no preprocessing strategy succeeded", ErrInvalidImage)
	}
	return tensors, nil
}

func toTensor(src image.Image, size int, layout Layout) (Tensor, error) {
	if size <= 0 {
		return Tensor{}, fmt.Errorf("invalid target size %d", size)
	}

	resized := imaging.Clone(resize.Resize(uint(size), uint(size), src, resize.Bicubic))
	bounds := resized.Bounds()
	if bounds.Dx() != size || bounds.Dy() != size {
		return Tensor{}, fmt.Errorf("resize produced %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), size, size)
	}

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			idx := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255.0
				if layout == LayoutNCHW {
					data[c*plane+idx] = v
				} else {
					data[idx*3+c] = v
				}
			}
		}
	}

	return Tensor{Data: data, Size: size, Layout: layout}, nil
}
