package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Validate decodes raw bytes, enforces the dimension bounds and normalises
// the colour mode to RGB or RGBA. Every failure wraps ErrInvalidImage.
func Validate(data []byte) (*ValidatedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: unrecognised or corrupt image format", ErrInvalidImage)
		}
		return nil, fmt.Errorf("%w: failed to read image: %v", ErrInvalidImage, err)
	}

	if cfg.Width < MinDimension || cfg.Height < MinDimension {
		return nil, fmt.Errorf("%w: image too small, minimum is %dx%d pixels", ErrInvalidImage, MinDimension, MinDimension)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, fmt.Errorf("%w: image too large, maximum is %dx%d pixels", ErrInvalidImage, MaxDimension, MaxDimension)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open image: %v", ErrInvalidImage, err)
	}

	normalised := imaging.Clone(img)
	bounds := normalised.Bounds()
	return &ValidatedImage{
		img:    normalised,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Mode:   modeOf(img),
		Format: format,
	}, nil
}

// modeOf reports RGBA for images that carry transparency; opaque images
// (greyscale, YCbCr, CMYK, opaque palettes) are treated as RGB.
func modeOf(img image.Image) ColorMode {
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return ModeRGBA
	}
	return ModeRGB
}
