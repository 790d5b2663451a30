package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"traitforge/pkg/models"
)

// Compositor flattens layers onto a transparent canvas of fixed size.
type Compositor struct {
	Width  int
	Height int
}

func NewCompositor(width, height int) *Compositor {
	return &Compositor{Width: width, Height: height}
}

// Compose paints layers in order, each anchored at the canvas origin, so
// later layers cover earlier ones. The result is PNG encoded.
func (c *Compositor) Compose(layers []Layer) ([]byte, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, &CompositionError{Cause: fmt.Errorf("invalid canvas %dx%d", c.Width, c.Height)}
	}
	if len(layers) == 0 {
		return nil, &CompositionError{Cause: errors.New("no layers")}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for _, l := range layers {
		// the header is checked first so an oversized layer is never decoded
		cfg, _, err := image.DecodeConfig(bytes.NewReader(l.Data))
		if err != nil {
			return nil, &CompositionError{Cause: fmt.Errorf("decode trait %s header: %w", l.TraitID, err)}
		}
		if err := c.fits(l.TraitID, cfg.Width, cfg.Height); err != nil {
			return nil, err
		}

		src, _, err := image.Decode(bytes.NewReader(l.Data))
		if err != nil {
			return nil, &CompositionError{Cause: fmt.Errorf("decode trait %s: %w", l.TraitID, err)}
		}
		b := src.Bounds()
		if err := c.fits(l.TraitID, b.Dx(), b.Dy()); err != nil {
			return nil, err
		}
		draw.Draw(canvas, image.Rectangle{Max: b.Size()}, src, b.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, &CompositionError{Cause: fmt.Errorf("encode png: %w", err)}
	}
	return buf.Bytes(), nil
}

func (c *Compositor) fits(id models.TraitID, w, h int) error {
	if w > c.Width || h > c.Height {
		return &CompositionError{Cause: fmt.Errorf(
			"trait %s is %dx%d, larger than the %dx%d canvas", id, w, h, c.Width, c.Height)}
	}
	return nil
}
