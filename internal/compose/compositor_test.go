package compose

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func decodePNG(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func TestComposeIsLayerOrderSensitive(t *testing.T) {
	c := NewCompositor(50, 50)
	full := image.Rect(0, 0, 20, 20)
	a := Layer{TraitID: "a", Data: solidPNG(t, 20, 20, full, red)}
	b := Layer{TraitID: "b", Data: solidPNG(t, 20, 20, full, blue)}

	ab, err := c.Compose([]Layer{a, b})
	require.NoError(t, err)
	ba, err := c.Compose([]Layer{b, a})
	require.NoError(t, err)

	assert.NotEqual(t, ab, ba)
	assert.Equal(t, color.RGBAModel.Convert(blue), color.RGBAModel.Convert(decodePNG(t, ab).At(5, 5)))
	assert.Equal(t, color.RGBAModel.Convert(red), color.RGBAModel.Convert(decodePNG(t, ba).At(5, 5)))
}

func TestComposeKeepsTransparentBackground(t *testing.T) {
	c := NewCompositor(40, 30)
	out, err := c.Compose([]Layer{{TraitID: "1", Data: solidPNG(t, 10, 10, image.Rect(0, 0, 10, 10), red)}})
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
	_, _, _, alpha := img.At(35, 25).RGBA()
	assert.Zero(t, alpha)
	_, _, _, alpha = img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), alpha)
}

func TestComposeBlendsTranslucentLayers(t *testing.T) {
	c := NewCompositor(10, 10)
	full := image.Rect(0, 0, 10, 10)
	base := Layer{TraitID: "base", Data: solidPNG(t, 10, 10, full, red)}
	hole := Layer{TraitID: "hole", Data: solidPNG(t, 10, 10, image.Rect(0, 0, 5, 10), blue)}

	out, err := c.Compose([]Layer{base, hole})
	require.NoError(t, err)
	img := decodePNG(t, out)

	// the top layer is transparent on its right half, so the base shows through
	assert.Equal(t, color.RGBAModel.Convert(blue), color.RGBAModel.Convert(img.At(2, 2)))
	assert.Equal(t, color.RGBAModel.Convert(red), color.RGBAModel.Convert(img.At(8, 2)))
}

func TestComposeDuplicatesAreAllowed(t *testing.T) {
	c := NewCompositor(10, 10)
	l := Layer{TraitID: "1", Data: solidPNG(t, 10, 10, image.Rect(0, 0, 10, 10), red)}

	_, err := c.Compose([]Layer{l, l, l})
	assert.NoError(t, err)
}

func TestComposeErrors(t *testing.T) {
	good := Layer{TraitID: "1", Data: solidPNG(t, 10, 10, image.Rect(0, 0, 10, 10), red)}

	cases := []struct {
		name   string
		c      *Compositor
		layers []Layer
	}{
		{"malformed bytes", NewCompositor(10, 10), []Layer{good, {TraitID: "2", Data: []byte("not an image")}}},
		{"layer larger than canvas", NewCompositor(5, 5), []Layer{good}},
		{"invalid canvas", NewCompositor(0, 10), []Layer{good}},
		{"no layers", NewCompositor(10, 10), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.c.Compose(tc.layers)
			var ce *CompositionError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

// hugeHeaderPNG returns a 1x1 PNG whose IHDR claims w x h pixels.
func hugeHeaderPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b := solidPNG(t, 1, 1, image.Rect(0, 0, 1, 1), red)
	out := append([]byte(nil), b...)
	// signature(8) + length(4) + "IHDR"(4), then width and height
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestComposeRejectsOversizedHeaderBeforeDecoding(t *testing.T) {
	data := hugeHeaderPNG(t, 50000, 50000)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 50000, cfg.Width)

	_, err = NewCompositor(200, 200).Compose([]Layer{{TraitID: "big", Data: data}})
	var ce *CompositionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorContains(t, err, "trait big is 50000x50000, larger than the 200x200 canvas")
}
