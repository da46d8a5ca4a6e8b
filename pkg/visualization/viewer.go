// Package visualization renders the maps of the pipeline as images: raw and
// boundary maps as grayscale, label maps with a distinct colour per id and
// superpixel rewards as a heat map.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"

	"rlforseg/internal/models"
)

// goldenAngle spreads consecutive hues as far apart as possible
const goldenAngle = 137.50776405003785

var (
	heatLow  = colorful.Color{R: 0.08, G: 0.12, B: 0.62}
	heatHigh = colorful.Color{R: 1, G: 0.85, B: 0.1}
)

// Viewer renders maps of a fixed size
type Viewer struct {
	// dimensions of the maps
	width  int
	height int
}

// NewViewer creates a viewer for width x height maps
func NewViewer(width, height int) *Viewer {
	return &Viewer{width: width, height: height}
}

func (v *Viewer) checkSize(w, h int) error {
	if w != v.width || h != v.height {
		return fmt.Errorf("map is %dx%d, viewer expects %dx%d", w, h, v.width, v.height)
	}
	return nil
}

// GrayImage renders a [0,1] map as 16 bit grayscale. Values outside the
// range are clamped.
func (v *Viewer) GrayImage(f *models.FloatMap) (image.Image, error) {
	if err := v.checkSize(f.Width, f.Height); err != nil {
		return nil, err
	}

	img := image.NewGray16(image.Rect(0, 0, v.width, v.height))
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			value := uint16(math.Max(0, math.Min(65535, f.At(y, x)*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// LabelImage renders a label map with one colour per id. Id 0 keeps the
// first palette colour like every other id.
func (v *Viewer) LabelImage(lm *models.LabelMap) (image.Image, error) {
	if err := v.checkSize(lm.Width, lm.Height); err != nil {
		return nil, err
	}

	palette := LabelPalette(lm.Max() + 1)
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			r, g, b := palette[lm.At(y, x)].RGB255()
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img, nil
}

// ScoreImage paints every superpixel with its score, blending from blue at
// lo to yellow at hi
func (v *Viewer) ScoreImage(sp *models.LabelMap, scores []float64, lo, hi float64) (image.Image, error) {
	if err := v.checkSize(sp.Width, sp.Height); err != nil {
		return nil, err
	}
	if len(scores) < sp.Max()+1 {
		return nil, fmt.Errorf("%d scores for %d superpixels", len(scores), sp.Max()+1)
	}

	span := hi - lo
	if span <= 0 {
		span = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			t := math.Max(0, math.Min(1, (scores[sp.At(y, x)]-lo)/span))
			r, g, b := heatLow.BlendHcl(heatHigh, t).Clamped().RGB255()
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img, nil
}

// LabelPalette returns n well separated colours. Hues advance by the golden
// angle and saturation and value alternate so neighbouring ids differ.
func LabelPalette(n int) []colorful.Color {
	palette := make([]colorful.Color, n)
	for i := range palette {
		hue := math.Mod(float64(i)*goldenAngle, 360)
		sat := 0.55 + 0.35*float64(i%2)
		val := 0.95 - 0.25*float64((i/2)%2)
		palette[i] = colorful.Hsv(hue, sat, val).Clamped()
	}
	return palette
}

// SaveImage writes img as a PNG file, creating the directory if needed
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return err
	}
	return file.Close()
}

// ContourMap marks with 1 every pixel whose right or lower neighbour carries
// a different id
func ContourMap(lm *models.LabelMap) *models.FloatMap {
	out := models.NewFloatMap(lm.Width, lm.Height)
	for y := 0; y < lm.Height; y++ {
		for x := 0; x < lm.Width; x++ {
			id := lm.At(y, x)
			if (x+1 < lm.Width && lm.At(y, x+1) != id) || (y+1 < lm.Height && lm.At(y+1, x) != id) {
				out.Data[y*lm.Width+x] = 1
			}
		}
	}
	return out
}
