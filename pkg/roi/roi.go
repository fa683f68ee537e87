// Package roi cuts a circular region of interest out of an image, and
// counts the pixels inside it that fall within an intensity range.
package roi

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/histogram"
	"golang.org/x/image/draw"

	"github.com/abworrall/circlecrop/pkg/cmath"
)

var ErrEmptyRegion = errors.New("empty region")

// An IntensityRange is [Low, High), in 8-bit channel values.
type IntensityRange struct {
	Low  int
	High int
}

var (
	SelectedRange = IntensityRange{40, 200}
	FullRange     = IntensityRange{0, 256}
)

func (r IntensityRange) String() string { return fmt.Sprintf("[%d,%d)", r.Low, r.High) }

func (r IntensityRange) Validate() error {
	if r.Low < 0 || r.High > 256 || r.Low >= r.High {
		return fmt.Errorf("intensity range %s must satisfy 0 <= low < high <= 256", r)
	}
	return nil
}

// Mask returns an alpha mask over bounds, opaque on the disk
// (x-cx)²+(y-cy)² <= r² and transparent everywhere else. A radius <= 0
// gives a fully transparent mask.
func Mask(bounds image.Rectangle, center image.Point, radius int) *image.Alpha {
	mask := image.NewAlpha(bounds)
	if radius <= 0 {
		return mask
	}

	r2 := radius * radius
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		dy := y - center.Y
		if dy*dy > r2 {
			continue
		}
		// Scanline fill, like a pieslice over the full 360°
		half := cmath.ISqrt(r2 - dy*dy)
		x0 := cmath.Clamp(center.X-half, bounds.Min.X, bounds.Max.X)
		x1 := cmath.Clamp(center.X+half+1, bounds.Min.X, bounds.Max.X)
		for x := x0; x < x1; x++ {
			mask.Pix[mask.PixOffset(x, y)] = 0xFF
		}
	}
	return mask
}

// Crop returns a new image with the same RGB as img, and an alpha channel
// that is opaque inside the circle and transparent outside it. img is
// not modified.
func Crop(img image.Image, center image.Point, radius int) *image.NRGBA {
	dst := toNRGBA(img)
	mask := Mask(dst.Bounds(), center, radius)

	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Pix[dst.PixOffset(x, y)+3] = mask.Pix[mask.PixOffset(x, y)]
		}
	}
	return dst
}

// toNRGBA makes an 8-bit copy of img. Any existing alpha is dropped; we
// only keep the color, since the caller is about to supply a new alpha.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(b)

	if src, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(dst.Pix[dst.PixOffset(b.Min.X, y):dst.PixOffset(b.Max.X, y)], src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)])
		}
	} else {
		draw.Draw(dst, b, img, b.Min, draw.Src)
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	return dst
}

// A MaskedHistogram has one 256 bin histogram per channel, over just the
// pixels with alpha > 0.
type MaskedHistogram struct {
	histogram.RGBAHistogram
	Pixels int // number of pixels inside the mask

	cumulative *histogram.RGBAHistogram
}

func NewMaskedHistogram(img image.Image) MaskedHistogram {
	h := MaskedHistogram{
		RGBAHistogram: histogram.RGBAHistogram{
			R: histogram.Histogram{Bins: make([]int, 256)},
			G: histogram.Histogram{Bins: make([]int, 256)},
			B: histogram.Histogram{Bins: make([]int, 256)},
			A: histogram.Histogram{Bins: make([]int, 256)},
		},
	}

	b := img.Bounds()
	src, isNRGBA := img.(*image.NRGBA)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var c color.NRGBA
			if isNRGBA {
				i := src.PixOffset(x, y)
				c = color.NRGBA{src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3]}
			} else {
				c = color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			}
			if c.A == 0 {
				continue
			}
			h.R.Bins[c.R]++
			h.G.Bins[c.G]++
			h.B.Bins[c.B]++
			h.A.Bins[c.A]++
			h.Pixels++
		}
	}

	h.cumulative = h.RGBAHistogram.Cumulative()
	return h
}

// Count sums the R, G and B bins that fall in the range. A pixel that is
// in range on all three channels counts three times; use the same scheme
// for both sides of a ratio and the factor cancels.
func (h MaskedHistogram) Count(r IntensityRange) int {
	low := cmath.Clamp(r.Low, 0, 256)
	high := cmath.Clamp(r.High, 0, 256)
	if low >= high {
		return 0
	}

	n := 0
	for _, cum := range []histogram.Histogram{h.cumulative.R, h.cumulative.G, h.cumulative.B} {
		n += cum.Bins[high-1]
		if low > 0 {
			n -= cum.Bins[low-1]
		}
	}
	return n
}

// CountInRange counts pixel channel values in range, within the opaque
// region of img.
func CountInRange(img image.Image, r IntensityRange) int {
	return NewMaskedHistogram(img).Count(r)
}

func Ratio(selected, total int) (float64, error) {
	if total == 0 {
		return 0, ErrEmptyRegion
	}
	return float64(selected) / float64(total), nil
}

// A Measurement is what we report about a cropped image.
type Measurement struct {
	Selected int
	Total    int
	Ratio    float64
}

// Measure counts the selected range against the full range over the
// opaque region of a cropped image.
func Measure(cropped image.Image, selected IntensityRange) (Measurement, error) {
	h := NewMaskedHistogram(cropped)
	m := Measurement{
		Selected: h.Count(selected),
		Total:    h.Count(FullRange),
	}

	ratio, err := Ratio(m.Selected, m.Total)
	if err != nil {
		return m, fmt.Errorf("%w: no opaque pixels in %s", err, cropped.Bounds())
	}
	m.Ratio = ratio
	return m, nil
}
