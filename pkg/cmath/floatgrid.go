package cmath

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a grid of floats, with some operations. The Hough
// code keeps intensities, gradients and vote counts in these.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromNRGBA copies the red channel of an image into a
// grid. Intended for grayscale images, where R==G==B.
func NewFloatGridFromNRGBA(img *image.NRGBA) FloatGrid {
	b := img.Bounds()
	fg := NewFloatGrid(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			fg.values[y*fg.stride+x] = float64(row[x*4])
		}
	}
	return fg
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Add(x, y int, v float64) { fg.values[fg.stride*y+x] += v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) In(x, y int) bool        { return x >= 0 && y >= 0 && x < fg.Dx() && y < fg.Dy() }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (g1 *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// GetClamped reads with replicated borders, for convolutions.
func (fg *FloatGrid) GetClamped(x, y int) float64 {
	return fg.Get(Clamp(x, 0, fg.Dx()-1), Clamp(y, 0, fg.Dy()-1))
}

// Sobel returns the X and Y gradients of the grid, using the 3x3 Sobel
// operators. Borders are replicated.
func (g1 *FloatGrid) Sobel() (FloatGrid, FloatGrid) {
	gx := g1.NewFromThis()
	gy := g1.NewFromThis()

	for y := 0; y < g1.Dy(); y++ {
		for x := 0; x < g1.Dx(); x++ {
			nw, n, ne := g1.GetClamped(x-1, y-1), g1.GetClamped(x, y-1), g1.GetClamped(x+1, y-1)
			w, e := g1.GetClamped(x-1, y), g1.GetClamped(x+1, y)
			sw, s, se := g1.GetClamped(x-1, y+1), g1.GetClamped(x, y+1), g1.GetClamped(x+1, y+1)

			gx.Set(x, y, (ne+2*e+se)-(nw+2*w+sw))
			gy.Set(x, y, (sw+2*s+se)-(nw+2*n+ne))
		}
	}

	return gx, gy
}

// BoxSum returns a grid where each cell holds the sum of the values in
// the (2r+1)x(2r+1) window around it. Windows are clipped at the borders.
func (g1 *FloatGrid) BoxSum(r int) FloatGrid {
	w, h := g1.Dx(), g1.Dy()

	// Summed area table, with an extra zero row and column
	sat := NewFloatGrid(w+1, h+1)
	for y := 0; y < h; y++ {
		rowSum := 0.0
		for x := 0; x < w; x++ {
			rowSum += g1.Get(x, y)
			sat.Set(x+1, y+1, sat.Get(x+1, y)+rowSum)
		}
	}

	g2 := g1.NewFromThis()
	for y := 0; y < h; y++ {
		y0, y1 := Clamp(y-r, 0, h), Clamp(y+r+1, 0, h)
		for x := 0; x < w; x++ {
			x0, x1 := Clamp(x-r, 0, w), Clamp(x+r+1, 0, w)
			g2.Set(x, y, sat.Get(x1, y1)-sat.Get(x1, y0)-sat.Get(x0, y1)+sat.Get(x0, y0))
		}
	}
	return g2
}

func (fg *FloatGrid) Scale(f float64) {
	for i := range fg.values {
		fg.values[i] *= f
	}
}

// Centroid returns the value-weighted center of the (2r+1)x(2r+1) window
// around (x,y). An empty window gives back (x,y).
func (fg *FloatGrid) Centroid(x, y, r int) (float64, float64) {
	sum, sx, sy := 0.0, 0.0, 0.0
	for j := Clamp(y-r, 0, fg.Dy()); j < Clamp(y+r+1, 0, fg.Dy()); j++ {
		for i := Clamp(x-r, 0, fg.Dx()); i < Clamp(x+r+1, 0, fg.Dx()); i++ {
			v := fg.Get(i, j)
			sum += v
			sx += v * float64(i)
			sy += v * float64(j)
		}
	}
	if sum == 0 {
		return float64(x), float64(y)
	}
	return sx / sum, sy / sum
}

// Max returns the largest value in the grid, and where it is.
func (fg *FloatGrid) Max() (float64, image.Point) {
	max, at := math.Inf(-1), image.Point{}
	for i, v := range fg.values {
		if v > max {
			max = v
			at = image.Point{i % fg.stride, i / fg.stride}
		}
	}
	return max, at
}

func (fg *FloatGrid) Stats() string {
	min := math.MaxFloat64
	max := -1.0 * min

	for i := 0; i < len(fg.values); i++ {
		if fg.values[i] > max {
			max = fg.values[i]
		}
		if fg.values[i] < min {
			min = fg.values[i]
		}
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray so that sparse votes are still visible
func (fg *FloatGrid) ToImg(title, filename string) error {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < len(fg.values); i++ {
		if fg.values[i] > max {
			max = fg.values[i]
		}
		if fg.values[i] < min {
			min = fg.values[i]
		}
	}
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max: image.Point{fg.Dx(), fg.Dy()}})
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			gray := GammaExpand_F64((fg.Get(x, y) - min) / (max - min))
			g16 := uint16(gray * 65535.0)
			img.Set(x, y, color.RGBA64{g16, g16, g16, 0xFFFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 0, 0)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
