package batch

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/circlecrop/pkg/circle"
)

// All this overlay stuff is for debugging: it dumps out a copy of the
// input with every candidate circle drawn on it, so you can see why a
// file was ambiguous, or where the crop ended up.

// pickColor spreads colors around the hue wheel by the golden angle, so
// neighbouring candidates never look alike.
func pickColor(i int) colorful.Color {
	hue := math.Mod(float64(i)*137.508, 360)
	return colorful.Hsv(hue, 0.9, 1.0)
}

// WriteOverlay draws the candidates (solid) and the final crop circle
// (dashed, if there is one) over the image, and saves it as a PNG.
func WriteOverlay(img image.Image, candidates []circle.Circle, crop *circle.Circle, title, filename string) error {
	origin := img.Bounds().Min
	dc := gg.NewContextForImage(img)

	lineWidth := math.Max(2, float64(img.Bounds().Dx())/400)
	dc.SetLineWidth(lineWidth)

	for i, c := range candidates {
		x, y := float64(c.X-origin.X), float64(c.Y-origin.Y)
		dc.SetColor(pickColor(i))
		dc.DrawCircle(x, y, float64(c.Radius))
		dc.Stroke()

		// Center marker
		m := 4 * lineWidth
		dc.DrawLine(x-m, y, x+m, y)
		dc.DrawLine(x, y-m, x, y+m)
		dc.Stroke()
	}

	if crop != nil && crop.Radius > 0 {
		dc.SetRGB(1, 1, 1)
		dc.SetDash(4*lineWidth, 3*lineWidth)
		dc.DrawCircle(float64(crop.X-origin.X), float64(crop.Y-origin.Y), float64(crop.Radius))
		dc.Stroke()
		dc.SetDash()
	}

	dc.SetRGB(1, 0, 0)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
