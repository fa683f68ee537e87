// Package circle finds the single circular region of interest in an
// image, using a gradient Hough transform over the grayscale pixels.
package circle

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/disintegration/imaging"

	"github.com/abworrall/circlecrop/pkg/cmath"
)

var (
	ErrNoCircleDetected   = errors.New("no circle detected")
	ErrAmbiguousDetection = errors.New("more than one circle detected")
)

// A Circle is in image coordinates, in whole pixels.
type Circle struct {
	X      int
	Y      int
	Radius int
}

func (c Circle) Center() image.Point { return image.Point{c.X, c.Y} }
func (c Circle) String() string      { return fmt.Sprintf("Circle[(%d,%d) r=%d]", c.X, c.Y, c.Radius) }

// Params control the Hough transform. The field names follow OpenCV's
// HoughCircles, since that is what most users will have tuned against.
type Params struct {
	// Subtracted from the detected radius; the imaging setup leaves a
	// dark annulus around the area we actually care about.
	EdgeBuffer int

	DP        float64 // inverse ratio of accumulator resolution to image resolution
	MinDist   float64 // min distance between detected centers
	MinRadius int
	MaxRadius int // 0 means no limit

	CannyThreshold       float64 // upper hysteresis threshold; lower is half of it
	AccumulatorThreshold float64 // rays needed near a center, and edge pixels needed for a radius

	BlurSigma float64 // gaussian pre-blur, 0 to disable

	Verbosity int
}

func DefaultParams() Params {
	return Params{
		EdgeBuffer:           140,
		DP:                   1,
		MinDist:              20,
		CannyThreshold:       100,
		AccumulatorThreshold: 100,
		BlurSigma:            2,
	}
}

func (p Params) Validate() error {
	switch {
	case p.DP <= 0:
		return fmt.Errorf("hough dp must be > 0, got %v", p.DP)
	case p.MinDist <= 0:
		return fmt.Errorf("min distance must be > 0, got %v", p.MinDist)
	case p.MinRadius < 0:
		return fmt.Errorf("min radius must be >= 0, got %d", p.MinRadius)
	case p.MaxRadius != 0 && p.MaxRadius < p.MinRadius:
		return fmt.Errorf("max radius %d is less than min radius %d", p.MaxRadius, p.MinRadius)
	case p.CannyThreshold <= 0 || p.AccumulatorThreshold <= 0:
		return fmt.Errorf("hough thresholds must be > 0")
	case p.BlurSigma < 0:
		return fmt.Errorf("blur sigma must be >= 0, got %v", p.BlurSigma)
	}
	return nil
}

// Locate returns the one circle in the image, with the edge buffer
// already taken off its radius.
func Locate(img image.Image, p Params) (Circle, error) {
	candidates, err := Detect(img, p)
	if err != nil {
		return Circle{}, err
	}
	return Select(candidates, p.EdgeBuffer)
}

// Select applies the detection rule to the full candidate list: exactly
// one circle is a result, anything else is an error. No candidate is
// preferred over another.
func Select(candidates []Circle, edgeBuffer int) (Circle, error) {
	switch len(candidates) {
	case 0:
		return Circle{}, ErrNoCircleDetected
	case 1:
		c := candidates[0]
		c.Radius -= edgeBuffer
		return c, nil
	default:
		return Circle{}, fmt.Errorf("%w (found %d)", ErrAmbiguousDetection, len(candidates))
	}
}

// Detect returns every circle the transform finds, strongest first,
// without the edge buffer applied.
func Detect(img image.Image, p Params) ([]Circle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	gray := grayscale(img, p.BlurSigma)
	found, err := transform(gray, p)
	if err != nil {
		return nil, fmt.Errorf("hough transform: %v", err)
	}

	// Grayscale images are rebased to (0,0); put the circles back into
	// the source image's coordinates.
	origin := img.Bounds().Min
	circles := make([]Circle, 0, len(found))
	for _, c := range found {
		circles = append(circles, Circle{
			X:      cmath.RoundInt(c.x) + origin.X,
			Y:      cmath.RoundInt(c.y) + origin.Y,
			Radius: cmath.RoundInt(c.r),
		})
	}

	if p.Verbosity > 1 {
		log.Printf("hough: %d circle(s) %v\n", len(circles), circles)
	}

	return circles, nil
}

// DumpAccumulator writes the pure-Go transform's ray support grid (the
// values compared against AccumulatorThreshold) as a PNG, to help with
// tuning the parameters on a new imaging setup.
func DumpAccumulator(img image.Image, p Params, title, filename string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	gray := cmath.NewFloatGridFromNRGBA(grayscale(img, p.BlurSigma))
	edges := canny(gray, p.CannyThreshold/2, p.CannyThreshold)
	support := raySupport(vote(edges, gray.Dx(), gray.Dy(), p))
	return support.ToImg(title, filename)
}

func grayscale(img image.Image, sigma float64) *image.NRGBA {
	gray := imaging.Grayscale(img)
	if sigma > 0 {
		gray = imaging.Blur(gray, sigma)
	}
	return gray
}
