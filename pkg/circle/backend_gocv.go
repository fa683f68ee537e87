//go:build gocv

package circle

import (
	"image"

	"gocv.io/x/gocv"
)

var transform = opencvHoughCircles

// opencvHoughCircles runs OpenCV's HOUGH_GRADIENT over the grayscale image.
// It needs the OpenCV shared libraries at build and run time.
func opencvHoughCircles(gray *image.NRGBA, p Params) ([]candidate, error) {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = gray.Pix[y*gray.Stride+x*4]
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(mat, &circles, gocv.HoughGradient,
		p.DP, p.MinDist, p.CannyThreshold, p.AccumulatorThreshold,
		p.MinRadius, p.MaxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return nil, nil
	}

	found := make([]candidate, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		found[i] = candidate{
			x: float64(circles.GetFloatAt(0, i*3)),
			y: float64(circles.GetFloatAt(0, i*3+1)),
			r: float64(circles.GetFloatAt(0, i*3+2)),
		}
	}
	return found, nil
}
