package circle

import (
	"math"

	"github.com/abworrall/circlecrop/pkg/cmath"
)

// An edgePoint is a pixel that survived Canny, along with its gradient;
// the Hough voting walks along the gradient.
type edgePoint struct {
	x, y   int
	dx, dy float64
}

const (
	notEdge uint8 = iota
	weakEdge
	strongEdge
)

var (
	tan22 = math.Tan(22.5 * math.Pi / 180)
	tan67 = math.Tan(67.5 * math.Pi / 180)
)

// canny finds edges the way OpenCV's Canny does with its default
// settings: 3x3 Sobel, L1 magnitude, non-maximum suppression and
// hysteresis between low and high.
func canny(gray cmath.FloatGrid, low, high float64) []edgePoint {
	w, h := gray.Dx(), gray.Dy()
	gx, gy := gray.Sobel()

	mag := gray.NewFromThis()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mag.Set(x, y, math.Abs(gx.Get(x, y))+math.Abs(gy.Get(x, y)))
		}
	}

	// Non-maximum suppression. Ties along the gradient keep the pixel on
	// the low side only, so a sharp step gives a one pixel wide edge.
	state := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			m := mag.Get(x, y)
			if m <= low {
				continue
			}

			ax, ay := math.Abs(gx.Get(x, y)), math.Abs(gy.Get(x, y))
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = mag.Get(x-1, y), mag.Get(x+1, y)
			case ay > ax*tan67:
				n1, n2 = mag.Get(x, y-1), mag.Get(x, y+1)
			case gx.Get(x, y)*gy.Get(x, y) > 0:
				n1, n2 = mag.Get(x-1, y-1), mag.Get(x+1, y+1)
			default:
				n1, n2 = mag.Get(x+1, y-1), mag.Get(x-1, y+1)
			}
			if m <= n1 || m < n2 {
				continue
			}

			if m > high {
				state[y*w+x] = strongEdge
			} else {
				state[y*w+x] = weakEdge
			}
		}
	}

	// Hysteresis: grow out from the strong edges through any weak ones
	stack := []int{}
	for i, s := range state {
		if s == strongEdge {
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if j := ny*w + nx; state[j] == weakEdge {
					state[j] = strongEdge
					stack = append(stack, j)
				}
			}
		}
	}

	edges := []edgePoint{}
	for i, s := range state {
		if s != strongEdge {
			continue
		}
		x, y := i%w, i/w
		edges = append(edges, edgePoint{x: x, y: y, dx: gx.Get(x, y), dy: gy.Get(x, y)})
	}
	return edges
}
