package circle

import (
	"image"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/abworrall/circlecrop/pkg/cmath"
)

// A candidate is a circle as the transform sees it, before rounding.
type candidate struct {
	x, y, r float64
	votes   float64
}

const (
	// A ray counts towards a cell if it passes within this many cells of
	// it. Rasterized edges along a near-axis arc share one gradient
	// direction, so rays miss the true center by a few cells.
	supportRadius = 5

	// Half-width of the window a peak is refined over
	refineRadius = 10
)

// houghGradient is the pure-Go take on OpenCV's HOUGH_GRADIENT:
//  1. Canny edges, keeping each edge pixel's gradient
//  2. every edge pixel votes along its gradient (both ways), for every
//     radius in range, into an accumulator that is 1/dp the image size
//  3. local maxima of ray support over the threshold are center
//     candidates, each refined to the centroid of the votes around it
//  4. each candidate gets the radius with the best edge support, and is
//     kept if it is far enough from stronger circles already kept, and
//     enough of its edge pixels aren't already claimed by one of them
func houghGradient(gray *image.NRGBA, p Params) ([]candidate, error) {
	g := cmath.NewFloatGridFromNRGBA(gray)
	edges := canny(g, p.CannyThreshold/2, p.CannyThreshold)
	if len(edges) == 0 {
		return nil, nil
	}

	acc := vote(edges, g.Dx(), g.Dy(), p)
	centers := findCenters(acc, raySupport(acc), p)
	fitted := fitRadiiConcurrently(edges, centers, maxRadius(p, g.Dx(), g.Dy()), p)

	kept := []candidate{}
	claimed := make([]bool, len(edges))
	for _, c := range fitted {
		if c.r <= 0 {
			continue // not enough edge support at any radius
		}
		tooClose := false
		for _, k := range kept {
			if math.Hypot(c.x-k.x, c.y-k.y) < p.MinDist {
				tooClose = true
				break
			}
		}
		if tooClose || !claimEdges(edges, claimed, c, p) {
			continue
		}
		kept = append(kept, c)
	}

	return kept, nil
}

func maxRadius(p Params, w, h int) int {
	if p.MaxRadius > 0 {
		return p.MaxRadius
	}
	if w > h {
		return w
	}
	return h
}

// vote builds the accumulator. Cells are dp image pixels wide.
func vote(edges []edgePoint, w, h int, p Params) cmath.FloatGrid {
	idp := 1.0 / p.DP
	acc := cmath.NewFloatGrid(int(math.Ceil(float64(w)*idp)), int(math.Ceil(float64(h)*idp)))

	minR := math.Max(1, float64(p.MinRadius)*idp)
	maxR := float64(maxRadius(p, w, h)) * idp

	for _, e := range edges {
		mag := math.Hypot(e.dx, e.dy)
		if mag == 0 {
			continue
		}
		ux, uy := e.dx/mag, e.dy/mag
		x0, y0 := float64(e.x)*idp, float64(e.y)*idp

		for _, sign := range []float64{1, -1} {
			for r := minR; r <= maxR; r++ {
				cx := int(math.Round(x0 + sign*r*ux))
				cy := int(math.Round(y0 + sign*r*uy))
				if !acc.In(cx, cy) {
					break // the accumulator is convex, this ray won't come back
				}
				acc.Add(cx, cy, 1)
			}
		}
	}

	return acc
}

// raySupport scores each accumulator cell by roughly how many rays pass
// near it: the votes in the window around it, over the window width
// (each ray leaves about one vote per cell it crosses).
func raySupport(acc cmath.FloatGrid) cmath.FloatGrid {
	support := acc.BoxSum(supportRadius)
	support.Scale(1 / float64(2*supportRadius+1))
	return support
}

// findCenters returns the ray support peaks, refined and in image
// coordinates, most support first. Ties between neighbouring cells go to
// the top-left one.
func findCenters(acc, support cmath.FloatGrid, p Params) []candidate {
	at := func(x, y int) float64 {
		if !support.In(x, y) {
			return math.Inf(-1)
		}
		return support.Get(x, y)
	}

	centers := []candidate{}
	for y := 0; y < support.Dy(); y++ {
		for x := 0; x < support.Dx(); x++ {
			v := support.Get(x, y)
			if v <= p.AccumulatorThreshold {
				continue
			}
			if !(v > at(x-1, y) && v >= at(x+1, y) && v > at(x, y-1) && v >= at(x, y+1)) {
				continue
			}

			cx, cy := refineCenter(acc, x, y)
			v = support.GetClamped(cmath.RoundInt(cx), cmath.RoundInt(cy))
			if v <= p.AccumulatorThreshold {
				continue
			}
			centers = append(centers, candidate{x: cx * p.DP, y: cy * p.DP, votes: v})
		}
	}

	sort.SliceStable(centers, func(i, j int) bool { return centers[i].votes > centers[j].votes })
	return centers
}

// refineCenter walks a peak to the centroid of the votes around it, until
// it settles. The rays from a circle scatter symmetrically about its
// center, so the centroid lands closer than the peak cell does.
func refineCenter(acc cmath.FloatGrid, x, y int) (float64, float64) {
	fx, fy := float64(x), float64(y)
	for i := 0; i < 10; i++ {
		nx, ny := acc.Centroid(cmath.RoundInt(fx), cmath.RoundInt(fy), refineRadius)
		moved := math.Hypot(nx-fx, ny-fy)
		fx, fy = nx, ny
		if moved < 0.25 {
			break
		}
	}
	return fx, fy
}

// claimEdges hands the edge pixels on c's circumference to c, if there are
// more than the threshold of them left unclaimed. Each edge pixel can
// support only one circle; otherwise the arcs of a big circle also
// support a ring of smaller ones inside it.
func claimEdges(edges []edgePoint, claimed []bool, c candidate, p Params) bool {
	band := 2 * math.Max(1, p.DP)

	mine := []int{}
	for i, e := range edges {
		if claimed[i] {
			continue
		}
		if d := math.Hypot(float64(e.x)-c.x, float64(e.y)-c.y); math.Abs(d-c.r) <= band {
			mine = append(mine, i)
		}
	}

	if float64(len(mine)) <= p.AccumulatorThreshold {
		return false
	}
	for _, i := range mine {
		claimed[i] = true
	}
	return true
}

// fitRadius picks the radius with the most edge support relative to its
// circumference, looking at windows two bins wide. It returns 0 if the
// best support isn't over the accumulator threshold.
func fitRadius(edges []edgePoint, c candidate, maxR int, p Params) float64 {
	binWidth := math.Max(1, p.DP)
	nBins := int(float64(maxR)/binWidth) + 2
	counts := make([]float64, nBins)
	sums := make([]float64, nBins)

	for _, e := range edges {
		d := math.Hypot(float64(e.x)-c.x, float64(e.y)-c.y)
		if d < float64(p.MinRadius) || d > float64(maxR) {
			continue
		}
		bin := int(d / binWidth)
		counts[bin]++
		sums[bin] += d
	}

	bestR, bestCount, bestScore := 0.0, 0.0, 0.0
	for i := 0; i < nBins-1; i++ {
		n := counts[i] + counts[i+1]
		if n == 0 {
			continue
		}
		r := (sums[i] + sums[i+1]) / n
		if r == 0 {
			continue
		}
		if score := n / r; score > bestScore {
			bestR, bestCount, bestScore = r, n, score
		}
	}

	if bestCount <= p.AccumulatorThreshold {
		return 0
	}
	return bestR
}

type fitJob struct {
	Index int
	C     candidate
}

// fitRadiiConcurrently uses a pool of goroutines to fit a radius to each
// center. Results come back in the same order as the centers.
func fitRadiiConcurrently(edges []edgePoint, centers []candidate, maxR int, p Params) []candidate {
	var wg sync.WaitGroup
	jobsChan := make(chan fitJob, len(centers))
	resultsChan := make(chan fitJob, len(centers))

	// Kick off worker pool
	nWorkers := runtime.NumCPU()
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				job.C.r = fitRadius(edges, job.C, maxR, p)
				resultsChan <- job
			}
		}()
	}

	// Feed in jobs
	for i, c := range centers {
		jobsChan <- fitJob{i, c}
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	fitted := make([]candidate, len(centers))
	for result := range resultsChan {
		fitted[result.Index] = result.C
	}
	return fitted
}
