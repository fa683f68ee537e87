package batch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codahale/hdrhistogram"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/circlecrop/pkg/report"
)

// Slower files than this are recorded as this.
const maxTrackedElapsed = time.Hour

// A Summary accumulates results over a batch.
type Summary struct {
	Seen     int
	Reported int
	Failures map[string]int // FailureKind -> count

	elapsed *hdrhistogram.Histogram // microseconds
	ratios  []float64
}

func NewSummary() *Summary {
	return &Summary{
		Failures: map[string]int{},
		elapsed:  hdrhistogram.New(1, maxTrackedElapsed.Microseconds(), 3),
	}
}

func (s *Summary) Add(r FileResult) {
	s.Seen++
	if !r.OK() {
		s.Failures[FailureKind(r.Err)]++
		return
	}

	s.Reported++
	s.ratios = append(s.ratios, r.Measurement.Ratio)

	us := r.Elapsed.Microseconds()
	if us < 1 {
		us = 1
	}
	if max := maxTrackedElapsed.Microseconds(); us > max {
		us = max
	}
	s.elapsed.RecordValue(us)
}

func (s *Summary) Failed() int { return s.Seen - s.Reported }

// ElapsedAt returns the per-file time at a percentile (0-100), over the
// reported files.
func (s *Summary) ElapsedAt(percentile float64) time.Duration {
	if s.elapsed.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.elapsed.ValueAtQuantile(percentile)) * time.Microsecond
}

func (s *Summary) ElapsedMax() time.Duration {
	if s.elapsed.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.elapsed.Max()) * time.Microsecond
}

// RatioStats returns the mean and standard deviation of the pixel ratio
// over reported files.
func (s *Summary) RatioStats() (mean, stddev float64) {
	switch len(s.ratios) {
	case 0:
		return 0, 0
	case 1:
		return s.ratios[0], 0
	}
	return stat.MeanStdDev(s.ratios, nil)
}

func (s *Summary) String() string {
	str := fmt.Sprintf("Summary: %d files, %d reported, %d failed", s.Seen, s.Reported, s.Failed())

	if len(s.Failures) > 0 {
		kinds := []string{}
		for k := range s.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for i, k := range kinds {
			kinds[i] = fmt.Sprintf("%s=%d", k, s.Failures[k])
		}
		str += " (" + strings.Join(kinds, ", ") + ")"
	}

	if s.Reported > 0 {
		mean, stddev := s.RatioStats()
		str += fmt.Sprintf("\n  time per file: p50 %s, p90 %s, max %s",
			report.FormatElapsed(s.ElapsedAt(50)),
			report.FormatElapsed(s.ElapsedAt(90)),
			report.FormatElapsed(s.ElapsedMax()))
		str += fmt.Sprintf("\n  pixel ratio:   mean %.4f, stddev %.4f", mean, stddev)
	}

	return str
}
