package batch

import (
	"time"

	"github.com/abworrall/circlecrop/pkg/report"
)

// Added to the first file's time, to cover the slow ones later on.
const estimatePadding = 15 * time.Second

// An ETA projects how long is left in the batch. The per-file estimate
// is taken from the first file that succeeds, and never revised.
type ETA struct {
	Total           int
	EstimatePerFile time.Duration
	Remaining       time.Duration

	known bool
}

func NewETA(total int) *ETA { return &ETA{Total: total} }

func (e *ETA) Known() bool { return e.known }

func (e *ETA) String() string {
	if !e.known {
		return "Calculating..."
	}
	return report.FormatElapsed(e.Remaining)
}

// FileDone accounts for one more file having been processed. Files that
// fail before there is an estimate don't count towards anything.
func (e *ETA) FileDone(elapsed time.Duration, ok bool) {
	if !e.known {
		if !ok {
			return
		}
		e.EstimatePerFile = elapsed + estimatePadding
		e.Remaining = e.EstimatePerFile * time.Duration(e.Total)
		e.known = true
	}

	e.Remaining -= e.EstimatePerFile
	if e.Remaining < 0 {
		e.Remaining = 0
	}
}
