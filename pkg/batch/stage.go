package batch

import (
	"context"
	"errors"
	"time"

	"github.com/abworrall/circlecrop/pkg/circle"
	"github.com/abworrall/circlecrop/pkg/roi"
	"github.com/abworrall/circlecrop/pkg/tiffio"
)

// A Stage is where a file has got to in the pipeline.
type Stage int

const (
	Pending Stage = iota
	Detecting
	Cropping
	Counting
	Reported
	Failed
)

func (s Stage) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Detecting:
		return "Detecting"
	case Cropping:
		return "Cropping"
	case Counting:
		return "Counting"
	case Reported:
		return "Reported"
	case Failed:
		return "Failed"
	default:
		return "Stage(?)"
	}
}

// FailureKind names the class of error, for logs and the batch summary.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, circle.ErrNoCircleDetected):
		return "NoCircleDetected"
	case errors.Is(err, circle.ErrAmbiguousDetection):
		return "AmbiguousDetection"
	case errors.Is(err, roi.ErrEmptyRegion):
		return "EmptyRegion"
	case errors.Is(err, ErrConfigMissingKey):
		return "ConfigMissingKey"
	case errors.Is(err, tiffio.ErrIO):
		return "IOError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return "Error"
	}
}

// A FileResult is what happened to one input file.
type FileResult struct {
	SourcePath string
	OutputPath string

	Stage    Stage
	FailedAt Stage // if Stage == Failed, the stage that failed
	Err      error

	Candidates  []circle.Circle
	Circle      circle.Circle
	Measurement roi.Measurement
	Meta        tiffio.Metadata
	Elapsed     time.Duration
}

func (r FileResult) OK() bool { return r.Stage == Reported }

func (r *FileResult) fail(err error) FileResult {
	r.FailedAt = r.Stage
	r.Stage = Failed
	r.Err = err
	return *r
}
