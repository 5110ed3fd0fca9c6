package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names used in results and logs.
const (
	StageCapture = "capture"
	StageEncode  = "encode"
)

// Result is the outcome of one stage run. Failures are reported here rather
// than returned, so the caller makes a single decision after both stages end.
type Result struct {
	Stage   string
	Failed  bool
	Detail  string
	Err     error
	Skipped bool
	Exit    string
	Blocks  int
	Bytes   int64
}

func failure(stage string, kind error, format string, args ...any) Result {
	detail := fmt.Sprintf(format, args...)
	return Result{
		Stage:  stage,
		Failed: true,
		Detail: detail,
		Err:    fmt.Errorf("%s: %w: %s", stage, kind, detail),
	}
}

// JointResult aggregates a capture and encode run over one queue.
type JointResult struct {
	Capture  Result
	Encode   Result
	Leftover int
}

// Failed reports whether the session output should be considered unusable.
func (r JointResult) Failed() bool {
	return r.Capture.Failed || r.Encode.Failed || r.Leftover > 0
}

// Err joins every failure cause, or returns nil.
func (r JointResult) Err() error {
	var errs []error
	if r.Capture.Failed {
		errs = append(errs, r.Capture.Err)
	}
	if r.Encode.Failed {
		errs = append(errs, r.Encode.Err)
	}
	if r.Leftover > 0 {
		errs = append(errs, fmt.Errorf("%w: %d blocks left", ErrPipelineInconsistent, r.Leftover))
	}
	return errors.Join(errs...)
}

// Detail is a one-line summary for status output.
func (r JointResult) Detail() string {
	if err := r.Err(); err != nil {
		return strings.ReplaceAll(err.Error(), "\n", "; ")
	}
	return ""
}
