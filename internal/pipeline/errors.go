package pipeline

import "errors"

var (
	// ErrLaunch marks a stage whose process could not be started.
	ErrLaunch = errors.New("stage launch failed")
	// ErrAbnormalExit marks a stage whose process exit was not accepted.
	ErrAbnormalExit = errors.New("stage exited abnormally")
	// ErrStream marks a read or write failure on a stage's data stream.
	ErrStream = errors.New("stage stream failed")
	// ErrPipelineInconsistent marks blocks left in the transfer queue after
	// both stages finished.
	ErrPipelineInconsistent = errors.New("transfer queue not empty after completion")
)
