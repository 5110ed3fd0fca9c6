package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunJoint runs capture and encode over q and returns once both have
// finished. A failing stage cancels the shared context, which stops capture;
// encode still drains to the sentinel. Leftover blocks are reported even
// when both stages succeed.
func RunJoint(ctx context.Context, capture *CaptureStage, encode *EncodeStage, q *Queue) JointResult {
	jctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	g, gctx := errgroup.WithContext(jctx)

	var res JointResult
	g.Go(func() error {
		res.Capture = capture.Run(gctx, q)
		if res.Capture.Failed {
			return res.Capture.Err
		}
		return nil
	})
	g.Go(func() error {
		res.Encode = encode.run(gctx, q, abort)
		if res.Encode.Failed {
			return res.Encode.Err
		}
		return nil
	})
	_ = g.Wait()

	res.Leftover = q.Len()
	return res
}
