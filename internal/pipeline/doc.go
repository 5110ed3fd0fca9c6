// Package pipeline moves PCM audio from the capture tool to the encoder.
//
// CaptureStage reads the capture process's stdout in fixed-size blocks and
// pushes them onto an unbounded Queue, followed by an empty sentinel block.
// EncodeStage pops blocks and writes them to the encoder's stdin, which
// applies backpressure, and finishes when it pops the sentinel. RunJoint
// starts both and resolves only when both are done.
//
// Stage failures come back as Result values. Whether a process exit counts as
// graceful is decided per stage by an ExitPolicy.
package pipeline
