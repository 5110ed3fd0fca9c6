// Package gpio reads the record button through the Linux sysfs GPIO interface.
//
// A Pin wraps one input line configured for both edges. An epoll Poller
// reports readiness on the line's value file, and the Pin queues the fresh
// level in a bounded buffer or hands it straight to the single outstanding
// AwaitEdge call. A burst that fills the buffer latches ErrBufferOverflow
// instead of dropping edges silently; callers recover by reopening the Pin.
//
// Button sits on top of a Pin and turns press/release pairs into debounced
// presses. OutputLine drives the status LED.
package gpio
