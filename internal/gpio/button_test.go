package gpio

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedSource struct {
	levels []bool
	err    error
}

func (s *scriptedSource) AwaitEdge(ctx context.Context) (bool, error) {
	if len(s.levels) == 0 {
		if s.err != nil {
			return false, s.err
		}
		<-ctx.Done()
		return false, ctx.Err()
	}
	level := s.levels[0]
	s.levels = s.levels[1:]
	return level, nil
}

func TestButtonReportsPressOnRelease(t *testing.T) {
	// Active low: false = pressed, true = released.
	src := &scriptedSource{levels: []bool{true, false, true, false, false, true}, err: ErrBufferOverflow}
	b := &Button{ActiveLow: true}

	presses := 0
	err := b.Watch(context.Background(), src, func() { presses++ })
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected source error to surface, got %v", err)
	}
	if presses != 2 {
		t.Fatalf("expected 2 presses, got %d", presses)
	}
}

func TestButtonDebounce(t *testing.T) {
	src := &scriptedSource{levels: []bool{true, false, true, false, true, false}, err: ErrClosed}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Duration{0, 200 * time.Millisecond, 1500 * time.Millisecond}
	b := &Button{Debounce: time.Second, now: func() time.Time {
		at := clock.Add(ticks[0])
		ticks = ticks[1:]
		return at
	}}

	presses := 0
	_ = b.Watch(context.Background(), src, func() { presses++ })
	if presses != 2 {
		t.Fatalf("expected second press suppressed, got %d presses", presses)
	}
}

func TestButtonReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Button{}
	if err := b.Watch(ctx, &scriptedSource{}, func() {}); err != nil {
		t.Fatalf("expected nil on cancellation, got %v", err)
	}
}
