package gpio

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"buttonrec/internal/logging"
)

// EdgeSource yields levels after each edge.
type EdgeSource interface {
	AwaitEdge(ctx context.Context) (bool, error)
}

// Button turns raw edges into presses. A press is reported when the line
// returns to its inactive level after having been active, and only if the
// previous press is at least Debounce old.
type Button struct {
	ActiveLow bool
	Debounce  time.Duration
	Logger    *slog.Logger

	now func() time.Time
}

// Watch reads edges from src and calls onPress for each accepted press. It
// returns nil when ctx ends and the source error otherwise.
func (b *Button) Watch(ctx context.Context, src EdgeSource, onPress func()) error {
	logger := logging.NewComponentLogger(b.Logger, "button")
	now := b.now
	if now == nil {
		now = time.Now
	}

	var (
		pressed  bool
		lastFire time.Time
	)
	for {
		level, err := src.AwaitEdge(ctx)
		if err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return nil
			}
			return err
		}
		active := level != b.ActiveLow
		if active {
			pressed = true
			continue
		}
		if !pressed {
			continue
		}
		pressed = false

		at := now()
		if !lastFire.IsZero() && at.Sub(lastFire) < b.Debounce {
			logger.Debug("button press suppressed by debounce",
				logging.Duration("since_last", at.Sub(lastFire)),
				logging.Duration("debounce", b.Debounce),
			)
			continue
		}
		lastFire = at
		logger.Debug("button pressed", logging.String(logging.FieldEventType, "button_pressed"))
		onPress()
	}
}
