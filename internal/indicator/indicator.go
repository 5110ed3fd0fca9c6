package indicator

import (
	"context"
	"log/slog"
	"time"

	"buttonrec/internal/logging"
	"buttonrec/internal/session"
)

// LED is a single on/off output.
type LED interface {
	Set(on bool) error
}

// Scheme is a cycle of delays; the LED toggles after each one. Every scheme
// starts from off.
type Scheme []time.Duration

func seconds(values ...float64) Scheme {
	s := make(Scheme, len(values))
	for i, v := range values {
		s[i] = time.Duration(v * float64(time.Second))
	}
	return s
}

// DefaultSchemes maps controller states to blink patterns.
func DefaultSchemes() map[session.State]Scheme {
	return map[session.State]Scheme{
		session.StateIdle:      seconds(2, 0.05, 0.1, 0.05),
		session.StateRecording: seconds(0.5, 2),
		session.StateWriting:   seconds(0.2, 0.2),
		session.StateError:     seconds(0.1, 0.1),
	}
}

// Driver blinks an LED according to the controller state.
type Driver struct {
	led     LED
	schemes map[session.State]Scheme
	logger  *slog.Logger
}

// New returns a driver using DefaultSchemes when schemes is nil.
func New(led LED, schemes map[session.State]Scheme, logger *slog.Logger) *Driver {
	if schemes == nil {
		schemes = DefaultSchemes()
	}
	return &Driver{
		led:     led,
		schemes: schemes,
		logger:  logging.NewComponentLogger(logger, "indicator"),
	}
}

// Run blinks until ctx ends, switching schemes as snapshots arrive. The LED
// is left off on return.
func (d *Driver) Run(ctx context.Context, updates <-chan session.Status) error {
	state := session.StateIdle
	scheme := d.schemes[state]
	step := 0
	on := false
	d.set(false)
	defer d.set(false)

	timer := time.NewTimer(d.delay(scheme, step))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if st.State == state {
				continue
			}
			state = st.State
			scheme = d.schemes[state]
			step = 0
			on = false
			d.set(false)
			d.logger.Debug("indicator scheme changed", logging.State(state.String()))
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.delay(scheme, step))
		case <-timer.C:
			if len(scheme) == 0 {
				timer.Reset(time.Second)
				continue
			}
			on = !on
			d.set(on)
			step = (step + 1) % len(scheme)
			timer.Reset(d.delay(scheme, step))
		}
	}
}

func (d *Driver) delay(scheme Scheme, step int) time.Duration {
	if len(scheme) == 0 {
		return time.Second
	}
	return scheme[step]
}

func (d *Driver) set(on bool) {
	if err := d.led.Set(on); err != nil {
		d.logger.Debug("indicator write failed", logging.Error(err))
	}
}
