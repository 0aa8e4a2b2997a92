package clock

import (
	"time"

	clockport "github.com/campscout/event-logistics-api/internal/ports/out/clock"
)

// SystemClock returns the current wall-clock time.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NewTicker wraps time.NewTicker as a clockport.Ticker.
func (SystemClock) NewTicker(d time.Duration) clockport.Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
