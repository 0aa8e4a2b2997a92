package clock

import "time"

// Clock provides time to the application.
// Using an interface enables deterministic tests via a controllable implementation.
type Clock interface {
	Now() time.Time
}

// Ticker delivers ticks on C until Stop is called.
// Callers own their tickers; nothing in the application starts a hidden timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
