package live

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/platform/pubsub"
	clockport "github.com/campscout/event-logistics-api/internal/ports/out/clock"
)

// DefaultReconnectEvery is how many polling ticks pass between push reconnect attempts.
const DefaultReconnectEvery = 6

// Subscriber opens a push stream of change notifications for one event.
// The returned channel is closed when the stream ends or ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, id domain.EventID) (<-chan domain.EventChanged, error)
}

// Poller fetches the current revision of one event.
type Poller interface {
	Poll(ctx context.Context, id domain.EventID) (domain.EventChanged, error)
}

// Notification is published to watcher subscribers. Change is nil for pure state
// transitions.
type Notification struct {
	State    State
	Previous State
	Change   *domain.EventChanged
}

type Options struct {
	// ReconnectEvery is the number of polling ticks between push attempts.
	ReconnectEvery int
	Logger         *zap.Logger
}

// Watcher drives a Machine for a single event. The caller owns the Ticker and
// decides the polling cadence; Run never starts a timer of its own.
type Watcher struct {
	id     domain.EventID
	sub    Subscriber
	poll   Poller
	ticker clockport.Ticker

	reconnectEvery int
	log            *zap.Logger

	machine *Machine
	out     *pubsub.Broker[Notification]
	last    int64
}

func NewWatcher(id domain.EventID, sub Subscriber, poll Poller, ticker clockport.Ticker, opts Options) *Watcher {
	if opts.ReconnectEvery <= 0 {
		opts.ReconnectEvery = DefaultReconnectEvery
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{
		id:             id,
		sub:            sub,
		poll:           poll,
		ticker:         ticker,
		reconnectEvery: opts.ReconnectEvery,
		log:            opts.Logger.With(zap.String("event_id", string(id))),
		machine:        NewMachine(),
		out:            pubsub.NewBroker[Notification](pubsub.DefaultBuffer),
	}
}

// Subscribe returns a subscription to state transitions and observed changes.
func (w *Watcher) Subscribe(ctx context.Context) *pubsub.Subscription[Notification] {
	return w.out.Subscribe(ctx, nil)
}

// Revision returns the highest revision observed so far.
// It must only be called from the goroutine running Run or after Run returns.
func (w *Watcher) Revision() int64 { return w.last }

// Run blocks until ctx is done. It returns nil on cancellation; the watcher's
// subscriptions are closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.out.Close()

	w.fire(SignalStart)
	stream, cancelStream := w.connect(ctx)
	if stream != nil {
		w.fire(SignalPushConnected)
	} else {
		w.fire(SignalPushFailed)
	}
	defer func() { cancelStream() }()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			w.fire(SignalStop)
			return nil

		case c, ok := <-stream:
			if !ok {
				w.log.Info("push stream lost, polling")
				cancelStream()
				stream, cancelStream = nil, func() {}
				ticks = 0
				w.fire(SignalPushLost)
				continue
			}
			w.observe(c)

		case <-w.ticker.C():
			if w.machine.State() != StatePolling {
				continue
			}
			ticks++
			w.pollOnce(ctx)
			if ticks%w.reconnectEvery != 0 {
				continue
			}
			if s, cancel := w.connect(ctx); s != nil {
				stream, cancelStream = s, cancel
				w.fire(SignalReconnectSucceeded)
			} else {
				w.fire(SignalPushFailed)
			}
		}
	}
}

// connect returns a nil stream and a no-op cancel when the push attempt fails.
func (w *Watcher) connect(ctx context.Context) (<-chan domain.EventChanged, context.CancelFunc) {
	sctx, cancel := context.WithCancel(ctx)
	stream, err := w.sub.Subscribe(sctx, w.id)
	if err != nil {
		cancel()
		if !errors.Is(err, context.Canceled) {
			w.log.Warn("push subscribe failed", zap.Error(err))
		}
		return nil, func() {}
	}
	return stream, cancel
}

func (w *Watcher) pollOnce(ctx context.Context) {
	c, err := w.poll.Poll(ctx, w.id)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("poll failed", zap.Error(err))
		}
		return
	}
	w.observe(c)
}

// observe publishes c if it carries a newer revision than any seen before.
func (w *Watcher) observe(c domain.EventChanged) {
	if c.Revision <= w.last {
		return
	}
	w.last = c.Revision
	w.out.Publish(Notification{State: w.machine.State(), Previous: w.machine.State(), Change: &c})
}

func (w *Watcher) fire(sig Signal) {
	prev := w.machine.State()
	next, err := w.machine.Fire(sig)
	if err != nil {
		// Run only fires signals valid for the current state.
		w.log.Error("live state machine", zap.Error(err))
		return
	}
	if next == prev {
		return
	}
	w.log.Debug("live state changed", zap.String("from", string(prev)), zap.String("to", string(next)))
	w.out.Publish(Notification{State: next, Previous: prev})
}
