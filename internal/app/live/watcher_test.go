package live_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	memclock "github.com/campscout/event-logistics-api/internal/adapters/memory/clock"
	"github.com/campscout/event-logistics-api/internal/app/live"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/platform/pubsub"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedSubscriber hands out queued results in order; an empty queue fails.
type scriptedSubscriber struct {
	mu      sync.Mutex
	results []any // chan domain.EventChanged or error
	calls   int
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, id domain.EventID) (<-chan domain.EventChanged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return nil, errors.New("push unavailable")
	}
	r := s.results[0]
	s.results = s.results[1:]
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r.(chan domain.EventChanged), nil
}

func (s *scriptedSubscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type revisionPoller struct {
	rev   atomic.Int64
	fail  atomic.Bool
	polls atomic.Int32
}

func (p *revisionPoller) Poll(ctx context.Context, id domain.EventID) (domain.EventChanged, error) {
	p.polls.Add(1)
	if p.fail.Load() {
		return domain.EventChanged{}, errors.New("boom")
	}
	return domain.EventChanged{EventID: id, Revision: p.rev.Load()}, nil
}

func next(t *testing.T, sub *pubsub.Subscription[live.Notification]) live.Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C:
		require.True(t, ok, "notifications closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
		return live.Notification{}
	}
}

func requireState(t *testing.T, sub *pubsub.Subscription[live.Notification], from, to live.State) {
	t.Helper()
	n := next(t, sub)
	require.Nil(t, n.Change, "expected a state transition, got change %+v", n.Change)
	assert.Equal(t, from, n.Previous)
	assert.Equal(t, to, n.State)
}

func requireRevision(t *testing.T, sub *pubsub.Subscription[live.Notification], rev int64) {
	t.Helper()
	n := next(t, sub)
	require.NotNil(t, n.Change, "expected a change, got state %s", n.State)
	assert.Equal(t, rev, n.Change.Revision)
}

func startWatcher(t *testing.T, w *live.Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func TestWatcher_FallsBackToPollingAndReconnects(t *testing.T) {
	push := make(chan domain.EventChanged, 1)
	subscriber := &scriptedSubscriber{results: []any{errors.New("refused"), push}}
	poller := &revisionPoller{}
	poller.rev.Store(3)
	ticker := memclock.NewManualTicker()

	w := live.NewWatcher("e1", subscriber, poller, ticker, live.Options{ReconnectEvery: 2})
	notes := w.Subscribe(context.Background())
	cancel, done := startWatcher(t, w)

	requireState(t, notes, live.StateDisconnected, live.StatePolling)

	ticker.Tick(time.Now())
	requireRevision(t, notes, 3)

	// Second tick polls (no new revision) then retries push.
	ticker.Tick(time.Now())
	requireState(t, notes, live.StatePolling, live.StatePush)
	assert.Equal(t, int32(2), poller.polls.Load())

	push <- domain.EventChanged{EventID: "e1", Revision: 4}
	requireRevision(t, notes, 4)

	// Stale pushes are not re-announced.
	push <- domain.EventChanged{EventID: "e1", Revision: 2}
	close(push)
	requireState(t, notes, live.StatePush, live.StatePolling)

	cancel()
	require.NoError(t, <-done)
	requireState(t, notes, live.StatePolling, live.StateDisconnected)
	_, ok := <-notes.C
	assert.False(t, ok, "notifications should close when Run returns")
	assert.Equal(t, int64(4), w.Revision())
	assert.Equal(t, 2, subscriber.Calls())
}

func TestWatcher_PushFirstIgnoresTicks(t *testing.T) {
	push := make(chan domain.EventChanged)
	subscriber := &scriptedSubscriber{results: []any{push}}
	poller := &revisionPoller{}
	ticker := memclock.NewManualTicker()

	w := live.NewWatcher("e1", subscriber, poller, ticker, live.Options{})
	notes := w.Subscribe(context.Background())
	cancel, done := startWatcher(t, w)

	requireState(t, notes, live.StateDisconnected, live.StatePush)
	ticker.Tick(time.Now())
	ticker.Tick(time.Now())
	assert.Zero(t, poller.polls.Load(), "push state must not poll")

	push <- domain.EventChanged{EventID: "e1", Revision: 1}
	requireRevision(t, notes, 1)

	cancel()
	require.NoError(t, <-done)
	requireState(t, notes, live.StatePush, live.StateDisconnected)
}

func TestWatcher_FailedReconnectKeepsPolling(t *testing.T) {
	subscriber := &scriptedSubscriber{}
	poller := &revisionPoller{}
	poller.fail.Store(true)
	ticker := memclock.NewManualTicker()

	w := live.NewWatcher("e1", subscriber, poller, ticker, live.Options{ReconnectEvery: 1})
	notes := w.Subscribe(context.Background())
	cancel, done := startWatcher(t, w)

	requireState(t, notes, live.StateDisconnected, live.StatePolling)
	for i := 0; i < 4; i++ {
		ticker.Tick(time.Now())
	}

	poller.fail.Store(false)
	poller.rev.Store(9)
	ticker.Tick(time.Now())
	requireRevision(t, notes, 9)

	cancel()
	require.NoError(t, <-done)
	requireState(t, notes, live.StatePolling, live.StateDisconnected)
	// One initial attempt plus one per tick.
	assert.Equal(t, 6, subscriber.Calls())
}
