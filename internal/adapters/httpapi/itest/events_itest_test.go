package itest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/campscout/event-logistics-api/internal/adapters/httpapi"
	"github.com/campscout/event-logistics-api/internal/adapters/liveclient"
	memclock "github.com/campscout/event-logistics-api/internal/adapters/memory/clock"
	"github.com/campscout/event-logistics-api/internal/app/live"
	"github.com/campscout/event-logistics-api/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest servers and pooled client connections wind down asynchronously.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

const leader = "itest|leader"

func summerCamp() map[string]any {
	return map[string]any{
		"title":           "Summer camp",
		"startDate":       "2026-07-01",
		"endDate":         "2026-07-10",
		"structureName":   "Casa Alpina",
		"detachedLeaders": 2,
		"guests":          1,
		"segments": []map[string]any{
			{"branch": "LC", "startDate": "2026-07-01", "endDate": "2026-07-05", "youthCount": 20, "leadersCount": 4, "kambusieriCount": 2, "accommodation": "indoor"},
			{"branch": "EG", "startDate": "2026-07-03", "endDate": "2026-07-10", "youthCount": "30", "leadersCount": "5", "kambusieriCount": "3", "accommodation": "tents"},
			{"branch": "RS", "startDate": "2026-07-04", "endDate": "2026-07-06", "youthCount": 12, "leadersCount": 2, "kambusieriCount": 9, "accommodation": "tende"},
		},
	}
}

func createEvent(t *testing.T, s *testServer) httpapi.EventDetails {
	t.Helper()
	status, body, _ := s.doJSON(t, http.MethodPost, "/events", leader, summerCamp())
	requireStatus(t, status, body, http.StatusCreated)
	return mustUnmarshal[httpapi.EventDetails](t, body)
}

func TestEvents_Lifecycle(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)

			status, body, _ := s.doJSON(t, http.MethodGet, "/events", "", nil)
			requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")

			created := createEvent(t, s)
			if created.Revision != 1 || created.CreatedBy != leader {
				t.Fatalf("created=%+v", created.Event)
			}
			sum := created.Logistics
			// LC 26 + EG 38 + RS 14 overlap on 07-04..07-05.
			if sum.Peak.People != 78 {
				t.Fatalf("peak=%d want 78", sum.Peak.People)
			}
			if sum.Accommodation.IndoorCapacity != 26 || sum.Accommodation.TentsCapacity != 52 {
				t.Fatalf("accommodation=%+v", sum.Accommodation)
			}
			if got := sum.Totals.ByBranch["RS"]; got.Kambusieri != 0 || got.Youth != 12 {
				t.Fatalf("RS totals=%+v", got)
			}
			if sum.Totals.Total != 20+30+12+2+3+4+5+2+2+1 {
				t.Fatalf("total=%d", sum.Totals.Total)
			}

			status, body, _ = s.doJSON(t, http.MethodGet, "/events/"+created.ID, leader, nil)
			requireStatus(t, status, body, http.StatusOK)
			if got := mustUnmarshal[httpapi.EventDetails](t, body); len(got.Segments) != 3 || got.Segments[2].Accommodation != "tents" {
				t.Fatalf("segments=%+v", got.Segments)
			}

			s.clock.Advance(time.Minute)
			status, body, _ = s.doJSON(t, http.MethodPatch, "/events/"+created.ID, leader, map[string]any{"notes": "bring ropes", "structureName": nil})
			requireStatus(t, status, body, http.StatusOK)
			patched := mustUnmarshal[httpapi.EventDetails](t, body)
			if patched.Revision != 2 || !patched.StructureName.IsNull() {
				t.Fatalf("patched=%+v", patched.Event)
			}
			if notes, _ := patched.Notes.Get(); notes != "bring ropes" {
				t.Fatalf("notes=%q", notes)
			}

			status, body, _ = s.doJSON(t, http.MethodGet, "/events/"+created.ID+"/logistics", leader, nil)
			requireStatus(t, status, body, http.StatusOK)
			if got := mustUnmarshal[httpapi.LogisticsSummary](t, body); got.Peak.People != 78 {
				t.Fatalf("logistics peak=%d", got.Peak.People)
			}

			status, body, _ = s.doJSON(t, http.MethodGet, "/events", leader, nil)
			requireStatus(t, status, body, http.StatusOK)
			if got := mustUnmarshal[httpapi.EventList](t, body); len(got.Events) < 1 {
				t.Fatalf("list empty")
			}

			status, body, _ = s.doJSON(t, http.MethodPatch, "/events/"+created.ID, leader, map[string]any{"guests": -1})
			requireErrorCode(t, status, body, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
		})
	}
}

func TestEvents_ReplaceSegmentsIsIdempotent(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)
			created := createEvent(t, s)
			path := "/events/" + created.ID + "/segments"
			segs := map[string]any{"segments": []map[string]any{
				{"branch": "ALL", "startDate": "2026-07-01", "endDate": "2026-07-02", "youthCount": 40, "leadersCount": 6, "kambusieriCount": 2, "accommodation": "indoor"},
			}}

			status, first, _ := s.doJSON(t, http.MethodPut, path, leader, segs, "Idempotency-Key", "seg-1")
			requireStatus(t, status, first, http.StatusOK)
			status, replay, h := s.doJSON(t, http.MethodPut, path, leader, segs, "Idempotency-Key", "seg-1")
			requireStatus(t, status, replay, http.StatusOK)
			requireHeaderPresent(t, h, "Idempotent-Replayed")
			if string(first) != string(replay) {
				t.Fatalf("replay differs:\n%s\n%s", first, replay)
			}

			// Keys are scoped per subject.
			status, body, h := s.doJSON(t, http.MethodPut, path, "itest|other", segs, "Idempotency-Key", "seg-1")
			requireStatus(t, status, body, http.StatusOK)
			if h.Get("Idempotent-Replayed") != "" {
				t.Fatalf("key leaked across subjects")
			}
			if got := mustUnmarshal[httpapi.EventDetails](t, body); got.Revision != 3 {
				t.Fatalf("revision=%d want 3", got.Revision)
			}

			segs["segments"] = []map[string]any{}
			status, body, _ = s.doJSON(t, http.MethodPut, path, leader, segs, "Idempotency-Key", "seg-1")
			requireErrorCode(t, status, body, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")
		})
	}
}

func TestEvents_NotFound(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)
			for _, p := range []string{"/events/00000000-0000-4000-8000-000000000000", "/events/not-a-uuid/logistics"} {
				status, body, _ := s.doJSON(t, http.MethodGet, p, leader, nil)
				requireErrorCode(t, status, body, http.StatusNotFound, "EVENT_NOT_FOUND")
			}
		})
	}
}

func TestLive_WatcherFallsBackToPolling(t *testing.T) {
	s := newTestServer(t, backendMemory)
	created := createEvent(t, s)
	id := domain.EventID(created.ID)

	cfg := liveclient.Config{BaseURL: s.baseURL, HTTPClient: s.clientAs(leader)}
	sub, err := liveclient.NewSSESubscriber(cfg)
	if err != nil {
		t.Fatalf("NewSSESubscriber: %v", err)
	}
	poller, err := liveclient.NewHTTPPoller(cfg)
	if err != nil {
		t.Fatalf("NewHTTPPoller: %v", err)
	}

	ticker := memclock.NewManualTicker()
	w := live.NewWatcher(id, sub, poller, ticker, live.Options{ReconnectEvery: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	notes := w.Subscribe(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	next := func() live.Notification {
		t.Helper()
		select {
		case n, ok := <-notes.C:
			if !ok {
				t.Fatalf("watcher notifications closed")
			}
			return n
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for watcher notification")
		}
		return live.Notification{}
	}
	expectState := func(want live.State) {
		t.Helper()
		if n := next(); n.Change != nil || n.State != want {
			t.Fatalf("notification=%+v, want state %s", n, want)
		}
	}
	expectRevision := func(want int64) {
		t.Helper()
		n := next()
		if n.Change == nil || n.Change.Revision != want || n.Change.EventID != id {
			t.Fatalf("notification=%+v, want revision %d", n, want)
		}
	}
	patch := func(guests int) {
		t.Helper()
		status, body, _ := s.doJSON(t, http.MethodPatch, "/events/"+created.ID, leader, map[string]any{"guests": guests})
		requireStatus(t, status, body, http.StatusOK)
	}

	expectState(live.StatePush)

	patch(3)
	expectRevision(2)

	// Closing the server side ends every stream; the watcher keeps up by polling.
	s.changes.Close()
	expectState(live.StatePolling)

	patch(4)
	ticker.Tick(time.Now())
	expectRevision(3)

	// Ticks without a newer revision stay quiet.
	ticker.Tick(time.Now())

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := w.Revision(); got != 3 {
		t.Fatalf("Revision()=%d want 3", got)
	}
	for n := range notes.C {
		if n.Change != nil {
			t.Fatalf("unexpected change after cancel: %+v", n)
		}
	}
}
