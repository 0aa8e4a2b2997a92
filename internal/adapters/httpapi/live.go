package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/domain"
)

// ChangedEvent names the server-sent event emitted after every mutation.
const ChangedEvent = "event.changed"

// StreamEvent serves GET /events/{eventId}/live as text/event-stream.
// The stream ends when the client goes away or the change broker closes.
func (s *Server) StreamEvent(w http.ResponseWriter, r *http.Request) {
	if s.changes == nil {
		writeError(w, r, http.StatusServiceUnavailable, "LIVE_UNAVAILABLE", "live updates are disabled", nil)
		return
	}
	id := eventIDParam(r)
	if _, err := s.events.GetEventDetails(r.Context(), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	ctx := r.Context()
	sub := s.changes.Subscribe(ctx, func(c domain.EventChanged) bool { return c.EventID == id })
	defer sub.Cancel()
	ping := s.newTicker(s.keepAlive)
	defer ping.Stop()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := writeComment(w, rc, "connected"); err != nil {
		return
	}

	log := s.log.With(zap.String("event_id", string(id)))
	log.Debug("live stream opened")
	defer log.Debug("live stream closed")

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeChanged(w, rc, c); err != nil {
				log.Debug("live stream write failed", zap.Error(err))
				return
			}
		case <-ping.C():
			if err := writeComment(w, rc, "ping"); err != nil {
				return
			}
		}
	}
}

func writeComment(w http.ResponseWriter, rc *http.ResponseController, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return rc.Flush()
}

func writeChanged(w http.ResponseWriter, rc *http.ResponseController, c domain.EventChanged) error {
	data, err := json.Marshal(EventChanged{EventID: string(c.EventID), Revision: c.Revision, At: c.At.UTC()})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ChangedEvent, strconv.FormatInt(c.Revision, 10), data); err != nil {
		return err
	}
	return rc.Flush()
}
