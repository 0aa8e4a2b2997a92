package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/app/events"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	platformclock "github.com/campscout/event-logistics-api/internal/platform/clock"
	"github.com/campscout/event-logistics-api/internal/platform/pubsub"
	clockport "github.com/campscout/event-logistics-api/internal/ports/out/clock"
	"github.com/campscout/event-logistics-api/internal/ports/out/idempotency"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ServerOptions carries the optional collaborators of Server.
type ServerOptions struct {
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	// Changes feeds GET /events/{eventId}/live. Nil disables the stream (503).
	Changes *pubsub.Broker[domain.EventChanged]
	// KeepAlive is the SSE ping interval; NewTicker creates the ping ticker.
	KeepAlive time.Duration
	NewTicker func(time.Duration) clockport.Ticker

	Clock  clockport.Clock
	Logger *zap.Logger
}

// Server implements the HTTP handlers on top of the event service.
type Server struct {
	events *events.Service

	idem    idempotency.Store
	idemTTL time.Duration

	changes   *pubsub.Broker[domain.EventChanged]
	keepAlive time.Duration
	newTicker func(time.Duration) clockport.Ticker

	clock clockport.Clock
	log   *zap.Logger
}

func NewServer(svc *events.Service, opts ServerOptions) *Server {
	s := &Server{
		events:    svc,
		idem:      opts.Idempotency,
		idemTTL:   opts.IdempotencyTTL,
		changes:   opts.Changes,
		keepAlive: opts.KeepAlive,
		newTicker: opts.NewTicker,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
	if s.keepAlive <= 0 {
		s.keepAlive = 25 * time.Second
	}
	if s.newTicker == nil {
		s.newTicker = platformclock.NewSystemClock().NewTicker
	}
	if s.clock == nil {
		s.clock = platformclock.NewSystemClock()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// decodeJSON reads a single JSON document. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "missing request body"
		}
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg, map[string]any{"body": err.Error()})
		return false
	}
	if dec.More() {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", map[string]any{"body": "trailing data after JSON document"})
		return false
	}
	return true
}

func eventIDParam(r *http.Request) domain.EventID {
	return domain.EventID(chi.URLParam(r, "eventId"))
}

func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	es, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := EventList{Events: make([]Event, 0, len(es))}
	for _, e := range es {
		out.Events = append(out.Events, eventFromDomain(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}
	var body CreateEventRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	s.idempotent(w, r, "/events", body, func() (int, any, error) {
		d, err := s.events.CreateEvent(r.Context(), sub, createEventInput(body))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, eventDetailsFromDomain(d), nil
	})
}

func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	d, err := s.events.GetEventDetails(r.Context(), eventIDParam(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventDetailsFromDomain(d))
}

func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var body UpdateEventRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := s.events.UpdateEvent(r.Context(), eventIDParam(r), updateEventInput(body))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventDetailsFromDomain(d))
}

func (s *Server) ReplaceSegments(w http.ResponseWriter, r *http.Request) {
	var body ReplaceSegmentsRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	id := eventIDParam(r)
	hashed := struct {
		EventID string `json:"eventId"`
		ReplaceSegmentsRequest
	}{string(id), body}
	s.idempotent(w, r, "/events/{eventId}/segments", hashed, func() (int, any, error) {
		d, err := s.events.ReplaceSegments(r.Context(), id, rawSegments(body.Segments))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, eventDetailsFromDomain(d), nil
	})
}

func (s *Server) GetEventLogistics(w http.ResponseWriter, r *http.Request) {
	d, err := s.events.GetEventDetails(r.Context(), eventIDParam(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewLogisticsSummary(d.Logistics))
}

func (s *Server) PreviewLogistics(w http.ResponseWriter, r *http.Request) {
	var body PreviewRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	sum := s.events.PreviewLogistics(rawSegments(body.Segments), logistics.Extras{
		DetachedLeaders: body.DetachedLeaders,
		Guests:          body.Guests,
	})
	writeJSON(w, http.StatusOK, NewLogisticsSummary(sum))
}
