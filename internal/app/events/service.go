package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	clockport "github.com/campscout/event-logistics-api/internal/ports/out/clock"
	"github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
)

// maxSaveAttempts bounds how often a patch is re-applied after a concurrent write.
const maxSaveAttempts = 3

type Service struct {
	events  eventrepo.Repository
	clock   clockport.Clock
	changes ChangePublisher
	log     *zap.Logger

	newEventID func() domain.EventID
}

type systemNow struct{}

func (systemNow) Now() time.Time { return time.Now().UTC() }

// NewService wires the event service. A nil clock uses wall time; a nil publisher
// disables change notifications.
func NewService(repo eventrepo.Repository, clk clockport.Clock, changes ChangePublisher, log *zap.Logger) *Service {
	if clk == nil {
		clk = systemNow{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		events:  repo,
		clock:   clk,
		changes: changes,
		log:     log,
		newEventID: func() domain.EventID {
			return domain.EventID(uuid.NewString())
		},
	}
}

// SetNewEventIDForTest overrides event ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewEventIDForTest(fn func() domain.EventID) {
	if fn != nil {
		s.newEventID = fn
	}
}

func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	es, err := s.events.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(es))
	for _, e := range es {
		out = append(out, toDomain(e))
	}
	return out, nil
}

func (s *Service) GetEventDetails(ctx context.Context, id domain.EventID) (domain.EventDetails, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return domain.EventDetails{}, err
	}
	return toDetails(e), nil
}

func (s *Service) CreateEvent(ctx context.Context, caller domain.SubjectID, in CreateEventInput) (domain.EventDetails, error) {
	title := domain.NormalizeHumanName(in.Title)
	if title == "" {
		return domain.EventDetails{}, errValidation("title", "invalid title", "must be non-empty")
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return domain.EventDetails{}, err
	}
	if err := validateExtras(in.Extras.DetachedLeaders, in.Extras.Guests); err != nil {
		return domain.EventDetails{}, err
	}

	now := s.clock.Now().UTC()
	e := eventrepo.Event{
		ID:              s.newEventID(),
		Title:           title,
		StartDate:       dateOnlyPtr(in.StartDate),
		EndDate:         dateOnlyPtr(in.EndDate),
		StructureName:   normalizedPtr(in.StructureName),
		Notes:           trimmedPtr(in.Notes),
		DetachedLeaders: in.Extras.DetachedLeaders,
		Guests:          in.Extras.Guests,
		Segments:        logistics.NormalizeAll(in.Segments),
		Revision:        1,
		CreatedBy:       caller,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.events.Create(ctx, e); err != nil {
		if errors.Is(err, eventrepo.ErrAlreadyExists) {
			return domain.EventDetails{}, &Error{Status: http.StatusConflict, Code: "EVENT_ID_CONFLICT", Message: "event id conflict"}
		}
		return domain.EventDetails{}, err
	}

	s.publish(e)
	return toDetails(e), nil
}

func (s *Service) UpdateEvent(ctx context.Context, id domain.EventID, in UpdateEventInput) (domain.EventDetails, error) {
	if in.Title.IsSpecified() {
		if in.Title.IsNull() {
			return domain.EventDetails{}, errValidation("title", "invalid title", "must not be null")
		}
		if domain.NormalizeHumanName(in.Title.Value()) == "" {
			return domain.EventDetails{}, errValidation("title", "invalid title", "must be non-empty")
		}
	}
	for _, f := range []struct {
		name string
		o    Optional[int]
	}{{"detachedLeaders", in.DetachedLeaders}, {"guests", in.Guests}} {
		field, o := f.name, f.o
		if !o.IsSpecified() {
			continue
		}
		if o.IsNull() {
			return domain.EventDetails{}, errValidation(field, "invalid "+field, "must not be null")
		}
		if o.Value() < 0 {
			return domain.EventDetails{}, errValidation(field, "invalid "+field, "must be >= 0")
		}
	}

	return s.mutate(ctx, id, func(e *eventrepo.Event) error {
		if in.Title.IsSpecified() {
			e.Title = domain.NormalizeHumanName(in.Title.Value())
		}
		if in.StartDate.IsSpecified() {
			e.StartDate = optionalDate(in.StartDate)
		}
		if in.EndDate.IsSpecified() {
			e.EndDate = optionalDate(in.EndDate)
		}
		if in.StructureName.IsSpecified() {
			e.StructureName = optionalText(in.StructureName, domain.NormalizeHumanName)
		}
		if in.Notes.IsSpecified() {
			e.Notes = optionalText(in.Notes, trimSpace)
		}
		if in.DetachedLeaders.IsSpecified() {
			e.DetachedLeaders = in.DetachedLeaders.Value()
		}
		if in.Guests.IsSpecified() {
			e.Guests = in.Guests.Value()
		}
		return validateDates(e.StartDate, e.EndDate)
	})
}

// ReplaceSegments swaps the event's whole segment list for the normalized input.
func (s *Service) ReplaceSegments(ctx context.Context, id domain.EventID, raw []logistics.RawSegment) (domain.EventDetails, error) {
	segs := logistics.NormalizeAll(raw)
	return s.mutate(ctx, id, func(e *eventrepo.Event) error {
		e.Segments = segs
		return nil
	})
}

// PreviewLogistics computes a summary for segments that are not stored yet.
func (s *Service) PreviewLogistics(raw []logistics.RawSegment, extras logistics.Extras) logistics.Summary {
	return logistics.Summarize(raw, logistics.Extras{
		DetachedLeaders: max(extras.DetachedLeaders, 0),
		Guests:          max(extras.Guests, 0),
	})
}

// mutate loads the event, applies fn and saves with an optimistic revision check.
// A concurrent write re-runs fn on the fresh copy.
func (s *Service) mutate(ctx context.Context, id domain.EventID, fn func(*eventrepo.Event) error) (domain.EventDetails, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.load(ctx, id)
		if err != nil {
			return domain.EventDetails{}, err
		}
		expected := e.Revision
		if err := fn(&e); err != nil {
			return domain.EventDetails{}, err
		}
		e.Revision = expected + 1
		e.UpdatedAt = s.clock.Now().UTC()

		err = s.events.Save(ctx, e, expected)
		switch {
		case err == nil:
			s.publish(e)
			return toDetails(e), nil
		case errors.Is(err, eventrepo.ErrNotFound):
			return domain.EventDetails{}, errNotFound()
		case errors.Is(err, eventrepo.ErrRevisionConflict) && attempt < maxSaveAttempts:
			s.log.Debug("event revision conflict, retrying",
				zap.String("event_id", string(id)),
				zap.Int64("expected_revision", expected),
				zap.Int("attempt", attempt))
			continue
		default:
			return domain.EventDetails{}, err
		}
	}
}

func (s *Service) load(ctx context.Context, id domain.EventID) (eventrepo.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, eventrepo.ErrNotFound) {
			return eventrepo.Event{}, errNotFound()
		}
		return eventrepo.Event{}, err
	}
	return e, nil
}

func (s *Service) publish(e eventrepo.Event) {
	if s.changes == nil {
		return
	}
	n := s.changes.Publish(domain.EventChanged{EventID: e.ID, Revision: e.Revision, At: e.UpdatedAt})
	s.log.Debug("event changed",
		zap.String("event_id", string(e.ID)),
		zap.Int64("revision", e.Revision),
		zap.Int("subscribers", n))
}
