package eventrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	"github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
)

// Repo is an in-memory implementation of eventrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.EventID]eventrepo.Event
}

func NewRepo() *Repo {
	return &Repo{
		byID: make(map[domain.EventID]eventrepo.Event),
	}
}

func (r *Repo) Create(ctx context.Context, e eventrepo.Event) error {
	_ = ctx
	if e.ID == "" {
		return eventrepo.ErrAlreadyExists // treat empty ID as invalid for now
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.ID]; ok {
		return eventrepo.ErrAlreadyExists
	}
	r.byID[e.ID] = cloneEvent(e)
	return nil
}

func (r *Repo) Save(ctx context.Context, e eventrepo.Event, expectedRevision int64) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[e.ID]
	if !ok {
		return eventrepo.ErrNotFound
	}
	if cur.Revision != expectedRevision {
		return eventrepo.ErrRevisionConflict
	}
	r.byID[e.ID] = cloneEvent(e)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.EventID) (eventrepo.Event, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return eventrepo.Event{}, eventrepo.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (r *Repo) List(ctx context.Context) ([]eventrepo.Event, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]eventrepo.Event, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, cloneEvent(e))
	}
	sortEvents(out)
	return out, nil
}

func cloneEvent(e eventrepo.Event) eventrepo.Event {
	cp := e
	cp.StartDate = cloneTimePtr(e.StartDate)
	cp.EndDate = cloneTimePtr(e.EndDate)
	cp.StructureName = cloneStringPtr(e.StructureName)
	cp.Notes = cloneStringPtr(e.Notes)
	if e.Segments != nil {
		cp.Segments = append([]logistics.BranchSegment(nil), e.Segments...)
	}
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortEvents(es []eventrepo.Event) {
	// By startDate ascending; undated events go after dated ones. Ties by createdAt, then ID.
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		ad, bd := a.StartDate, b.StartDate
		if ad != nil && bd != nil && !ad.Equal(*bd) {
			return ad.Before(*bd)
		}
		if (ad == nil) != (bd == nil) {
			return ad != nil
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return string(a.ID) < string(b.ID)
	})
}
