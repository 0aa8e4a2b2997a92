package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	eventrepoport "github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
	idempotencyport "github.com/campscout/event-logistics-api/internal/ports/out/idempotency"
)

type CleanupFunc = func()

type EventRepoFactory func(t *testing.T) (eventrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Subject:  domain.SubjectID("sub-1"),
		Method:   "PUT",
		Route:    "/events/{eventId}/segments",
		BodyHash: "",
	}
	rec := idempotencyport.Record{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"revision":1}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != `{"revision":1}` || got.ContentType != "application/json" || got.StatusCode != 200 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"revision":2}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != `{"revision":2}` {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// A different body hash is a different request.
	other := fp
	other.BodyHash = "other"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other fingerprint: ok=%v err=%v", ok, err)
	}

	// Expiry sweep.
	fresh := fp
	fresh.Key = idempotencyport.Key("k-" + uuid.NewString())
	if err := store.Put(ctx, fresh, idempotencyport.Record{StatusCode: 201, ContentType: "application/json", Body: []byte(`{}`), CreatedAt: time.Unix(10_000, 0).UTC()}); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}
	n, err := store.DeleteCreatedBefore(ctx, time.Unix(5_000, 0).UTC())
	if err != nil {
		t.Fatalf("DeleteCreatedBefore: %v", err)
	}
	if n < 1 {
		t.Fatalf("DeleteCreatedBefore removed %d, want >= 1", n)
	}
	if _, ok, _ := store.Get(ctx, fp); ok {
		t.Fatalf("expected old record to be deleted")
	}
	if _, ok, _ := store.Get(ctx, fresh); !ok {
		t.Fatalf("expected fresh record to survive")
	}
}

func RunEventRepo(t *testing.T, newRepo EventRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(2000, 0).UTC()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC)
	venue := "Casa Alpina"
	id := domain.EventID(uuid.NewString())

	e := eventrepoport.Event{
		ID:              id,
		Title:           "Summer camp",
		StartDate:       &start,
		EndDate:         &end,
		StructureName:   &venue,
		DetachedLeaders: 2,
		Guests:          1,
		Segments: []logistics.BranchSegment{
			{
				Branch:          logistics.BranchLC,
				StartDate:       start,
				EndDate:         start.AddDate(0, 0, 4),
				YouthCount:      20,
				LeadersCount:    4,
				KambusieriCount: 2,
				Accommodation:   logistics.AccommodationIndoor,
				Notes:           "first week",
			},
			{
				Branch:        logistics.BranchRS,
				StartDate:     start.AddDate(0, 0, 3),
				EndDate:       end,
				YouthCount:    12,
				LeadersCount:  2,
				Accommodation: logistics.AccommodationTents,
			},
		},
		Revision:  1,
		CreatedBy: domain.SubjectID("sub-creator"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, e); !errors.Is(err, eventrepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate err=%v, want ErrAlreadyExists", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Summer camp" || got.Revision != 1 || got.DetachedLeaders != 2 || got.Guests != 1 {
		t.Fatalf("unexpected event: %#v", got)
	}
	if got.StartDate == nil || !got.StartDate.Equal(start) || got.StructureName == nil || *got.StructureName != venue {
		t.Fatalf("unexpected dates/venue: %#v", got)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segments=%d, want 2", len(got.Segments))
	}
	s0 := got.Segments[0]
	if s0.Branch != logistics.BranchLC || !s0.StartDate.Equal(start) || s0.YouthCount != 20 || s0.KambusieriCount != 2 || s0.Notes != "first week" {
		t.Fatalf("segment order or contents not preserved: %#v", got.Segments)
	}
	if got.Segments[1].Accommodation != logistics.AccommodationTents {
		t.Fatalf("segment[1] accommodation=%s", got.Segments[1].Accommodation)
	}

	if _, err := repo.GetByID(ctx, domain.EventID(uuid.NewString())); !errors.Is(err, eventrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}

	// Optimistic save.
	got.Title = "Summer camp 2026"
	got.Segments = got.Segments[:1]
	got.Revision = 2
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, got, 1); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, got, 1); !errors.Is(err, eventrepoport.ErrRevisionConflict) {
		t.Fatalf("Save stale err=%v, want ErrRevisionConflict", err)
	}
	saved, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after save: %v", err)
	}
	if saved.Title != "Summer camp 2026" || saved.Revision != 2 || len(saved.Segments) != 1 {
		t.Fatalf("unexpected saved event: %#v", saved)
	}

	// Listing includes the event.
	es, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, le := range es {
		if le.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("List did not include %s", id)
	}
}
