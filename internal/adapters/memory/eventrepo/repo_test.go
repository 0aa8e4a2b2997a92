package eventrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	"github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
)

func TestRepo_List_Sorts(t *testing.T) {
	t.Parallel()

	r := NewRepo()

	start1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	start2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	// Undated, created between the dated ones (should sort after all dated).
	eUndated := eventrepo.Event{ID: "e3", Title: "Undated", CreatedAt: time.Unix(20, 0).UTC()}
	eDated1 := eventrepo.Event{ID: "e1", Title: "Summer", StartDate: &start1, CreatedAt: time.Unix(10, 0).UTC()}
	eDated2 := eventrepo.Event{ID: "e2", Title: "Route", StartDate: &start2, CreatedAt: time.Unix(30, 0).UTC()}
	eUndatedLater := eventrepo.Event{ID: "e4", Title: "Later", CreatedAt: time.Unix(40, 0).UTC()}

	for _, e := range []eventrepo.Event{eUndatedLater, eDated2, eUndated, eDated1} {
		if err := r.Create(context.Background(), e); err != nil {
			t.Fatalf("Create(%s) err=%v", e.ID, err)
		}
	}

	got, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len=%d, want 4", len(got))
	}
	ids := []domain.EventID{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	if ids[0] != "e1" || ids[1] != "e2" || ids[2] != "e3" || ids[3] != "e4" {
		t.Fatalf("order=%v, want [e1 e2 e3 e4]", ids)
	}
}

func TestRepo_Save_RevisionConflict(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	e := eventrepo.Event{ID: "e1", Title: "Camp", Revision: 1, CreatedAt: time.Unix(10, 0).UTC()}
	if err := r.Create(ctx, e); err != nil {
		t.Fatalf("Create err=%v", err)
	}

	e.Title = "Camp 2"
	e.Revision = 2
	if err := r.Save(ctx, e, 1); err != nil {
		t.Fatalf("Save err=%v", err)
	}

	e.Title = "Stale"
	e.Revision = 2
	if err := r.Save(ctx, e, 1); !errors.Is(err, eventrepo.ErrRevisionConflict) {
		t.Fatalf("Save stale err=%v, want ErrRevisionConflict", err)
	}

	if err := r.Save(ctx, eventrepo.Event{ID: "missing"}, 0); !errors.Is(err, eventrepo.ErrNotFound) {
		t.Fatalf("Save missing err=%v, want ErrNotFound", err)
	}
}

func TestRepo_ReturnsCopies(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	venue := "Base Scout"
	e := eventrepo.Event{
		ID:            "e1",
		Title:         "Camp",
		StructureName: &venue,
		Segments:      []logistics.BranchSegment{{Branch: logistics.BranchLC, YouthCount: 10}},
	}
	if err := r.Create(ctx, e); err != nil {
		t.Fatalf("Create err=%v", err)
	}
	venue = "changed"
	e.Segments[0].YouthCount = 99

	got, err := r.GetByID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByID err=%v", err)
	}
	if *got.StructureName != "Base Scout" || got.Segments[0].YouthCount != 10 {
		t.Fatalf("stored event aliased caller memory: %+v", got)
	}

	got.Segments[0].YouthCount = 1
	again, _ := r.GetByID(ctx, "e1")
	if again.Segments[0].YouthCount != 10 {
		t.Fatalf("returned event aliased stored memory")
	}
}
