package eventrepo

import (
	"context"
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
)

// Event is the persistence shape used by the event repository.
// It is not an HTTP DTO. Segments are stored already normalized.
type Event struct {
	ID    domain.EventID
	Title string

	// StartDate is used for sorting; nil means "unknown".
	StartDate *time.Time
	EndDate   *time.Time

	StructureName *string
	Notes         *string

	DetachedLeaders int
	Guests          int

	Segments []logistics.BranchSegment

	Revision int64

	CreatedBy domain.SubjectID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted events.
//
// Result ordering expectations:
// - List returns events by startDate ascending, undated last, then createdAt, then ID.
type Repository interface {
	Create(ctx context.Context, e Event) error

	// Save replaces the stored event if its stored revision equals expectedRevision.
	Save(ctx context.Context, e Event, expectedRevision int64) error

	GetByID(ctx context.Context, id domain.EventID) (Event, error)

	List(ctx context.Context) ([]Event, error)
}
