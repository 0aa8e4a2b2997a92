package domain

import (
	"time"

	"github.com/campscout/event-logistics-api/internal/domain/logistics"
)

// Event is a scouting event with its per-branch stay plan.
type Event struct {
	ID    EventID
	Title string

	StartDate *time.Time // date-only semantics at the edges
	EndDate   *time.Time // date-only semantics at the edges

	// StructureName is the venue the event is booked at, if chosen.
	StructureName *string
	Notes         *string

	Extras   logistics.Extras
	Segments []logistics.BranchSegment

	// Revision increases on every mutation; live clients compare it when polling.
	Revision int64

	CreatedBy SubjectID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventDetails is the read model returned for a single event.
type EventDetails struct {
	Event
	Logistics logistics.Summary
}

// EventChanged is published whenever an event is mutated.
type EventChanged struct {
	EventID  EventID
	Revision int64
	At       time.Time
}
