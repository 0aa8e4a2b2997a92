package events

import (
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

type CreateEventInput struct {
	Title string

	StartDate *time.Time
	EndDate   *time.Time

	StructureName *string
	Notes         *string

	Extras   logistics.Extras
	Segments []logistics.RawSegment
}

type UpdateEventInput struct {
	// Title is optional and cannot be null.
	Title Optional[string]

	StartDate     Optional[time.Time]
	EndDate       Optional[time.Time]
	StructureName Optional[string]
	Notes         Optional[string]

	// DetachedLeaders and Guests cannot be null; they must be non-negative.
	DetachedLeaders Optional[int]
	Guests          Optional[int]
}

// ChangePublisher receives a notification after every successful mutation.
type ChangePublisher interface {
	Publish(domain.EventChanged) int
}
