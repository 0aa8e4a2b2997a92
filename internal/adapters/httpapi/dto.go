package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/campscout/event-logistics-api/internal/app/events"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
)

// SegmentInput is a segment as typed into the event form. Dates are kept as text
// and counts accept numbers or numeric strings; the engine coerces anything else.
type SegmentInput struct {
	Branch          string          `json:"branch"`
	StartDate       string          `json:"startDate"`
	EndDate         string          `json:"endDate"`
	YouthCount      logistics.Count `json:"youthCount"`
	LeadersCount    logistics.Count `json:"leadersCount"`
	KambusieriCount logistics.Count `json:"kambusieriCount"`
	Accommodation   string          `json:"accommodation"`
	Notes           string          `json:"notes,omitempty"`
}

func (in SegmentInput) raw() logistics.RawSegment {
	return logistics.RawSegment{
		Branch:          in.Branch,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		YouthCount:      in.YouthCount,
		LeadersCount:    in.LeadersCount,
		KambusieriCount: in.KambusieriCount,
		Accommodation:   in.Accommodation,
		Notes:           in.Notes,
	}
}

func rawSegments(in []SegmentInput) []logistics.RawSegment {
	out := make([]logistics.RawSegment, 0, len(in))
	for _, s := range in {
		out = append(out, s.raw())
	}
	return out
}

type CreateEventRequest struct {
	Title           string              `json:"title"`
	StartDate       *openapi_types.Date `json:"startDate,omitempty"`
	EndDate         *openapi_types.Date `json:"endDate,omitempty"`
	StructureName   *string             `json:"structureName,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	DetachedLeaders int                 `json:"detachedLeaders"`
	Guests          int                 `json:"guests"`
	Segments        []SegmentInput      `json:"segments"`
}

// UpdateEventRequest is a JSON merge patch: omitted fields are unchanged and
// null clears nullable fields.
type UpdateEventRequest struct {
	Title           nullable.Nullable[string]             `json:"title,omitempty"`
	StartDate       nullable.Nullable[openapi_types.Date] `json:"startDate,omitempty"`
	EndDate         nullable.Nullable[openapi_types.Date] `json:"endDate,omitempty"`
	StructureName   nullable.Nullable[string]             `json:"structureName,omitempty"`
	Notes           nullable.Nullable[string]             `json:"notes,omitempty"`
	DetachedLeaders nullable.Nullable[int]                `json:"detachedLeaders,omitempty"`
	Guests          nullable.Nullable[int]                `json:"guests,omitempty"`
}

type ReplaceSegmentsRequest struct {
	Segments []SegmentInput `json:"segments"`
}

type PreviewRequest struct {
	Segments        []SegmentInput `json:"segments"`
	DetachedLeaders int            `json:"detachedLeaders"`
	Guests          int            `json:"guests"`
}

type Segment struct {
	Branch          string                                `json:"branch"`
	StartDate       nullable.Nullable[openapi_types.Date] `json:"startDate"`
	EndDate         nullable.Nullable[openapi_types.Date] `json:"endDate"`
	YouthCount      int                                   `json:"youthCount"`
	LeadersCount    int                                   `json:"leadersCount"`
	KambusieriCount int                                   `json:"kambusieriCount"`
	Accommodation   string                                `json:"accommodation"`
	Notes           string                                `json:"notes,omitempty"`
}

type BranchTotals struct {
	Youth      int `json:"youth"`
	Kambusieri int `json:"kambusieri"`
}

type ParticipantTotals struct {
	ByBranch        map[string]BranchTotals `json:"byBranch"`
	Youth           int                     `json:"youth"`
	Kambusieri      int                     `json:"kambusieri"`
	Leaders         int                     `json:"leaders"`
	DetachedLeaders int                     `json:"detachedLeaders"`
	Guests          int                     `json:"guests"`
	Total           int                     `json:"total"`
}

type Occupancy struct {
	People int                                   `json:"people"`
	From   nullable.Nullable[openapi_types.Date] `json:"from"`
	To     nullable.Nullable[openapi_types.Date] `json:"to"`
}

type Accommodation struct {
	NeedsIndoor    bool `json:"needsIndoor"`
	NeedsTents     bool `json:"needsTents"`
	IndoorCapacity int  `json:"indoorCapacity"`
	TentsCapacity  int  `json:"tentsCapacity"`
}

type DayCount struct {
	Date   openapi_types.Date `json:"date"`
	People int                `json:"people"`
}

type LogisticsSummary struct {
	Totals        ParticipantTotals `json:"totals"`
	Peak          Occupancy         `json:"peak"`
	Accommodation Accommodation     `json:"accommodation"`
	Daily         []DayCount        `json:"daily"`
}

type Event struct {
	ID              string                                `json:"id"`
	Title           string                                `json:"title"`
	StartDate       nullable.Nullable[openapi_types.Date] `json:"startDate"`
	EndDate         nullable.Nullable[openapi_types.Date] `json:"endDate"`
	StructureName   nullable.Nullable[string]             `json:"structureName"`
	Notes           nullable.Nullable[string]             `json:"notes"`
	DetachedLeaders int                                   `json:"detachedLeaders"`
	Guests          int                                   `json:"guests"`
	Segments        []Segment                             `json:"segments"`
	Revision        int64                                 `json:"revision"`
	CreatedBy       string                                `json:"createdBy"`
	CreatedAt       time.Time                             `json:"createdAt"`
	UpdatedAt       time.Time                             `json:"updatedAt"`
}

type EventDetails struct {
	Event
	Logistics LogisticsSummary `json:"logistics"`
}

type EventList struct {
	Events []Event `json:"events"`
}

// EventChanged is the data payload of an event.changed server-sent event.
type EventChanged struct {
	EventID  string    `json:"eventId"`
	Revision int64     `json:"revision"`
	At       time.Time `json:"at"`
}

func nullableString(p *string) nullable.Nullable[string] {
	if p == nil {
		return nullable.NewNullNullable[string]()
	}
	return nullable.NewNullableWithValue(*p)
}

func nullableDate(p *time.Time) nullable.Nullable[openapi_types.Date] {
	if p == nil || p.IsZero() {
		return nullable.NewNullNullable[openapi_types.Date]()
	}
	return nullable.NewNullableWithValue(openapi_types.Date{Time: p.UTC()})
}

func nullableDateValue(t time.Time) nullable.Nullable[openapi_types.Date] {
	return nullableDate(&t)
}

func dateTimePtr(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func optionalFromNullable[T any](n nullable.Nullable[T]) events.Optional[T] {
	if !n.IsSpecified() {
		return events.Unspecified[T]()
	}
	if n.IsNull() {
		return events.Null[T]()
	}
	v, _ := n.Get()
	return events.Some(v)
}

func optionalTimeFromNullableDate(n nullable.Nullable[openapi_types.Date]) events.Optional[time.Time] {
	o := optionalFromNullable(n)
	if !o.IsSpecified() {
		return events.Unspecified[time.Time]()
	}
	if o.IsNull() {
		return events.Null[time.Time]()
	}
	return events.Some(o.Value().Time)
}

func createEventInput(b CreateEventRequest) events.CreateEventInput {
	return events.CreateEventInput{
		Title:         b.Title,
		StartDate:     dateTimePtr(b.StartDate),
		EndDate:       dateTimePtr(b.EndDate),
		StructureName: b.StructureName,
		Notes:         b.Notes,
		Extras: logistics.Extras{
			DetachedLeaders: b.DetachedLeaders,
			Guests:          b.Guests,
		},
		Segments: rawSegments(b.Segments),
	}
}

func updateEventInput(b UpdateEventRequest) events.UpdateEventInput {
	return events.UpdateEventInput{
		Title:           optionalFromNullable(b.Title),
		StartDate:       optionalTimeFromNullableDate(b.StartDate),
		EndDate:         optionalTimeFromNullableDate(b.EndDate),
		StructureName:   optionalFromNullable(b.StructureName),
		Notes:           optionalFromNullable(b.Notes),
		DetachedLeaders: optionalFromNullable(b.DetachedLeaders),
		Guests:          optionalFromNullable(b.Guests),
	}
}

func segmentFromDomain(s logistics.BranchSegment) Segment {
	return Segment{
		Branch:          string(s.Branch),
		StartDate:       nullableDateValue(s.StartDate),
		EndDate:         nullableDateValue(s.EndDate),
		YouthCount:      s.YouthCount,
		LeadersCount:    s.LeadersCount,
		KambusieriCount: s.KambusieriCount,
		Accommodation:   string(s.Accommodation),
		Notes:           s.Notes,
	}
}

func eventFromDomain(e domain.Event) Event {
	segs := make([]Segment, 0, len(e.Segments))
	for _, s := range e.Segments {
		segs = append(segs, segmentFromDomain(s))
	}
	return Event{
		ID:              string(e.ID),
		Title:           e.Title,
		StartDate:       nullableDate(e.StartDate),
		EndDate:         nullableDate(e.EndDate),
		StructureName:   nullableString(e.StructureName),
		Notes:           nullableString(e.Notes),
		DetachedLeaders: e.Extras.DetachedLeaders,
		Guests:          e.Extras.Guests,
		Segments:        segs,
		Revision:        e.Revision,
		CreatedBy:       string(e.CreatedBy),
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}
}

func eventDetailsFromDomain(d domain.EventDetails) EventDetails {
	return EventDetails{
		Event:     eventFromDomain(d.Event),
		Logistics: NewLogisticsSummary(d.Logistics),
	}
}

// NewLogisticsSummary converts computed aggregates to their wire form.
func NewLogisticsSummary(s logistics.Summary) LogisticsSummary {
	byBranch := make(map[string]BranchTotals, len(s.Totals.ByBranch))
	for b, t := range s.Totals.ByBranch {
		byBranch[string(b)] = BranchTotals{Youth: t.Youth, Kambusieri: t.Kambusieri}
	}
	daily := make([]DayCount, 0, len(s.Daily))
	for _, d := range s.Daily {
		daily = append(daily, DayCount{Date: openapi_types.Date{Time: d.Date}, People: d.People})
	}
	return LogisticsSummary{
		Totals: ParticipantTotals{
			ByBranch:        byBranch,
			Youth:           s.Totals.Youth(),
			Kambusieri:      s.Totals.Kambusieri(),
			Leaders:         s.Totals.Leaders,
			DetachedLeaders: s.Totals.DetachedLeaders,
			Guests:          s.Totals.Guests,
			Total:           s.Totals.Total,
		},
		Peak: Occupancy{
			People: s.Peak.People,
			From:   nullableDateValue(s.Peak.From),
			To:     nullableDateValue(s.Peak.To),
		},
		Accommodation: Accommodation{
			NeedsIndoor:    s.Accommodation.NeedsIndoor,
			NeedsTents:     s.Accommodation.NeedsTents,
			IndoorCapacity: s.Accommodation.IndoorCapacity,
			TentsCapacity:  s.Accommodation.TentsCapacity,
		},
		Daily: daily,
	}
}
