package events

import (
	"strings"
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
	"github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
)

func toDomain(e eventrepo.Event) domain.Event {
	return domain.Event{
		ID:            e.ID,
		Title:         e.Title,
		StartDate:     e.StartDate,
		EndDate:       e.EndDate,
		StructureName: e.StructureName,
		Notes:         e.Notes,
		Extras: logistics.Extras{
			DetachedLeaders: e.DetachedLeaders,
			Guests:          e.Guests,
		},
		Segments:  append([]logistics.BranchSegment(nil), e.Segments...),
		Revision:  e.Revision,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toDetails(e eventrepo.Event) domain.EventDetails {
	d := domain.EventDetails{Event: toDomain(e)}
	d.Logistics = logistics.SummarizeSegments(d.Segments, d.Extras)
	return d
}

func validateDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return errValidation("endDate", "invalid date range", "must be on or after startDate")
	}
	return nil
}

func validateExtras(detachedLeaders, guests int) error {
	if detachedLeaders < 0 {
		return errValidation("detachedLeaders", "invalid detachedLeaders", "must be >= 0")
	}
	if guests < 0 {
		return errValidation("guests", "invalid guests", "must be >= 0")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOnly(*t)
	return &d
}

func optionalDate(o Optional[time.Time]) *time.Time {
	if o.IsNull() {
		return nil
	}
	d := dateOnly(o.Value())
	return &d
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

// optionalText maps null and blank values to nil.
func optionalText(o Optional[string], clean func(string) string) *string {
	if o.IsNull() {
		return nil
	}
	v := clean(o.Value())
	if v == "" {
		return nil
	}
	return &v
}

func normalizedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optionalText(Some(*s), domain.NormalizeHumanName)
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optionalText(Some(*s), trimSpace)
}
