package logistics

// Summary bundles every aggregate computed for one segment list.
type Summary struct {
	Segments      []BranchSegment
	Totals        ParticipantTotals
	Peak          Occupancy
	Accommodation AccommodationSummary
	Daily         []DayCount
}

// Summarize normalizes raw segments and computes all aggregates.
func Summarize(raw []RawSegment, extras Extras) Summary {
	return SummarizeSegments(NormalizeAll(raw), extras)
}

// SummarizeSegments computes all aggregates for already-normalized segments.
func SummarizeSegments(segs []BranchSegment, extras Extras) Summary {
	return Summary{
		Segments:      segs,
		Totals:        ComputeParticipantTotals(segs, extras),
		Peak:          ComputePeak(segs),
		Accommodation: ComputeAccommodationRequirements(segs),
		Daily:         ComputeDailyOccupancy(segs),
	}
}
