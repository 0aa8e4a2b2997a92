package logistics

// AccommodationSummary is the capacity each lodging kind must provide.
type AccommodationSummary struct {
	NeedsIndoor    bool
	NeedsTents     bool
	IndoorCapacity int
	TentsCapacity  int
}

// ComputeAccommodationRequirements sizes each accommodation kind by the peak
// occupancy of the segments using it. Overlapping segments of the same kind are
// peak-aggregated, not summed.
func ComputeAccommodationRequirements(segs []BranchSegment) AccommodationSummary {
	indoor := peakOf(segs, usesKind(AccommodationIndoor)).People
	tents := peakOf(segs, usesKind(AccommodationTents)).People
	return AccommodationSummary{
		NeedsIndoor:    indoor > 0,
		NeedsTents:     tents > 0,
		IndoorCapacity: indoor,
		TentsCapacity:  tents,
	}
}

func usesKind(a Accommodation) func(BranchSegment) bool {
	return func(s BranchSegment) bool { return s.Accommodation == a }
}
