package logistics

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// maxDailySpan bounds ComputeDailyOccupancy so a mistyped year cannot
// produce millions of rows.
const maxDailySpan = 3660

// Occupancy is a peak headcount and the first maximal run of consecutive days
// (inclusive) during which it holds.
// From and To are zero when People is zero.
type Occupancy struct {
	People int
	From   time.Time
	To     time.Time
}

// DayCount is the headcount present on a single day.
type DayCount struct {
	Date   time.Time
	People int
}

type boundary struct {
	at    time.Time
	delta int
}

// boundaries returns the sorted +/- headcount changes of the dated segments
// accepted by keep. A segment occupies [start, end], so it leaves on end+1.
func boundaries(segs []BranchSegment, keep func(BranchSegment) bool) []boundary {
	out := make([]boundary, 0, 2*len(segs))
	for _, s := range segs {
		if !s.Dated() || (keep != nil && !keep(s)) {
			continue
		}
		n := s.Headcount()
		if n <= 0 {
			continue
		}
		out = append(out,
			boundary{at: s.StartDate, delta: n},
			boundary{at: s.EndDate.Add(day), delta: -n},
		)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// peakOf runs the sweep line. All deltas sharing a date are applied before the
// running total is compared against the maximum.
func peakOf(segs []BranchSegment, keep func(BranchSegment) bool) Occupancy {
	bs := boundaries(segs, keep)
	var (
		peak    Occupancy
		running int
	)
	for i := 0; i < len(bs); {
		at := bs[i].at
		for i < len(bs) && bs[i].at.Equal(at) {
			running += bs[i].delta
			i++
		}
		switch {
		case running > peak.People:
			peak.People = running
			peak.From = at
			// The next boundary always exists while people are present.
			peak.To = bs[i].at.Add(-day)
		case running > 0 && running == peak.People && at.Equal(peak.To.Add(day)):
			// Same headcount right after the window: the run continues.
			peak.To = bs[i].at.Add(-day)
		}
	}
	return peak
}

// ComputePeak returns the maximum number of people present on any single day.
func ComputePeak(segs []BranchSegment) Occupancy {
	return peakOf(segs, nil)
}

// ComputePeakParticipants returns ComputePeak(segs).People.
func ComputePeakParticipants(segs []BranchSegment) int {
	return ComputePeak(segs).People
}

// ComputeDailyOccupancy returns one row per day from the earliest start to the
// latest end of the dated segments. It returns nil when nothing is dated or the
// span is implausibly long.
func ComputeDailyOccupancy(segs []BranchSegment) []DayCount {
	bs := boundaries(segs, nil)
	if len(bs) == 0 {
		return nil
	}
	first, last := bs[0].at, bs[len(bs)-1].at
	days := int(last.Sub(first) / day)
	if days > maxDailySpan {
		return nil
	}

	out := make([]DayCount, 0, days)
	running, i := 0, 0
	for d := first; d.Before(last); d = d.Add(day) {
		for i < len(bs) && !bs[i].at.After(d) {
			running += bs[i].delta
			i++
		}
		out = append(out, DayCount{Date: d, People: running})
	}
	return out
}
