package logistics

// Extras are participants tracked outside segment data.
type Extras struct {
	DetachedLeaders int `json:"detached_leaders" yaml:"detached_leaders"`
	Guests          int `json:"guests" yaml:"guests"`
}

// BranchTotals holds the per-role buckets of a single branch.
type BranchTotals struct {
	Youth      int
	Kambusieri int
}

// ParticipantTotals is the (branch x role) breakdown of an event's headcount.
// ByBranch always has an entry for every branch in Branches.
type ParticipantTotals struct {
	ByBranch        map[Branch]BranchTotals
	Leaders         int
	DetachedLeaders int
	Guests          int
	Total           int
}

// Youth returns the youth count summed across branches.
func (t ParticipantTotals) Youth() int {
	n := 0
	for _, bt := range t.ByBranch {
		n += bt.Youth
	}
	return n
}

// Kambusieri returns the support-staff count summed across branches.
func (t ParticipantTotals) Kambusieri() int {
	n := 0
	for _, bt := range t.ByBranch {
		n += bt.Kambusieri
	}
	return n
}

// ComputeParticipantTotals folds segments into a ParticipantTotals.
// Leaders are branch-independent. The result does not depend on segment order.
func ComputeParticipantTotals(segs []BranchSegment, extras Extras) ParticipantTotals {
	t := ParticipantTotals{ByBranch: make(map[Branch]BranchTotals, len(Branches))}
	for _, b := range Branches {
		t.ByBranch[b] = BranchTotals{}
	}
	for _, s := range segs {
		bt := t.ByBranch[s.Branch]
		bt.Youth += nonNegative(s.YouthCount)
		bt.Kambusieri += nonNegative(s.KambusieriCount)
		t.ByBranch[s.Branch] = bt
		t.Leaders += nonNegative(s.LeadersCount)
	}
	t.DetachedLeaders = nonNegative(extras.DetachedLeaders)
	t.Guests = nonNegative(extras.Guests)

	t.Total = t.Youth() + t.Kambusieri() + t.Leaders + t.DetachedLeaders + t.Guests
	return t
}

func nonNegative(n int) int {
	return clampCount(n)
}
