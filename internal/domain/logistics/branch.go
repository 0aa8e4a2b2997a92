// Package logistics aggregates per-branch stay segments of an event into
// participant totals, peak occupancy and accommodation requirements.
//
// Every function in this package is pure and total: malformed input is
// coerced to a safe default instead of being reported, because the
// computations run against draft form data while it is being edited.
package logistics

import "strings"

// Branch is the participant group a segment belongs to.
type Branch string

const (
	BranchLC  Branch = "LC"  // youngest
	BranchEG  Branch = "EG"  // middle
	BranchRS  Branch = "RS"  // oldest; no separate kambusieri headcount
	BranchAll Branch = "ALL" // whole group staying together
)

// Branches lists every branch in display order.
var Branches = []Branch{BranchLC, BranchEG, BranchRS, BranchAll}

var branchAliases = map[string]Branch{
	"lc":          BranchLC,
	"l/c":         BranchLC,
	"lupetti":     BranchLC,
	"coccinelle":  BranchLC,
	"youngest":    BranchLC,
	"eg":          BranchEG,
	"e/g":         BranchEG,
	"esploratori": BranchEG,
	"guide":       BranchEG,
	"reparto":     BranchEG,
	"middle":      BranchEG,
	"rs":          BranchRS,
	"r/s":         BranchRS,
	"rover":       BranchRS,
	"scolte":      BranchRS,
	"clan":        BranchRS,
	"oldest":      BranchRS,
	"all":         BranchAll,
	"tutti":       BranchAll,
	"gruppo":      BranchAll,
}

// ParseBranch maps a branch code or alias to a Branch.
// Unknown or empty codes map to BranchAll.
func ParseBranch(s string) Branch {
	if b, ok := branchAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b
	}
	return BranchAll
}

func (b Branch) String() string { return string(b) }

// HasKambusieri reports whether the branch tracks support staff separately.
func (b Branch) HasKambusieri() bool { return b != BranchRS }

// Accommodation is the kind of lodging a segment uses.
type Accommodation string

const (
	AccommodationIndoor Accommodation = "indoor"
	AccommodationTents  Accommodation = "tents"
)

var accommodationAliases = map[string]Accommodation{
	"indoor":   AccommodationIndoor,
	"indoors":  AccommodationIndoor,
	"house":    AccommodationIndoor,
	"building": AccommodationIndoor,
	"casa":     AccommodationIndoor,
	"beds":     AccommodationIndoor,
	"tents":    AccommodationTents,
	"tent":     AccommodationTents,
	"tende":    AccommodationTents,
	"camping":  AccommodationTents,
	"field":    AccommodationTents,
}

// ParseAccommodation maps an accommodation string to an Accommodation.
// Unknown or empty values map to AccommodationIndoor.
func ParseAccommodation(s string) Accommodation {
	if a, ok := accommodationAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return a
	}
	return AccommodationIndoor
}

func (a Accommodation) String() string { return string(a) }
