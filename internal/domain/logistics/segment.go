package logistics

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the canonical calendar-date layout used on the wire.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, time.RFC3339, "02/01/2006"}

// Count is an integer-like field as it arrives from a form or an API payload.
// It decodes from both JSON numbers and JSON strings and keeps the raw text;
// Normalize coerces it to a non-negative int.
type Count string

// CountOf formats n as a Count.
func CountOf(n int) Count { return Count(strconv.Itoa(n)) }

func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Count(s)
		return nil
	}
	*c = Count(b)
	return nil
}

func (c *Count) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		*c = ""
		return nil
	}
	if n.Tag == "!!null" {
		*c = ""
		return nil
	}
	*c = Count(n.Value)
	return nil
}

func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Int())
}

// MaxCount caps a single headcount field so that sums over any realistic
// number of segments stay far from int overflow.
const MaxCount = 1_000_000

// clampCount maps n into [0, MaxCount].
func clampCount(n int) int {
	return min(max(n, 0), MaxCount)
}

// Int returns the coerced value: parse failures and negatives become zero and
// values above MaxCount become MaxCount.
func (c Count) Int() int {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(s, "-") {
			return MaxCount
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 || f != math.Trunc(f) {
			return 0
		}
		if f > MaxCount {
			return MaxCount
		}
		n = int(f)
	}
	return clampCount(n)
}

// RawSegment is a segment as supplied by the event wizard draft or a stored event.
type RawSegment struct {
	Branch          string `json:"branch" yaml:"branch"`
	StartDate       string `json:"start_date" yaml:"start_date"`
	EndDate         string `json:"end_date" yaml:"end_date"`
	YouthCount      Count  `json:"youth_count" yaml:"youth_count"`
	LeadersCount    Count  `json:"leaders_count" yaml:"leaders_count"`
	KambusieriCount Count  `json:"kambusieri_count" yaml:"kambusieri_count"`
	Accommodation   string `json:"accommodation" yaml:"accommodation"`
	Notes           string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// BranchSegment is one contiguous stay of one branch, in canonical form.
// StartDate and EndDate are inclusive UTC-midnight dates; a zero value means
// the date was missing or unparseable.
type BranchSegment struct {
	Branch          Branch
	StartDate       time.Time
	EndDate         time.Time
	YouthCount      int
	LeadersCount    int
	KambusieriCount int
	Accommodation   Accommodation
	Notes           string
}

// Headcount is the number of people the segment brings.
func (s BranchSegment) Headcount() int {
	return clampCount(s.YouthCount) + clampCount(s.LeadersCount) + clampCount(s.KambusieriCount)
}

// Dated reports whether the segment has a usable [start, end] range.
func (s BranchSegment) Dated() bool {
	return !s.StartDate.IsZero() && !s.EndDate.IsZero() && !s.EndDate.Before(s.StartDate)
}

// Raw projects the segment back to its raw form.
func (s BranchSegment) Raw() RawSegment {
	return RawSegment{
		Branch:          string(s.Branch),
		StartDate:       FormatDate(s.StartDate),
		EndDate:         FormatDate(s.EndDate),
		YouthCount:      CountOf(s.YouthCount),
		LeadersCount:    CountOf(s.LeadersCount),
		KambusieriCount: CountOf(s.KambusieriCount),
		Accommodation:   string(s.Accommodation),
		Notes:           s.Notes,
	}
}

// Normalize converts a raw segment to canonical form. It never fails.
func Normalize(r RawSegment) BranchSegment {
	s := BranchSegment{
		Branch:          ParseBranch(r.Branch),
		StartDate:       ParseDate(r.StartDate),
		EndDate:         ParseDate(r.EndDate),
		YouthCount:      r.YouthCount.Int(),
		LeadersCount:    r.LeadersCount.Int(),
		KambusieriCount: r.KambusieriCount.Int(),
		Accommodation:   ParseAccommodation(r.Accommodation),
		Notes:           strings.TrimSpace(r.Notes),
	}
	if !s.Branch.HasKambusieri() {
		s.KambusieriCount = 0
	}
	return s
}

// NormalizeAll normalizes every segment, preserving order.
func NormalizeAll(rs []RawSegment) []BranchSegment {
	out := make([]BranchSegment, 0, len(rs))
	for _, r := range rs {
		out = append(out, Normalize(r))
	}
	return out
}

// RawAll is the inverse projection of NormalizeAll.
func RawAll(ss []BranchSegment) []RawSegment {
	out := make([]RawSegment, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Raw())
	}
	return out
}

// ParseDate parses a calendar date and truncates it to UTC midnight.
// It returns the zero time when s is empty or not a recognised date.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

// FormatDate renders t with DateLayout, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
