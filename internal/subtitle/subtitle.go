package subtitle

import (
	"math"
	"sort"
	"strings"

	"github.com/mgpai22/burnsub/internal/errs"
)

// one caption, times in seconds
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// closed interval: both boundaries count as active
func (s Segment) Contains(t float64) bool {
	return s.Start <= t && t <= s.End
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// index of the caption shown at t. When several captions contain t, the
// one that starts earliest wins; equal starts resolve to the lower index.
func ActiveAt(segments []Segment, t float64) (int, bool) {
	best := -1
	for i, seg := range segments {
		if !seg.Contains(t) {
			continue
		}
		if best < 0 || seg.Start < segments[best].Start {
			best = i
		}
	}
	return best, best >= 0
}

// converts raw transcription output into editable captions
func FromTranscript(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out = append(out, Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	return out
}

func Clone(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	copy(out, segments)
	return out
}

// reports whether starts are non-decreasing and no caption runs into the next
func IsSorted(segments []Segment) bool {
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].Start {
			return false
		}
		if segments[i-1].End > segments[i].Start {
			return false
		}
	}
	return true
}

// positions i where caption i overlaps caption i+1, assuming sorted input
func Overlaps(segments []Segment) []int {
	var out []int
	for i := 0; i+1 < len(segments); i++ {
		if segments[i].End > segments[i+1].Start {
			out = append(out, i)
		}
	}
	return out
}

// InvalidTiming naming the first overlapping pair of a sorted list
func checkOverlaps(segments []Segment) error {
	pairs := Overlaps(segments)
	if len(pairs) == 0 {
		return nil
	}
	a, b := segments[pairs[0]], segments[pairs[0]+1]
	return errs.Errorf(
		errs.KindInvalidTiming,
		"serialize",
		"caption %q (%s to %s) overlaps %q (%s to %s)",
		a.Text, FormatTimestamp(a.Start), FormatTimestamp(a.End),
		b.Text, FormatTimestamp(b.Start), FormatTimestamp(b.End),
	)
}

func validTime(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// rejects negative or non-finite times; order and inversion are not checked
func CheckTimes(segments []Segment) error {
	for i, seg := range segments {
		if !validTime(seg.Start) || !validTime(seg.End) {
			return errs.Errorf(
				errs.KindInvalidTiming,
				"check times",
				"caption %d: times must be finite and non-negative (start %v, end %v)",
				i+1, seg.Start, seg.End,
			)
		}
	}
	return nil
}

// returns a sorted copy, rejecting any caption whose end is not after its
// start. Positions in errors are 1-based in input order.
func Normalize(segments []Segment) ([]Segment, error) {
	for i, seg := range segments {
		if !validTime(seg.Start) || !validTime(seg.End) {
			return nil, errs.Errorf(
				errs.KindInvalidTiming,
				"normalize",
				"caption %d has an invalid time (start %v, end %v)",
				i+1, seg.Start, seg.End,
			)
		}
		if seg.End <= seg.Start {
			return nil, errs.Errorf(
				errs.KindInvalidTiming,
				"normalize",
				"caption %d ends at %.3fs, not after its start %.3fs",
				i+1, seg.End, seg.Start,
			)
		}
	}

	out := Clone(segments)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out, nil
}
