package subtitle

import (
	"github.com/mgpai22/burnsub/internal/errs"
)

// Track is the editable caption list of one editing session. Timing edits
// that break ordering are accepted and flag the track unsorted; the list is
// normalized again before serialization. Track is not safe for concurrent
// use; the owning session serializes access.
type Track struct {
	segments []Segment
	unsorted bool
}

func NewTrack(segments []Segment) *Track {
	t := &Track{}
	t.Replace(segments)
	return t
}

// copy of the current captions in edit order
func (t *Track) Segments() []Segment {
	return Clone(t.segments)
}

func (t *Track) Len() int {
	return len(t.segments)
}

func (t *Track) At(i int) (Segment, error) {
	if err := t.checkIndex("get caption", i); err != nil {
		return Segment{}, err
	}
	return t.segments[i], nil
}

// true when edits left captions out of order or overlapping
func (t *Track) Unsorted() bool {
	return t.unsorted
}

func (t *Track) Replace(segments []Segment) {
	t.segments = Clone(segments)
	if t.segments == nil {
		t.segments = []Segment{}
	}
	t.unsorted = !IsSorted(t.segments)
}

func (t *Track) EditText(i int, text string) error {
	if err := t.checkIndex("edit caption text", i); err != nil {
		return err
	}
	t.segments[i].Text = text
	return nil
}

// sets both boundaries of caption i. Only non-finite or negative times are
// refused; an end before the start is caught at serialization.
func (t *Track) EditTiming(i int, start, end float64) error {
	if err := t.checkIndex("edit caption timing", i); err != nil {
		return err
	}
	if !validTime(start) || !validTime(end) {
		return errs.Errorf(
			errs.KindInvalidTiming,
			"edit caption timing",
			"caption %d: times must be finite and non-negative (start %v, end %v)",
			i+1, start, end,
		)
	}
	t.segments[i].Start = start
	t.segments[i].End = end
	t.unsorted = !IsSorted(t.segments)
	return nil
}

func (t *Track) Insert(seg Segment) error {
	if !validTime(seg.Start) || !validTime(seg.End) {
		return errs.Errorf(
			errs.KindInvalidTiming,
			"insert caption",
			"times must be finite and non-negative (start %v, end %v)",
			seg.Start, seg.End,
		)
	}
	t.segments = append(t.segments, seg)
	t.unsorted = !IsSorted(t.segments)
	return nil
}

func (t *Track) Delete(i int) error {
	if err := t.checkIndex("delete caption", i); err != nil {
		return err
	}
	t.segments = append(t.segments[:i], t.segments[i+1:]...)
	t.unsorted = !IsSorted(t.segments)
	return nil
}

// sorts the track in place. Overlaps survive sorting, so the flag only
// clears when none remain.
func (t *Track) Normalize() error {
	sorted, err := Normalize(t.segments)
	if err != nil {
		return err
	}
	t.segments = sorted
	t.unsorted = !IsSorted(t.segments)
	return nil
}

func (t *Track) checkIndex(op string, i int) error {
	if i < 0 || i >= len(t.segments) {
		return errs.Errorf(
			errs.KindNotFound,
			op,
			"caption index %d out of range (0-%d)",
			i, len(t.segments)-1,
		)
	}
	return nil
}
