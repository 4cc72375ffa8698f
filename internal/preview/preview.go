// Package preview resolves what the caption overlay shows at a playback
// time. It is driven by the player's clock and reads only snapshots.
package preview

import (
	"context"

	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

// Snapshot is a private copy of the captions and style at one moment.
type Snapshot struct {
	Segments []subtitle.Segment
	Style    style.Config
	Font     style.Font
	Frame    overlay.Frame
}

func NewSnapshot(segments []subtitle.Segment, cfg style.Config, font style.Font, frame overlay.Frame) Snapshot {
	return Snapshot{
		Segments: subtitle.Clone(segments),
		Style:    cfg,
		Font:     font,
		Frame:    frame,
	}
}

// Overlay is the preview state for one playback time.
type Overlay struct {
	Time     float64          `json:"time"`
	Active   bool             `json:"active"`
	Index    int              `json:"index"`
	Text     string           `json:"text,omitempty"`
	Start    float64          `json:"start,omitempty"`
	End      float64          `json:"end,omitempty"`
	Geometry overlay.Geometry `json:"geometry"`
	CSS      overlay.CSS      `json:"css"`
}

type Engine struct {
	snap Snapshot
	// captions as the burn renders them, with their positions in snap
	shown    []subtitle.Segment
	shownIdx []int
	geometry overlay.Geometry
	css      overlay.CSS

	emitted bool
	last    int
}

// NewEngine prepares a preview for a player displayHeight pixels tall.
func NewEngine(snap Snapshot, displayHeight float64) *Engine {
	e := &Engine{}
	e.load(snap, displayHeight)
	return e
}

func (e *Engine) load(snap Snapshot, displayHeight float64) {
	e.snap = NewSnapshot(snap.Segments, snap.Style, snap.Font, snap.Frame)
	e.shown, e.shownIdx = e.shown[:0], e.shownIdx[:0]
	for i, seg := range e.snap.Segments {
		seg.Text = subtitle.CleanText(seg.Text)
		if seg.Text == "" {
			continue
		}
		e.shown = append(e.shown, seg)
		e.shownIdx = append(e.shownIdx, i)
	}
	e.geometry = overlay.Compute(snap.Style, snap.Font, snap.Frame, displayHeight)
	e.css = overlay.NewCSS(e.geometry, snap.Style)
	e.emitted = false
}

// Reload swaps in a newer snapshot; the next Tick always reports a change.
func (e *Engine) Reload(snap Snapshot, displayHeight float64) {
	e.load(snap, displayHeight)
}

// At is the overlay for time t. It does not touch tick state.
func (e *Engine) At(t float64) Overlay {
	o := Overlay{
		Time:     t,
		Index:    -1,
		Geometry: e.geometry,
		CSS:      e.css,
	}
	if i, ok := subtitle.ActiveAt(e.shown, t); ok {
		seg := e.shown[i]
		o.Active = true
		o.Index = e.shownIdx[i]
		o.Text = seg.Text
		o.Start = seg.Start
		o.End = seg.End
	}
	return o
}

// Tick handles one playback time update. changed is false when the same
// caption (or none) is still showing.
func (e *Engine) Tick(t float64) (Overlay, bool) {
	o := e.At(t)
	changed := !e.emitted || o.Index != e.last
	e.emitted = true
	e.last = o.Index
	return o, changed
}

// Observe runs Tick for every time received on clock and calls emit when
// the overlay changes. It returns nil once clock is closed.
func (e *Engine) Observe(ctx context.Context, clock <-chan float64, emit func(Overlay)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-clock:
			if !ok {
				return nil
			}
			if o, changed := e.Tick(t); changed {
				emit(o)
			}
		}
	}
}
