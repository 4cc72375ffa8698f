// Package overlay computes caption placement and appearance from a style.
// The burn filter and the browser preview both derive their numbers from
// Compute, so the two renderings cannot drift apart.
package overlay

import (
	"github.com/mgpai22/burnsub/internal/style"
)

// bottom center, numpad layout as used by libass
const AlignBottomCenter = 2

// pixel size of the source video
type Frame struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// Geometry is the rendered caption layout in display pixels.
type Geometry struct {
	// display pixels per video pixel
	Scale float64 `json:"scale"`
	// line cell height; the libass font size
	CellPx float64 `json:"cellPx"`
	// em size; what CSS font-size expects
	EmPx           float64 `json:"emPx"`
	OutlinePx      float64 `json:"outlinePx"`
	MarginBottomPx float64 `json:"marginBottomPx"`
	Alignment      int     `json:"alignment"`
	DisplayWidth   float64 `json:"displayWidth"`
	DisplayHeight  float64 `json:"displayHeight"`
}

// Compute lays out a caption for a frame shown displayHeight pixels tall.
// A displayHeight of zero or less renders at the frame's own size, which is
// what the burn uses.
//
// The burn sets the script resolution to the frame size, so one libass
// unit is one video pixel and FontSize, Outline and MarginV map straight to
// pixels. libass treats FontSize as the height of the ascent+descent cell,
// while CSS sizes the em box, hence the metrics scale on EmPx.
func Compute(cfg style.Config, font style.Font, frame Frame, displayHeight float64) Geometry {
	scale := 1.0
	if frame.Height > 0 && displayHeight > 0 {
		scale = displayHeight / float64(frame.Height)
	}

	cell := float64(cfg.FontSize) * scale

	return Geometry{
		Scale:          scale,
		CellPx:         cell,
		EmPx:           cell * font.Metrics.EmScale(),
		OutlinePx:      float64(cfg.OutlineWidth) * scale,
		MarginBottomPx: float64(cfg.MarginV) * scale,
		Alignment:      AlignBottomCenter,
		DisplayWidth:   float64(frame.Width) * scale,
		DisplayHeight:  float64(frame.Height) * scale,
	}
}
