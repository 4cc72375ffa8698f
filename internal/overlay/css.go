package overlay

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mgpai22/burnsub/internal/style"
)

// CSS is the declaration set the preview applies to the caption element.
type CSS struct {
	FontFamily string `json:"fontFamily"`
	FontSize   string `json:"fontSize"`
	LineHeight string `json:"lineHeight"`
	Color      string `json:"color"`
	Bottom     string `json:"bottom"`
	TextAlign  string `json:"textAlign"`
	TextShadow string `json:"textShadow"`
}

// NewCSS styles a caption from g. The outline is four offset shadows of
// OutlinePx in the outline color; text-stroke renders differently from
// libass and is never emitted.
func NewCSS(g Geometry, cfg style.Config) CSS {
	return CSS{
		FontFamily: strconv.Quote(cfg.FontFamily) + ", sans-serif",
		FontSize:   px(g.EmPx),
		LineHeight: px(g.CellPx),
		Color:      cfg.FontColor.Hex(),
		Bottom:     px(g.MarginBottomPx),
		TextAlign:  "center",
		TextShadow: textShadow(g.OutlinePx, cfg.OutlineColor),
	}
}

func textShadow(w float64, color style.RGB) string {
	if round3(w) <= 0 {
		return "none"
	}
	d := px(w)
	c := color.Hex()
	return fmt.Sprintf("-%s 0 0 %s, %s 0 0 %s, 0 -%s 0 %s, 0 %s 0 %s", d, c, d, c, d, c, d, c)
}

// String renders the declarations as an inline style attribute.
func (c CSS) String() string {
	decls := []string{
		"position: absolute",
		"left: 0",
		"right: 0",
		"bottom: " + c.Bottom,
		"font-family: " + c.FontFamily,
		"font-size: " + c.FontSize,
		"line-height: " + c.LineHeight,
		"color: " + c.Color,
		"text-align: " + c.TextAlign,
		"text-shadow: " + c.TextShadow,
		"white-space: pre-line",
	}
	return strings.Join(decls, "; ") + ";"
}

func px(v float64) string {
	return strconv.FormatFloat(round3(v), 'f', -1, 64) + "px"
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
