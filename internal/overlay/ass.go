package overlay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mgpai22/burnsub/internal/style"
)

// ForceStyle renders the libass style override for the subtitles filter.
// fontName is the family name libass should match; for downloaded fonts
// the file is found through the filter's fontsdir.
func ForceStyle(cfg style.Config, fontName string, frame Frame) string {
	g := Compute(cfg, style.Font{}, frame, 0)

	fields := []string{
		"PlayResX=" + strconv.Itoa(frame.Width),
		"PlayResY=" + strconv.Itoa(frame.Height),
		"ScaledBorderAndShadow=yes",
		"FontName=" + fontName,
		"FontSize=" + formatNum(g.CellPx),
		"PrimaryColour=" + cfg.FontColor.ASS(),
		"OutlineColour=" + cfg.OutlineColor.ASS(),
		"BorderStyle=1",
		"Outline=" + formatNum(g.OutlinePx),
		"Shadow=0",
		"Alignment=" + strconv.Itoa(g.Alignment),
		"MarginV=" + formatNum(g.MarginBottomPx),
	}
	return strings.Join(fields, ",")
}

// SubtitlesFilter builds the -vf expression that burns srtPath. fontsDir
// may be empty when the font is installed on the host.
func SubtitlesFilter(srtPath, fontsDir, forceStyle string) string {
	opts := []string{"filename=" + quoteOption(srtPath)}
	if fontsDir != "" {
		opts = append(opts, "fontsdir="+quoteOption(fontsDir))
	}
	if forceStyle != "" {
		opts = append(opts, "force_style="+quoteOption(forceStyle))
	}
	return "subtitles=" + escapeGraph(strings.Join(opts, ":"))
}

// first escaping level: the filter's own option parser
func quoteOption(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

// second escaping level: the filtergraph parser
func escapeGraph(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '\'', '[', ']', ',', ';':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func formatNum(v float64) string {
	return strconv.FormatFloat(round3(v), 'f', -1, 64)
}

// ParseForceStyle splits a force_style string back into its fields.
func ParseForceStyle(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed force_style field %q", part)
		}
		out[k] = v
	}
	return out, nil
}
