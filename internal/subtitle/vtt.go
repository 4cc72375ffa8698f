package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mgpai22/burnsub/internal/errs"
)

var (
	vttRangeRegex = regexp.MustCompile(
		`^((?:\d+:)?\d{2}:\d{2}\.\d{3})\s*-->\s*((?:\d+:)?\d{2}:\d{2}\.\d{3})`,
	)
	vttTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// ParseVTT reads WebVTT cues. NOTE, STYLE and REGION blocks are skipped,
// cue settings after the time range are ignored and inline tags stripped.
func ParseVTT(r io.Reader) ([]Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments []Segment
		current  *Segment
		text     []string
		lineNum  int
		skipping bool
	)

	flush := func() {
		if current != nil {
			current.Text = strings.Join(text, "\n")
			segments = append(segments, *current)
		}
		current = nil
		text = nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, fmt.Errorf("parse vtt: missing WEBVTT header")
			}
			skipping = true
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			skipping = false
			continue
		}
		if skipping {
			continue
		}

		if current == nil {
			if strings.HasPrefix(trimmed, "NOTE") ||
				strings.HasPrefix(trimmed, "STYLE") ||
				strings.HasPrefix(trimmed, "REGION") {
				skipping = true
				continue
			}
			m := vttRangeRegex.FindStringSubmatch(trimmed)
			if m == nil {
				// cue identifier line
				continue
			}
			start, err := parseVTTTimestamp(m[1])
			if err != nil {
				return nil, errs.E(errs.KindInvalidTiming, "parse vtt", fmt.Errorf("line %d: %w", lineNum, err))
			}
			end, err := parseVTTTimestamp(m[2])
			if err != nil {
				return nil, errs.E(errs.KindInvalidTiming, "parse vtt", fmt.Errorf("line %d: %w", lineNum, err))
			}
			current = &Segment{Start: start, End: end}
			continue
		}

		if clean := strings.TrimSpace(vttTagRegex.ReplaceAllString(line, "")); clean != "" {
			text = append(text, clean)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vtt: %w", err)
	}

	return segments, nil
}

// accepts both hh:mm:ss.mmm and the short mm:ss.mmm form
func parseVTTTimestamp(s string) (float64, error) {
	if strings.Count(s, ":") == 1 {
		s = "00:" + s
	}
	return ParseTimestamp(s)
}
