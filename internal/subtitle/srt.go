package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/fsutil"
)

// HH:MM:SS,mmm. The fraction is rounded to whole milliseconds and a rounded
// value of 1000 carries into the seconds before decomposition.
func FormatTimestamp(seconds float64) string {
	if !validTime(seconds) {
		seconds = 0
	}

	whole := math.Floor(seconds)
	// round to microseconds first so binary noise below the half-millisecond
	// mark does not decide the millisecond rounding
	micros := math.Round((seconds - whole) * 1e6)
	millis := int64(math.Round(micros / 1000))

	total := int64(whole)
	if millis >= 1000 {
		total++
		millis -= 1000
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

var timestampRegex = regexp.MustCompile(`^(\d{1,}):(\d{2}):(\d{2})[,.](\d{3})$`)

// parses HH:MM:SS,mmm (a dot separator is accepted too)
func ParseTimestamp(s string) (float64, error) {
	m := timestampRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	if mins > 59 || sec > 59 {
		return 0, fmt.Errorf("invalid timestamp %q: field out of range", s)
	}

	totalMillis := int64(h)*3_600_000 + int64(mins)*60_000 + int64(sec)*1000 + int64(ms)
	return float64(totalMillis) / 1000, nil
}

// CleanText is the caption text as it is rendered: lines trimmed and blank
// lines dropped so a block never ends early.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// SerializeSRT normalizes the captions and renders them as SubRip text.
// Numbering is derived from output order. Captions with no text are skipped.
// Overlapping captions are InvalidTiming; libass would stack them.
func SerializeSRT(segments []Segment) (string, error) {
	normalized, err := Normalize(segments)
	if err != nil {
		return "", err
	}

	shown := normalized[:0]
	for _, seg := range normalized {
		seg.Text = CleanText(seg.Text)
		if seg.Text != "" {
			shown = append(shown, seg)
		}
	}
	if err := checkOverlaps(shown); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, seg := range shown {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteByte('\n')
		sb.WriteString(FormatTimestamp(seg.Start))
		sb.WriteString(" --> ")
		sb.WriteString(FormatTimestamp(seg.End))
		sb.WriteByte('\n')
		sb.WriteString(seg.Text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}

// serializes and writes atomically
func WriteFile(path string, segments []Segment) error {
	text, err := SerializeSRT(segments)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}

var srtRangeRegex = regexp.MustCompile(
	`^(\d{1,}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{1,}:\d{2}:\d{2}[,.]\d{3})`,
)

// ParseSRT reads SubRip blocks. The numeric index line is optional and
// ignored; order is the file's order.
func ParseSRT(r io.Reader) ([]Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments []Segment
		current  *Segment
		text     []string
		lineNum  int
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
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimRight(line, "\r")

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if current == nil {
			if _, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
				continue
			}
			m := srtRangeRegex.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				return nil, errs.Errorf(
					errs.KindInvalidTiming,
					"parse srt",
					"line %d: expected a time range, got %q",
					lineNum, line,
				)
			}
			start, err := ParseTimestamp(m[1])
			if err != nil {
				return nil, errs.E(errs.KindInvalidTiming, "parse srt", fmt.Errorf("line %d: %w", lineNum, err))
			}
			end, err := ParseTimestamp(m[2])
			if err != nil {
				return nil, errs.E(errs.KindInvalidTiming, "parse srt", fmt.Errorf("line %d: %w", lineNum, err))
			}
			current = &Segment{Start: start, End: end}
			continue
		}

		text = append(text, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}

	return segments, nil
}
