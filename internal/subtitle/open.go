package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// reads an .srt or .vtt caption file
func Open(path string) ([]Segment, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".srt" && ext != ".vtt" {
		return nil, fmt.Errorf("unsupported subtitle format %q: use .srt or .vtt", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitles: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if ext == ".vtt" {
		return ParseVTT(f)
	}
	return ParseSRT(f)
}
