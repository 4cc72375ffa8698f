package fonts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SystemFonts reports which family the render host substitutes for a
// requested one.
type SystemFonts interface {
	Match(ctx context.Context, family string) (string, error)
}

// FontConfig asks fontconfig, the matcher libass uses on Linux builds of
// ffmpeg. Binary defaults to fc-match on PATH.
type FontConfig struct {
	Binary string
}

func (f FontConfig) Match(ctx context.Context, family string) (string, error) {
	bin := f.Binary
	if bin == "" {
		bin = "fc-match"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("cannot check installed fonts, %s not found: %w", bin, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-f", "%{family}", family)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("fc-match %q: %w: %s", family, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// matched is fontconfig's comma separated family list, e.g.
// "DejaVu Sans,DejaVu Sans Condensed"
func familyMatches(requested, matched string) bool {
	requested = strings.TrimSpace(requested)
	for _, name := range strings.Split(matched, ",") {
		if strings.EqualFold(strings.TrimSpace(name), requested) {
			return true
		}
	}
	return false
}

// fails unless the host would render family itself rather than a stand-in
func (r *Resolver) checkInstalled(ctx context.Context, family string) error {
	r.mu.Lock()
	ok := r.installed[family]
	r.mu.Unlock()
	if ok {
		return nil
	}

	matched, err := r.system.Match(ctx, family)
	if err != nil {
		return err
	}
	if !familyMatches(family, matched) {
		if matched == "" {
			matched = "nothing"
		}
		return fmt.Errorf("system font %q is not installed (host would use %s)", family, matched)
	}

	r.mu.Lock()
	r.installed[family] = true
	r.mu.Unlock()
	return nil
}
