package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// writes data to a temp file next to destPath, then renames it into place
// so readers never see a partial file
func WriteFileAtomic(destPath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// no-op after a successful rename
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	_ = tmp.Sync()

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	_ = os.Chmod(tmpName, perm)

	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("rename temp -> %s: %w", destPath, err)
	}
	return nil
}

const maxNameLen = 200

var (
	invalidFileRunes = regexp.MustCompile(`[<>"/\\|?*\x00-\x1F]`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes a user supplied file name safe to join under an
// output directory. The extension is kept; path separators never survive.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return "untitled"
	}

	name = strings.ReplaceAll(name, ":", "-")
	clean := invalidFileRunes.ReplaceAllString(name, "_")
	clean = multiSpace.ReplaceAllString(strings.TrimSpace(clean), " ")
	clean = strings.TrimLeft(clean, ".")

	if clean == "" {
		return "untitled"
	}

	if len(clean) > maxNameLen {
		ext := filepath.Ext(clean)
		if len(ext) >= maxNameLen {
			ext = ""
		}
		clean = clean[:maxNameLen-len(ext)] + ext
	}
	return clean
}

// reports whether path exists and is a non-empty regular file
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
