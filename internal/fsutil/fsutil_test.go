package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\videos\my clip.mov`, "my clip.mov"},
		{"a:b?.mkv", "a-b_.mkv"},
		{"  spaced   out .webm", "spaced out .webm"},
		{".hidden.mp4", "hidden.mp4"},
		{"", "untitled"},
		{"/", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "out.srt")

	if err := WriteFileAtomic(dest, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "1\n" {
		t.Errorf("content = %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the destination file, found %d entries", len(entries))
	}
	if !NonEmptyFile(dest) {
		t.Error("NonEmptyFile should report true")
	}
}
