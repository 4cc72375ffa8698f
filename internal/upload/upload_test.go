package upload

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mgpai22/burnsub/internal/errs"
)

// smallest header mimetype sniffs as video/mp4
func mp4Bytes() []byte {
	b := []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2avc1mp41")
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

func webmBytes() []byte {
	b := []byte("\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01\x42\xf7\x81\x01\x42\xf2\x81\x04\x42\xf3\x81\x08\x42\x82\x84webm\x42\x87\x81\x04\x42\x85\x81\x02")
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatal(err)
	}
	return len(entries)
}

func TestSaveAndOpen(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		mime string
	}{
		{"mp4", "My Clip.MP4", mp4Bytes(), "video/mp4"},
		{"webm", "talk.webm", webmBytes(), "video/webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(t.TempDir(), 1<<20, nil)

			ref, err := store.Save(tt.file, bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if ref.OriginalName != tt.file {
				t.Errorf("original name = %q, want %q", ref.OriginalName, tt.file)
			}
			if ref.Size != int64(len(tt.data)) {
				t.Errorf("size = %d, want %d", ref.Size, len(tt.data))
			}
			if ref.MIME != tt.mime {
				t.Errorf("mime = %q, want %q", ref.MIME, tt.mime)
			}
			if !strings.HasPrefix(filepath.Base(ref.Path), ref.ID) {
				t.Errorf("path %q should be named by id %q", ref.Path, ref.ID)
			}

			got, err := store.Open(ref.ID)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got.Path != ref.Path || got.OriginalName != ref.OriginalName {
				t.Errorf("Open = %+v, want %+v", got, ref)
			}
		})
	}
}

func TestSaveRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"extension", "notes.txt", mp4Bytes()},
		{"no extension", "video", mp4Bytes()},
		{"text disguised as mp4", "clip.mp4", []byte("hello, this is not a video at all\n")},
		{"zip disguised as mkv", "clip.mkv", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")},
		{"empty", "clip.mp4", nil},
		{"too large", "clip.mp4", append(mp4Bytes(), bytes.Repeat([]byte{1}, 2048)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, 1024, nil)

			_, err := store.Save(tt.file, bytes.NewReader(tt.data))
			if !errs.Is(err, errs.KindUploadRejected) {
				t.Fatalf("kind = %q, want UploadRejected (err %v)", errs.KindOf(err), err)
			}
			if n := dirEntries(t, dir); n != 0 {
				t.Errorf("rejected upload left %d files behind", n)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSaveInterruptedBody(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 0, nil)

	_, err := store.Save("clip.mp4", io.MultiReader(bytes.NewReader(mp4Bytes()), failingReader{}))
	if !errs.Is(err, errs.KindUploadRejected) {
		t.Fatalf("kind = %q, want UploadRejected", errs.KindOf(err))
	}
	if n := dirEntries(t, dir); n != 0 {
		t.Errorf("partial upload left %d files behind", n)
	}
}

func TestOpenNotFound(t *testing.T) {
	store := NewStore(t.TempDir(), 0, nil)

	for _, id := range []string{
		"0b8f6a64-3a52-4c1c-a5f8-2d2b3f7b6a11",
		"../../etc/passwd",
		"",
	} {
		if _, err := store.Open(id); !errs.Is(err, errs.KindNotFound) {
			t.Errorf("Open(%q) kind = %q, want NotFound", id, errs.KindOf(err))
		}
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 0, nil)

	ref, err := store.Save("clip.mp4", bytes.NewReader(mp4Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ref.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := dirEntries(t, dir); n != 0 {
		t.Errorf("delete left %d files", n)
	}
	if _, err := store.Open(ref.ID); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Open after delete kind = %q, want NotFound", errs.KindOf(err))
	}
}
