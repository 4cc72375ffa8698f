// Package upload stores user supplied videos under opaque ids after
// checking the extension, the size limit and the sniffed container type.
package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/fsutil"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
)

// a stored upload
type Ref struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MIME         string    `json:"mime"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store struct {
	dir      string
	maxBytes int64
	log      *logging.Logger
}

// maxBytes <= 0 disables the size limit
func NewStore(dir string, maxBytes int64, log *logging.Logger) *Store {
	return &Store{dir: dir, maxBytes: maxBytes, log: logging.OrNop(log)}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save copies r into the store. Rejections remove whatever was written.
func (s *Store) Save(originalName string, r io.Reader) (Ref, error) {
	const op = "save upload"

	name := fsutil.SanitizeFilename(originalName)
	ext := strings.ToLower(filepath.Ext(name))
	if !media.IsVideoFile(name) {
		return Ref{}, errs.Errorf(
			errs.KindUploadRejected, op,
			"unsupported file type %q: expected one of %s",
			ext, strings.Join(media.VideoExtensions, ", "),
		)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+ext)

	n, err := s.copyLimited(path, r)
	if err != nil {
		_ = os.Remove(path)
		return Ref{}, err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("%s: sniff content: %w", op, err)
	}
	if !isVideo(mtype) {
		_ = os.Remove(path)
		return Ref{}, errs.Errorf(
			errs.KindUploadRejected, op,
			"%s does not contain a video (detected %s)",
			name, mtype.String(),
		)
	}

	ref := Ref{
		ID:           id,
		OriginalName: name,
		Path:         path,
		Size:         n,
		MIME:         mtype.String(),
		CreatedAt:    time.Now().UTC(),
	}

	meta, err := json.Marshal(ref)
	if err != nil {
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := fsutil.WriteFileAtomic(s.metaPath(id), meta, 0o644); err != nil {
		_ = os.Remove(path)
		return Ref{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Infow("stored upload", "id", id, "name", name, "bytes", n, "mime", ref.MIME)
	return ref, nil
}

func (s *Store) copyLimited(path string, r io.Reader) (int64, error) {
	const op = "save upload"

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	src := r
	if s.maxBytes > 0 {
		// one byte past the limit is enough to detect an oversized body
		src = io.LimitReader(r, s.maxBytes+1)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return 0, errs.E(errs.KindUploadRejected, op, fmt.Errorf("read upload: %w", copyErr))
	case closeErr != nil:
		return 0, fmt.Errorf("%s: %w", op, closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		return 0, errs.Errorf(errs.KindUploadRejected, op, "file exceeds the %d MB limit", s.maxBytes>>20)
	case n == 0:
		return 0, errs.Errorf(errs.KindUploadRejected, op, "file is empty")
	}
	return n, nil
}

func isVideo(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

// Open returns a stored upload; unknown or malformed ids are NotFound.
func (s *Store) Open(id string) (Ref, error) {
	const op = "open upload"

	if _, err := uuid.Parse(id); err != nil {
		return Ref{}, errs.Errorf(errs.KindNotFound, op, "upload %q not found", id)
	}

	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ref{}, errs.Errorf(errs.KindNotFound, op, "upload %q not found", id)
		}
		return Ref{}, fmt.Errorf("%s: %w", op, err)
	}

	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return Ref{}, fmt.Errorf("%s: corrupt metadata: %w", op, err)
	}
	if !fsutil.NonEmptyFile(ref.Path) {
		return Ref{}, errs.Errorf(errs.KindNotFound, op, "upload %q has no video file", id)
	}
	return ref, nil
}

// removes the video and its metadata
func (s *Store) Delete(id string) error {
	ref, err := s.Open(id)
	if err != nil {
		return err
	}
	var rmErr error
	for _, p := range []string{ref.Path, s.metaPath(id)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			rmErr = multierr.Append(rmErr, err)
		}
	}
	return rmErr
}
