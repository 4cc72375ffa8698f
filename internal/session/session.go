// Package session holds the editing state of one video: its captions and
// caption style. Every read hands out a copy, so previews and exports never
// observe a half-applied edit.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/preview"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/subtitle"
	"github.com/mgpai22/burnsub/internal/upload"
)

// the video a session edits
type Video struct {
	Upload   upload.Ref
	Frame    overlay.Frame
	Duration float64 // seconds, 0 when unknown
}

type Session struct {
	id        string
	video     Video
	catalog   *style.Catalog
	createdAt time.Time

	mu        sync.Mutex
	track     *subtitle.Track
	style     style.Config
	updatedAt time.Time
}

func New(video Video, cfg style.Config, catalog *style.Catalog) (*Session, error) {
	if err := cfg.Validate(video.Frame.Height); err != nil {
		return nil, err
	}
	if err := catalog.Check(cfg); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		id:        uuid.NewString(),
		video:     video,
		catalog:   catalog,
		createdAt: now,
		track:     subtitle.NewTrack(nil),
		style:     cfg,
		updatedAt: now,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Video() Video {
	return s.video
}

// View is a point-in-time copy of a session for display.
type View struct {
	ID        string             `json:"id"`
	UploadID  string             `json:"upload_id"`
	VideoName string             `json:"video_name"`
	Frame     overlay.Frame      `json:"frame"`
	Duration  float64            `json:"duration"`
	Segments  []subtitle.Segment `json:"segments"`
	Unsorted  bool               `json:"unsorted"`
	Overlaps  []int              `json:"overlaps,omitempty"`
	Style     style.Config       `json:"style"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := s.track.Segments()
	v := View{
		ID:        s.id,
		UploadID:  s.video.Upload.ID,
		VideoName: s.video.Upload.OriginalName,
		Frame:     s.video.Frame,
		Duration:  s.video.Duration,
		Segments:  segs,
		Unsorted:  s.track.Unsorted(),
		Style:     s.style,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if v.Unsorted {
		if sorted, err := subtitle.Normalize(segs); err == nil {
			v.Overlaps = subtitle.Overlaps(sorted)
		}
	}
	return v
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}

func (s *Session) Segments() []subtitle.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track.Segments()
}

// replaces every caption, e.g. with a fresh transcript
func (s *Session) SetSegments(segments []subtitle.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track.Replace(segments)
	s.touch()
}

func (s *Session) EditText(i int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.EditText(i, text); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) EditTiming(i int, start, end float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.EditTiming(i, start, end); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) InsertSegment(seg subtitle.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.Insert(seg); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) DeleteSegment(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.Delete(i); err != nil {
		return err
	}
	s.touch()
	return nil
}

// sorts the captions in place
func (s *Session) NormalizeSegments() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.Normalize(); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) Style() style.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// sets one style field; a rejected value leaves the style unchanged
func (s *Session) UpdateStyle(field, value string) (style.Config, error) {
	f, err := style.ParseField(field)
	if err != nil {
		return s.Style(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := style.Update(s.style, f, value, s.video.Frame.Height)
	if err != nil {
		return s.style, err
	}
	if err := s.catalog.Check(next); err != nil {
		return s.style, err
	}
	s.style = next
	s.touch()
	return next, nil
}

// applies every field of p or none
func (s *Session) MergeStyle(p style.Patch) (style.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Empty() {
		return s.style, nil
	}
	next, err := style.Merge(s.style, p, s.video.Frame.Height)
	if err != nil {
		return s.style, err
	}
	if err := s.catalog.Check(next); err != nil {
		return s.style, err
	}
	s.style = next
	s.touch()
	return next, nil
}

// current captions as SubRip text
func (s *Session) SRT() (string, error) {
	return subtitle.SerializeSRT(s.Segments())
}

// ExportJob freezes the captions and style for a burn.
func (s *Session) ExportJob() *burn.ExportJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := burn.Source{
		Path:         s.video.Upload.Path,
		OriginalName: s.video.Upload.OriginalName,
	}
	return burn.NewExportJob(src, s.track.Segments(), s.style)
}

// PreviewSnapshot copies what the preview engine needs.
func (s *Session) PreviewSnapshot() (preview.Snapshot, error) {
	s.mu.Lock()
	segs := s.track.Segments()
	cfg := s.style
	s.mu.Unlock()

	font, err := s.catalog.Lookup(cfg.FontFamily)
	if err != nil {
		return preview.Snapshot{}, err
	}
	return preview.NewSnapshot(segs, cfg, font, s.video.Frame), nil
}

// Manager owns the live sessions of the process. Nothing is persisted.
type Manager struct {
	catalog  *style.Catalog
	defaults style.Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(catalog *style.Catalog, defaults style.Config) *Manager {
	return &Manager{
		catalog:  catalog,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

// starts a session on video with the default style; a default margin
// taller than the frame is clamped to it
func (m *Manager) Create(video Video) (*Session, error) {
	cfg := m.defaults
	if h := video.Frame.Height; h > 0 && cfg.MarginV > h {
		cfg.MarginV = h
	}

	s, err := New(video, cfg, m.catalog)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.Errorf(errs.KindNotFound, "get session", "session %q not found", id)
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errs.Errorf(errs.KindNotFound, "delete session", "session %q not found", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// style new sessions start with
func (m *Manager) Defaults() style.Config {
	return m.defaults
}

func (m *Manager) Catalog() *style.Catalog {
	return m.catalog
}
