package burn

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/burnsub/internal/fsutil"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

// the video being captioned; read only during a burn
type Source struct {
	Path         string `json:"path"`
	OriginalName string `json:"originalName"`
}

// ExportJob is the frozen input of one burn. Edits made after it is built
// do not reach it.
type ExportJob struct {
	ID        string
	Source    Source
	Segments  []subtitle.Segment
	Style     style.Config
	CreatedAt time.Time
}

func NewExportJob(src Source, segments []subtitle.Segment, cfg style.Config) *ExportJob {
	return &ExportJob{
		ID:        uuid.NewString(),
		Source:    src,
		Segments:  subtitle.Clone(segments),
		Style:     cfg,
		CreatedAt: time.Now(),
	}
}

// file name of the source as the user knows it, with a video extension
func (j *ExportJob) baseName() string {
	name := j.Source.OriginalName
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(j.Source.Path)
	}
	name = fsutil.SanitizeFilename(name)
	if filepath.Ext(name) == "" {
		name += filepath.Ext(j.Source.Path)
	}
	return name
}

// subtitled_<original name>
func (j *ExportJob) VideoName() string {
	return "subtitled_" + j.baseName()
}

// <original base>.srt
func (j *ExportJob) SubtitleName() string {
	name := j.baseName()
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".srt"
}
