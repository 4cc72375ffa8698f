package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/jobs"
	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/preview"
	"github.com/mgpai22/burnsub/internal/session"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, errs.Errorf(errs.KindUploadRejected, "upload", "multipart field \"file\" is required: %v", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortWithError(c, errs.E(errs.KindUploadRejected, "upload", err))
		return
	}
	defer func() { _ = f.Close() }()

	ref, err := s.deps.Uploads.Save(fh.Filename, f)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            ref.ID,
		"original_name": ref.OriginalName,
		"size":          ref.Size,
		"mime":          ref.MIME,
	})
}

func (s *Server) handleFonts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fonts": s.deps.Sessions.Catalog().Fonts()})
}

// probes the upload and checks it holds a decodable video stream
func (s *Server) openVideo(ctx context.Context, uploadID string) (session.Video, error) {
	ref, err := s.deps.Uploads.Open(uploadID)
	if err != nil {
		return session.Video{}, err
	}

	info, err := s.deps.Prober.Probe(ctx, ref.Path)
	if err != nil {
		return session.Video{}, errs.E(errs.KindUploadRejected, "probe upload", err)
	}
	if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
		return session.Video{}, errs.Errorf(errs.KindUploadRejected, "probe upload", "%s has no video stream", ref.OriginalName)
	}

	return session.Video{
		Upload:   ref,
		Frame:    overlay.Frame{Width: info.Width, Height: info.Height},
		Duration: info.Duration.Seconds(),
	}, nil
}

type createSessionRequest struct {
	UploadID string `json:"upload_id" binding:"required"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	video, err := s.openVideo(c.Request.Context(), req.UploadID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sess, err := s.deps.Sessions.Create(video)
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.log.Infow("session created", "session", sess.ID(), "upload", req.UploadID, "frame", fmt.Sprintf("%dx%d", video.Frame.Width, video.Frame.Height))
	c.JSON(http.StatusCreated, sess.View())
}

// loads the :id session or writes the NotFound response
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.deps.Sessions.Delete(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type transcribeRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleTranscribe(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req transcribeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
	}

	videoPath := sess.Video().Upload.Path
	job, err := s.deps.Jobs.Submit(jobs.KindTranscribe, func(ctx context.Context, id string) (interface{}, error) {
		s.deps.Jobs.SetStage(id, "transcribing")
		segments, err := s.deps.Transcriber.Transcribe(ctx, videoPath, req.Model)
		if err != nil {
			return nil, err
		}
		sess.SetSegments(segments)
		return gin.H{"segments": len(segments)}, nil
	}, jobs.WithSession(sess.ID()))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

type replaceSegmentsRequest struct {
	Segments []subtitle.Segment `json:"segments"`
}

func (s *Server) handleReplaceSegments(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req replaceSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if req.Segments == nil {
		req.Segments = []subtitle.Segment{}
	}

	// inverted captions are accepted here and caught at export
	if err := subtitle.CheckTimes(req.Segments); err != nil {
		abortWithError(c, err)
		return
	}

	sess.SetSegments(req.Segments)
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleInsertSegment(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var seg subtitle.Segment
	if err := c.ShouldBindJSON(&seg); err != nil {
		abortBadRequest(c, err)
		return
	}
	if err := sess.InsertSegment(seg); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) handleNormalizeSegments(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.NormalizeSegments(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func segmentIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortWithError(c, errs.Errorf(errs.KindNotFound, "segment index", "invalid caption index %q", c.Param("index")))
		return 0, false
	}
	return i, true
}

type editSegmentRequest struct {
	Text  *string  `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

func (s *Server) handleEditSegment(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	i, ok := segmentIndex(c)
	if !ok {
		return
	}

	var req editSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if req.Text == nil && req.Start == nil && req.End == nil {
		abortBadRequest(c, fmt.Errorf("one of text, start or end is required"))
		return
	}

	if req.Start != nil || req.End != nil {
		segs := sess.Segments()
		if i < 0 || i >= len(segs) {
			abortWithError(c, errs.Errorf(errs.KindNotFound, "edit caption", "caption index %d out of range", i))
			return
		}
		start, end := segs[i].Start, segs[i].End
		if req.Start != nil {
			start = *req.Start
		}
		if req.End != nil {
			end = *req.End
		}
		if err := sess.EditTiming(i, start, end); err != nil {
			abortWithError(c, err)
			return
		}
	}

	if req.Text != nil {
		if err := sess.EditText(i, *req.Text); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSegment(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	i, ok := segmentIndex(c)
	if !ok {
		return
	}
	if err := sess.DeleteSegment(i); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// either {field, value} for one field, or any subset of the style fields
type styleRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
	style.Patch
}

func (s *Server) handleStyle(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req styleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.E(errs.KindInvalidStyle, "update style", err))
		return
	}

	var (
		cfg style.Config
		err error
	)
	if req.Field != "" {
		cfg, err = sess.UpdateStyle(req.Field, req.Value)
	} else {
		cfg, err = sess.MergeStyle(req.Patch)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handlePreview(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	t, err := strconv.ParseFloat(c.DefaultQuery("t", "0"), 64)
	if err != nil || !finite(t) || t < 0 {
		abortWithError(c, errs.Errorf(errs.KindInvalidTiming, "preview", "invalid playback time %q", c.Query("t")))
		return
	}
	displayHeight := 0.0
	if v := c.Query("display_height"); v != "" {
		displayHeight, err = strconv.ParseFloat(v, 64)
		if err != nil || !finite(displayHeight) || displayHeight < 0 {
			abortWithError(c, errs.Errorf(errs.KindInvalidStyle, "preview", "invalid display height %q", v))
			return
		}
	}

	snap, err := sess.PreviewSnapshot()
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview.NewEngine(snap, displayHeight).At(t))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func srtName(videoName string) string {
	base := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	if base == "" {
		base = "captions"
	}
	return base + ".srt"
}

func (s *Server) handleSubtitles(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	text, err := sess.SRT()
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", srtName(sess.Video().Upload.OriginalName)))
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(text))
}

// what a finished export job reports
type exportResult struct {
	JobID       string  `json:"job_id"`
	VideoURL    string  `json:"video_url"`
	SubtitleURL string  `json:"subtitle_url"`
	Duration    float64 `json:"duration"`
	Elapsed     float64 `json:"elapsed"`
}

func (s *Server) submitExport(c *gin.Context, job *burn.ExportJob, sessionID string) {
	if _, err := subtitle.SerializeSRT(job.Segments); err != nil {
		abortWithError(c, err)
		return
	}

	queued, err := s.deps.Jobs.Submit(jobs.KindExport, func(ctx context.Context, id string) (interface{}, error) {
		res, err := s.deps.Burner.Run(ctx, job)
		if err != nil {
			return nil, err
		}
		out := exportResult{
			JobID:       res.JobID,
			VideoURL:    "/outputs/" + res.JobID + "/" + filepath.Base(res.VideoPath),
			SubtitleURL: "/outputs/" + res.JobID + "/" + filepath.Base(res.SubtitlePath),
			Elapsed:     res.Elapsed.Seconds(),
		}
		if res.Output != nil {
			out.Duration = res.Output.Duration.Seconds()
		}
		return out, nil
	}, jobs.WithID(job.ID), jobs.WithSession(sessionID))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, queued)
}

func (s *Server) handleExport(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.submitExport(c, sess.ExportJob(), sess.ID())
}

// sessionless burn: SubRip text and a full style in one request
type burnRequest struct {
	UploadID    string        `json:"upload_id" binding:"required"`
	SRTContent  string        `json:"srt_content" binding:"required"`
	StyleConfig *style.Config `json:"style_config"`
}

func (s *Server) handleBurn(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	video, err := s.openVideo(c.Request.Context(), req.UploadID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	segments, err := subtitle.ParseSRT(strings.NewReader(req.SRTContent))
	if err != nil {
		abortWithError(c, err)
		return
	}

	cfg := s.deps.Sessions.Defaults()
	if req.StyleConfig != nil {
		cfg = *req.StyleConfig
	}
	if err := cfg.Validate(video.Frame.Height); err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.deps.Sessions.Catalog().Check(cfg); err != nil {
		abortWithError(c, err)
		return
	}

	src := burn.Source{Path: video.Upload.Path, OriginalName: video.Upload.OriginalName}
	s.submitExport(c, burn.NewExportJob(src, segments, cfg), "")
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Jobs.List()})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.deps.Jobs.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Jobs.Cancel(id); err != nil {
		abortWithError(c, err)
		return
	}
	job, err := s.deps.Jobs.Get(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// streams an uploaded video to the editor's player; range requests work so
// the player can seek
func (s *Server) handleUploadedVideo(c *gin.Context) {
	ref, err := s.deps.Uploads.Open(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ref.MIME != "" {
		c.Header("Content-Type", ref.MIME)
	}
	c.File(ref.Path)
}

// serves a finished export file; names never leave the job's directory
func (s *Server) handleOutput(c *gin.Context) {
	jobID, name := c.Param("job"), c.Param("name")
	if _, err := uuid.Parse(jobID); err != nil || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		abortWithError(c, errs.Errorf(errs.KindNotFound, "output", "no output %s/%s", jobID, name))
		return
	}

	path := filepath.Join(s.deps.OutputDir, jobID, name)
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		abortWithError(c, errs.Errorf(errs.KindNotFound, "output", "no output %s/%s", jobID, name))
		return
	}

	c.FileAttachment(path, name)
}
