// Package burn renders captions into a copy of a video. A run moves through
// serializing, rendering and verifying; any failure ends in the failed state
// after the job's temporary and partial files are removed.
package burn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/fonts"
	"github.com/mgpai22/burnsub/internal/fsutil"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

const tempSubtitleName = "captions.srt"

type EncodeRequest struct {
	Input  string
	Output string
	// -vf expression burning the captions
	Filter string
}

type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) error
}

type Prober interface {
	Probe(ctx context.Context, path string) (*media.Info, error)
}

type FontResolver interface {
	Resolve(ctx context.Context, family string) (fonts.Resolved, error)
}

type Result struct {
	JobID        string        `json:"jobId"`
	VideoPath    string        `json:"videoPath"`
	SubtitlePath string        `json:"subtitlePath"`
	SubtitleText string        `json:"-"`
	Output       *media.Info   `json:"output"`
	Elapsed      time.Duration `json:"elapsed"`
}

type Pipeline struct {
	Encoder Encoder
	Prober  Prober
	Fonts   FontResolver

	// parent of per-job temp dirs; empty uses the OS temp dir
	WorkDir   string
	OutputDir string
	// wall-clock bound for one run; zero disables it
	Timeout time.Duration

	Logger *logging.Logger
	// called on every state change, from the goroutine running the job
	OnTransition func(jobID string, from, to State)
}

type run struct {
	p     *Pipeline
	job   *ExportJob
	log   *logging.Logger
	state State

	tempDir string
	outDir  string
}

// Run burns job's captions into a new video. The returned error always
// carries an errs.Kind. Temporary files are removed on every path; final
// outputs are removed unless the run reaches the done state.
func (p *Pipeline) Run(ctx context.Context, job *ExportJob) (res *Result, err error) {
	r := &run{
		p:     p,
		job:   job,
		log:   logging.OrNop(p.Logger).With("job", job.ID),
		state: StateIdle,
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if cerr := r.cleanup(err == nil); cerr != nil {
			r.log.Warnw("cleanup incomplete", "error", cerr)
		}
	}()

	res, err = r.execute(ctx)
	if err != nil {
		err = classify(ctx, err)
		r.log.Warnw("burn failed", "state", r.state, "kind", errs.KindOf(err), "error", err)
		r.to(StateFailed)
		return nil, err
	}

	res.Elapsed = time.Since(started)
	r.log.Infow("burn finished", "output", res.VideoPath, "elapsed", res.Elapsed)
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	job := r.job

	// serializing
	r.to(StateSerializing)

	text, err := subtitle.SerializeSRT(job.Segments)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errs.Errorf(errs.KindInvalidTiming, "serialize", "no captions with text to burn")
	}

	font, err := r.p.Fonts.Resolve(ctx, job.Style.FontFamily)
	if err != nil {
		return nil, errs.E(errs.KindFontResolutionFailed, "resolve font", err)
	}

	src, err := r.p.Prober.Probe(ctx, job.Source.Path)
	if err != nil {
		return nil, errs.E(errs.KindEncodeFailed, "probe source", err)
	}
	if !src.HasVideo || src.Width <= 0 || src.Height <= 0 {
		return nil, errs.Errorf(errs.KindEncodeFailed, "probe source", "%s has no video stream", job.Source.Path)
	}
	frame := overlay.Frame{Width: src.Width, Height: src.Height}

	if err := job.Style.Validate(frame.Height); err != nil {
		return nil, err
	}

	if err := r.makeDirs(); err != nil {
		return nil, err
	}
	srtTemp := filepath.Join(r.tempDir, tempSubtitleName)
	if err := os.WriteFile(srtTemp, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write subtitle file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// rendering
	r.to(StateRendering)

	videoPath := filepath.Join(r.outDir, job.VideoName())
	req := EncodeRequest{
		Input:  job.Source.Path,
		Output: videoPath,
		Filter: overlay.SubtitlesFilter(
			srtTemp,
			font.Dir,
			overlay.ForceStyle(job.Style, font.Name, frame),
		),
	}
	r.log.Debugw("encoding", "input", req.Input, "output", req.Output, "filter", req.Filter)

	if err := r.p.Encoder.Encode(ctx, req); err != nil {
		return nil, errs.E(errs.KindEncodeFailed, "encode", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// verifying
	r.to(StateVerifying)

	if !fsutil.NonEmptyFile(videoPath) {
		return nil, errs.Errorf(errs.KindVerificationFailed, "verify", "output %s is missing or empty", filepath.Base(videoPath))
	}
	out, err := r.p.Prober.Probe(ctx, videoPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.E(errs.KindVerificationFailed, "verify", err)
	}
	if !out.HasVideo || out.Duration <= 0 {
		return nil, errs.Errorf(
			errs.KindVerificationFailed,
			"verify",
			"output is not playable (video stream: %v, duration: %v)",
			out.HasVideo, out.Duration,
		)
	}

	subtitlePath := filepath.Join(r.outDir, job.SubtitleName())
	if err := fsutil.WriteFileAtomic(subtitlePath, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write subtitle artifact: %w", err)
	}

	r.to(StateDone)

	return &Result{
		JobID:        job.ID,
		VideoPath:    videoPath,
		SubtitlePath: subtitlePath,
		SubtitleText: text,
		Output:       out,
	}, nil
}

func (r *run) makeDirs() error {
	workDir := r.p.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(workDir, "burnsub-"+r.job.ID+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	r.tempDir = dir

	outDir := filepath.Join(r.p.OutputDir, r.job.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	r.outDir = outDir
	return nil
}

func (r *run) to(next State) {
	if !CanTransition(r.state, next) {
		// a bug in the pipeline, not a runtime condition
		panic(fmt.Sprintf("burn: illegal transition %s -> %s", r.state, next))
	}
	prev := r.state
	r.state = next
	r.log.Debugw("state", "from", prev, "to", next)
	if r.p.OnTransition != nil {
		r.p.OnTransition(r.job.ID, prev, next)
	}
}

// removes the temp dir, and the job's output dir unless the run succeeded
func (r *run) cleanup(succeeded bool) error {
	var err error
	if r.tempDir != "" {
		err = multierr.Append(err, os.RemoveAll(r.tempDir))
	}
	if !succeeded && r.outDir != "" {
		err = multierr.Append(err, os.RemoveAll(r.outDir))
	}
	return err
}

// gives every failure a kind; deadline and cancellation win over whatever
// the interrupted step reported
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errs.E(errs.KindTimeout, "burn", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return errs.E(errs.KindCanceled, "burn", err)
	}
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return errs.E(errs.KindUnknown, "burn", err)
}
