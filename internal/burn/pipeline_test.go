package burn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/fonts"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

type fakeEncoder struct {
	mu    sync.Mutex
	calls []EncodeRequest
	// what to do instead of writing a small file
	run func(ctx context.Context, req EncodeRequest) error
}

func (f *fakeEncoder) Encode(ctx context.Context, req EncodeRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, req)
	}
	return os.WriteFile(req.Output, []byte("fake video"), 0o644)
}

func (f *fakeEncoder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProber struct {
	source    media.Info
	outputErr error
	output    *media.Info
}

func (f *fakeProber) Probe(_ context.Context, path string) (*media.Info, error) {
	if strings.Contains(filepath.Base(path), "subtitled_") {
		if f.outputErr != nil {
			return nil, f.outputErr
		}
		if f.output != nil {
			return f.output, nil
		}
		return &media.Info{Path: path, HasVideo: true, Width: 1280, Height: 720, Duration: 3 * time.Second}, nil
	}
	info := f.source
	info.Path = path
	return &info, nil
}

type fakeFonts struct {
	fail map[string]bool
}

func (f fakeFonts) Resolve(_ context.Context, family string) (fonts.Resolved, error) {
	if f.fail[family] {
		return fonts.Resolved{}, errs.Errorf(errs.KindFontResolutionFailed, "resolve font", "%s: 404", family)
	}
	return fonts.Resolved{Family: family, Name: family}, nil
}

type harness struct {
	pipeline *Pipeline
	encoder  *fakeEncoder
	prober   *fakeProber
	work     string
	out      string
	source   string

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		encoder: &fakeEncoder{},
		prober: &fakeProber{source: media.Info{
			HasVideo: true, HasAudio: true, Width: 1280, Height: 720, Duration: 3 * time.Second,
		}},
		work:   filepath.Join(root, "work"),
		out:    filepath.Join(root, "outputs"),
		source: filepath.Join(root, "clip.mp4"),
	}
	if err := os.WriteFile(h.source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.pipeline = &Pipeline{
		Encoder:   h.encoder,
		Prober:    h.prober,
		Fonts:     fakeFonts{fail: map[string]bool{"Broken Font": true}},
		WorkDir:   h.work,
		OutputDir: h.out,
		OnTransition: func(_ string, _, to State) {
			h.mu.Lock()
			h.states = append(h.states, to)
			h.mu.Unlock()
		},
	}
	return h
}

func (h *harness) job(segs []subtitle.Segment, cfg style.Config) *ExportJob {
	return NewExportJob(Source{Path: h.source, OriginalName: "my clip.mp4"}, segs, cfg)
}

func (h *harness) trail() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// no temp dirs may remain; the job's output dir exists only when kept
func (h *harness) assertClean(t *testing.T, jobID string, keepOutputs bool) {
	t.Helper()
	entries, err := os.ReadDir(h.work)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %d entries left", len(entries))
	}
	_, err = os.Stat(filepath.Join(h.out, jobID))
	if keepOutputs && err != nil {
		t.Errorf("outputs missing: %v", err)
	}
	if !keepOutputs && !os.IsNotExist(err) {
		t.Errorf("partial outputs left behind (stat err %v)", err)
	}
}

var helloWorld = []subtitle.Segment{
	{Start: 0.0, End: 1.5, Text: "Hello"},
	{Start: 1.5, End: 3.0, Text: "World"},
}

func scenarioStyle() style.Config {
	return style.Config{
		FontSize:     24,
		FontColor:    style.White,
		OutlineColor: style.Black,
		OutlineWidth: 2,
		MarginV:      30,
		FontFamily:   "Arial",
	}
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t)
	job := h.job(helloWorld, scenarioStyle())

	res, err := h.pipeline.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []State{StateSerializing, StateRendering, StateVerifying, StateDone}
	if diff := cmp.Diff(want, h.trail()); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}

	if got := strings.Count(res.SubtitleText, " --> "); got != 2 {
		t.Errorf("expected 2 blocks, got %d:\n%s", got, res.SubtitleText)
	}
	if !strings.HasPrefix(res.SubtitleText, "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n2\n") {
		t.Errorf("unexpected subtitle text %q", res.SubtitleText)
	}

	if filepath.Base(res.VideoPath) != "subtitled_my clip.mp4" {
		t.Errorf("video name %s", res.VideoPath)
	}
	if filepath.Dir(res.VideoPath) != filepath.Join(h.out, job.ID) {
		t.Errorf("video dir %s", filepath.Dir(res.VideoPath))
	}
	data, err := os.ReadFile(res.SubtitlePath)
	if err != nil {
		t.Fatalf("subtitle artifact: %v", err)
	}
	if string(data) != res.SubtitleText {
		t.Error("subtitle artifact differs from serialized text")
	}

	req := h.encoder.calls[0]
	for _, want := range []string{"force_style=", "FontName=Arial", "FontSize=24", "MarginV=30", "Outline=2", "PlayResY=720"} {
		if !strings.Contains(req.Filter, want) {
			t.Errorf("filter %q missing %q", req.Filter, want)
		}
	}
	if strings.Contains(req.Filter, "fontsdir") {
		t.Error("system font should not pass a fontsdir")
	}

	h.assertClean(t, job.ID, true)
}

func TestRunInvalidTimingBeforeEncoding(t *testing.T) {
	h := newHarness(t)
	job := h.job([]subtitle.Segment{
		{Start: 0, End: 1, Text: "ok"},
		{Start: 5.0, End: 4.0, Text: "bad"},
	}, scenarioStyle())

	_, err := h.pipeline.Run(context.Background(), job)
	if !errs.Is(err, errs.KindInvalidTiming) {
		t.Fatalf("expected InvalidTiming, got %v", err)
	}
	if h.encoder.count() != 0 {
		t.Error("encoder ran despite invalid timing")
	}
	if diff := cmp.Diff([]State{StateSerializing, StateFailed}, h.trail()); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	h.assertClean(t, job.ID, false)
}

func TestRunUnresolvableFont(t *testing.T) {
	h := newHarness(t)
	cfg := scenarioStyle()
	cfg.FontFamily = "Broken Font"

	job := h.job(helloWorld, cfg)
	_, err := h.pipeline.Run(context.Background(), job)
	if !errs.Is(err, errs.KindFontResolutionFailed) {
		t.Fatalf("expected FontResolutionFailed, got %v", err)
	}
	if h.encoder.count() != 0 {
		t.Error("encoder ran without a font")
	}
	h.assertClean(t, job.ID, false)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness, cfg *style.Config)
		wantKind  errs.Kind
		wantTrail []State
	}{
		{
			name: "margin above frame",
			setup: func(h *harness, cfg *style.Config) {
				cfg.MarginV = 721
			},
			wantKind:  errs.KindInvalidStyle,
			wantTrail: []State{StateSerializing, StateFailed},
		},
		{
			name: "source without video",
			setup: func(h *harness, _ *style.Config) {
				h.prober.source.HasVideo = false
			},
			wantKind:  errs.KindEncodeFailed,
			wantTrail: []State{StateSerializing, StateFailed},
		},
		{
			name: "encoder exits non-zero",
			setup: func(h *harness, _ *style.Config) {
				h.encoder.run = func(_ context.Context, req EncodeRequest) error {
					// leave a partial file behind
					_ = os.WriteFile(req.Output, []byte("partial"), 0o644)
					return errors.New("exit status 1: Invalid data found")
				}
			},
			wantKind:  errs.KindEncodeFailed,
			wantTrail: []State{StateSerializing, StateRendering, StateFailed},
		},
		{
			name: "empty output",
			setup: func(h *harness, _ *style.Config) {
				h.encoder.run = func(_ context.Context, req EncodeRequest) error {
					return os.WriteFile(req.Output, nil, 0o644)
				}
			},
			wantKind:  errs.KindVerificationFailed,
			wantTrail: []State{StateSerializing, StateRendering, StateVerifying, StateFailed},
		},
		{
			name: "output not probeable",
			setup: func(h *harness, _ *style.Config) {
				h.prober.outputErr = errors.New("moov atom not found")
			},
			wantKind:  errs.KindVerificationFailed,
			wantTrail: []State{StateSerializing, StateRendering, StateVerifying, StateFailed},
		},
		{
			name: "output has no duration",
			setup: func(h *harness, _ *style.Config) {
				h.prober.output = &media.Info{HasVideo: true}
			},
			wantKind:  errs.KindVerificationFailed,
			wantTrail: []State{StateSerializing, StateRendering, StateVerifying, StateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cfg := scenarioStyle()
			tt.setup(h, &cfg)
			job := h.job(helloWorld, cfg)

			res, err := h.pipeline.Run(context.Background(), job)
			if res != nil {
				t.Error("failed run returned a result")
			}
			if !errs.Is(err, tt.wantKind) {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
			if diff := cmp.Diff(tt.wantTrail, h.trail()); diff != "" {
				t.Errorf("transitions mismatch (-want +got):\n%s", diff)
			}
			h.assertClean(t, job.ID, false)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	h := newHarness(t)
	h.pipeline.Timeout = 50 * time.Millisecond
	h.encoder.run = func(ctx context.Context, req EncodeRequest) error {
		_ = os.WriteFile(req.Output, []byte("partial"), 0o644)
		<-ctx.Done()
		return ctx.Err()
	}

	job := h.job(helloWorld, scenarioStyle())
	_, err := h.pipeline.Run(context.Background(), job)
	if !errs.Is(err, errs.KindTimeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	h.assertClean(t, job.ID, false)
}

func TestRunCanceled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.encoder.run = func(ctx context.Context, req EncodeRequest) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	job := h.job(helloWorld, scenarioStyle())
	_, err := h.pipeline.Run(ctx, job)
	if !errs.Is(err, errs.KindCanceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	h.assertClean(t, job.ID, false)
}

func TestConcurrentExportsAreIndependent(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	errsOut := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = h.pipeline.Run(context.Background(), h.job(helloWorld, scenarioStyle()))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, res := range results {
		if errsOut[i] != nil {
			t.Fatalf("run %d: %v", i, errsOut[i])
		}
		if seen[res.VideoPath] {
			t.Errorf("output path reused: %s", res.VideoPath)
		}
		seen[res.VideoPath] = true
	}
}

func TestStateMachine(t *testing.T) {
	if CanTransition(StateRendering, StateDone) || CanTransition(StateSerializing, StateDone) {
		t.Error("done must only follow verifying")
	}
	if !CanTransition(StateVerifying, StateDone) {
		t.Error("verifying -> done should be allowed")
	}
	for _, s := range []State{StateIdle, StateSerializing, StateRendering, StateVerifying} {
		if !CanTransition(s, StateFailed) {
			t.Errorf("%s -> failed should be allowed", s)
		}
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if CanTransition(StateDone, StateFailed) || CanTransition(StateFailed, StateIdle) {
		t.Error("terminal states must not transition")
	}
}

func TestExportJobSnapshot(t *testing.T) {
	segs := subtitle.Clone(helloWorld)
	job := NewExportJob(Source{Path: "/v/clip.MOV"}, segs, style.Default())
	segs[0].Text = "changed"

	if job.Segments[0].Text != "Hello" {
		t.Error("job shares caption storage with the editor")
	}
	if job.VideoName() != "subtitled_clip.MOV" || job.SubtitleName() != "clip.srt" {
		t.Errorf("names %s %s", job.VideoName(), job.SubtitleName())
	}

	other := NewExportJob(Source{Path: "/v/clip.MOV", OriginalName: "../../evil"}, segs, style.Default())
	if other.VideoName() != "subtitled_evil.MOV" {
		t.Errorf("VideoName = %s", other.VideoName())
	}
	if other.ID == job.ID {
		t.Error("job ids must be unique")
	}
}

func TestEncoderArgs(t *testing.T) {
	e := NewFFmpegEncoder(nil, "libx264", "veryfast", 20, nil)

	args := strings.Join(e.Args(EncodeRequest{Input: "in.mp4", Output: "out.mp4", Filter: "subtitles=x"}), " ")
	for _, want := range []string{"-i in.mp4", "-vf subtitles=x", "-c:v libx264", "-preset veryfast", "-crf 20", "-c:a copy", "out.mp4", "-y"} {
		if !strings.Contains(args, want) {
			t.Errorf("mp4 args %q missing %q", args, want)
		}
	}

	args = strings.Join(e.Args(EncodeRequest{Input: "in.webm", Output: "out.webm", Filter: "subtitles=x"}), " ")
	if !strings.Contains(args, "-c:v libvpx-vp9") || strings.Contains(args, "preset") {
		t.Errorf("webm args %q", args)
	}
}
