package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mgpai22/burnsub/internal/errs"
)

func waitJob(t *testing.T, r *Runner, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return job
}

func TestSubmitSucceeds(t *testing.T) {
	r := NewRunner(nil, nil)

	job, err := r.Submit(KindTranscribe, func(ctx context.Context, id string) (interface{}, error) {
		r.SetStage(id, "transcribing")
		return 42, nil
	}, WithSession("s1"))
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusQueued || job.SessionID != "s1" {
		t.Errorf("submitted job = %+v", job)
	}

	done := waitJob(t, r, job.ID)
	if done.Status != StatusSucceeded {
		t.Fatalf("status = %q, want succeeded", done.Status)
	}
	if done.Result != 42 {
		t.Errorf("result = %v, want 42", done.Result)
	}
	if done.Stage != "transcribing" {
		t.Errorf("stage = %q", done.Stage)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestFailureKeepsKind(t *testing.T) {
	r := NewRunner(nil, nil)

	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"kinded", errs.Errorf(errs.KindEncodeFailed, "encode", "exit status 1"), errs.KindEncodeFailed},
		{"plain", errors.New("boom"), errs.KindUnknown},
		{"timeout", errs.E(errs.KindTimeout, "burn", context.DeadlineExceeded), errs.KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
				return nil, tt.err
			})
			if err != nil {
				t.Fatal(err)
			}
			done := waitJob(t, r, job.ID)
			if done.Status != StatusFailed {
				t.Fatalf("status = %q, want failed", done.Status)
			}
			if done.ErrorKind != tt.want {
				t.Errorf("kind = %q, want %q", done.ErrorKind, tt.want)
			}
			if done.Message != errs.Message(tt.want) {
				t.Errorf("message = %q", done.Message)
			}
			if done.Detail == "" {
				t.Error("detail should carry the error text")
			}
		})
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	r := NewRunner(nil, nil)
	job, _ := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
		panic("nil map")
	})
	done := waitJob(t, r, job.ID)
	if done.Status != StatusFailed || done.ErrorKind != errs.KindUnknown {
		t.Errorf("job = %+v", done)
	}
}

func TestCancelRunning(t *testing.T) {
	r := NewRunner(nil, nil)
	started := make(chan struct{})

	job, _ := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, errs.E(errs.KindCanceled, "burn", ctx.Err())
	})
	<-started

	if err := r.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	done := waitJob(t, r, job.ID)
	if done.Status != StatusCanceled || done.ErrorKind != errs.KindCanceled {
		t.Errorf("job = %+v", done)
	}

	// finished jobs ignore cancel
	if err := r.Cancel(job.ID); err != nil {
		t.Errorf("cancel of finished job: %v", err)
	}
}

func TestCancelQueued(t *testing.T) {
	r := NewRunner(map[Kind]int{KindExport: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	first, _ := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	var ran atomic.Bool
	second, _ := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
		ran.Store(true)
		return nil, nil
	})

	if err := r.Cancel(second.ID); err != nil {
		t.Fatal(err)
	}
	close(release)

	if done := waitJob(t, r, second.ID); done.Status != StatusCanceled {
		t.Errorf("queued job status = %q, want canceled", done.Status)
	}
	if done := waitJob(t, r, first.ID); done.Status != StatusSucceeded {
		t.Errorf("first job status = %q, want succeeded", done.Status)
	}
	if ran.Load() {
		t.Error("canceled queued job should never run")
	}
}

func TestConcurrencyBound(t *testing.T) {
	r := NewRunner(map[Kind]int{KindExport: 2}, nil)

	var running, peak atomic.Int32
	var ids []string
	for i := 0; i < 6; i++ {
		job, err := r.Submit(KindExport, func(ctx context.Context, id string) (interface{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		waitJob(t, r, id)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestNotFound(t *testing.T) {
	r := NewRunner(nil, nil)

	if _, err := r.Get("missing"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Get kind = %q", errs.KindOf(err))
	}
	if err := r.Cancel("missing"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Cancel kind = %q", errs.KindOf(err))
	}
	if _, err := r.Wait(context.Background(), "missing"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Wait kind = %q", errs.KindOf(err))
	}
}

func TestWithIDAndDuplicates(t *testing.T) {
	r := NewRunner(nil, nil)
	fn := func(ctx context.Context, id string) (interface{}, error) { return id, nil }

	job, err := r.Submit(KindExport, fn, WithID("export-1"))
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != "export-1" {
		t.Errorf("id = %q", job.ID)
	}
	if _, err := r.Submit(KindExport, fn, WithID("export-1")); err == nil {
		t.Error("duplicate id should be refused")
	}
	if done := waitJob(t, r, "export-1"); done.Result != "export-1" {
		t.Errorf("fn saw id %v", done.Result)
	}
}

func TestShutdown(t *testing.T) {
	r := NewRunner(nil, nil)
	job, _ := r.Submit(KindTranscribe, func(ctx context.Context, id string) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := r.Get(job.ID)
	if got.Status != StatusCanceled {
		t.Errorf("status after shutdown = %q, want canceled", got.Status)
	}
	if _, err := r.Submit(KindTranscribe, nil); err == nil {
		t.Error("submit after shutdown should fail")
	}
}

func TestFinishedJobsExpire(t *testing.T) {
	r := NewRunner(nil, nil)
	r.SetRetention(time.Minute)

	var offset atomic.Int64
	start := time.Now()
	r.now = func() time.Time { return start.Add(time.Duration(offset.Load())) }

	noop := func(ctx context.Context, id string) (interface{}, error) { return nil, nil }

	old, err := r.Submit(KindExport, noop)
	if err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, old.ID)

	block := make(chan struct{})
	defer close(block)
	running, err := r.Submit(KindTranscribe, func(ctx context.Context, id string) (interface{}, error) {
		<-block
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	offset.Store(int64(30 * time.Second))
	if _, err := r.Submit(KindExport, noop); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(old.ID); err != nil {
		t.Fatalf("job dropped before its retention ran out: %v", err)
	}

	offset.Store(int64(2 * time.Minute))
	if _, err := r.Submit(KindExport, noop); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(old.ID); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("expired job still visible: %v", err)
	}
	if _, err := r.Get(running.ID); err != nil {
		t.Errorf("unfinished job was dropped: %v", err)
	}
}
