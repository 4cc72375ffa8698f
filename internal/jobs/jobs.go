// Package jobs runs transcriptions and exports off the request path and
// tracks their status until a client collects the result.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/logging"
)

type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindExport     Kind = "export"
)

// Status represents the lifecycle stage of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Job is a copy of a job's state at the time it was read.
type Job struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	SessionID  string      `json:"session_id,omitempty"`
	Status     Status      `json:"status"`
	Stage      string      `json:"stage,omitempty"`
	ErrorKind  errs.Kind   `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Func does the work of a job. id is the job's own id, for SetStage.
type Func func(ctx context.Context, id string) (interface{}, error)

type Option func(*entry)

// use id instead of a generated one
func WithID(id string) Option {
	return func(e *entry) { e.job.ID = id }
}

func WithSession(sessionID string) Option {
	return func(e *entry) { e.job.SessionID = sessionID }
}

type entry struct {
	job      Job
	cancel   context.CancelFunc
	canceled bool
	done     chan struct{}
}

// how long a finished job stays visible when no retention is set
const DefaultRetention = time.Hour

type Runner struct {
	log       *logging.Logger
	retention time.Duration
	now       func() time.Time

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	limits map[Kind]chan struct{}

	mu   sync.Mutex
	jobs map[string]*entry
}

// NewRunner bounds how many jobs of each kind run at once; kinds missing
// from limits run one at a time.
func NewRunner(limits map[Kind]int, log *logging.Logger) *Runner {
	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		log:       logging.OrNop(log),
		retention: DefaultRetention,
		now:       time.Now,
		ctx:       ctx,
		stop:      stop,
		limits:    make(map[Kind]chan struct{}),
		jobs:      make(map[string]*entry),
	}
	for kind, n := range limits {
		if n <= 0 {
			n = 1
		}
		r.limits[kind] = make(chan struct{}, n)
	}
	return r
}

// SetRetention sets how long finished jobs are kept before Submit drops
// them; zero or less keeps the default.
func (r *Runner) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultRetention
	}
	r.mu.Lock()
	r.retention = d
	r.mu.Unlock()
}

// drops finished jobs older than the retention; r.mu must be held
func (r *Runner) prune() {
	cutoff := r.now().Add(-r.retention)
	for id, e := range r.jobs {
		if e.job.Status.Done() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

func (r *Runner) sem(kind Kind) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.limits[kind]
	if !ok {
		s = make(chan struct{}, 1)
		r.limits[kind] = s
	}
	return s
}

// Submit queues fn and returns immediately.
func (r *Runner) Submit(kind Kind, fn Func, opts ...Option) (Job, error) {
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    StatusQueued,
			CreatedAt: r.now().UTC(),
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, cancel := context.WithCancel(r.ctx)
	e.cancel = cancel

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		cancel()
		return Job{}, fmt.Errorf("job runner is shut down")
	}
	r.prune()
	if _, exists := r.jobs[e.job.ID]; exists {
		r.mu.Unlock()
		cancel()
		return Job{}, fmt.Errorf("job %s already exists", e.job.ID)
	}
	r.jobs[e.job.ID] = e
	snapshot := e.job
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, e, fn)

	r.log.Debugw("job queued", "job", snapshot.ID, "kind", kind, "session", snapshot.SessionID)
	return snapshot, nil
}

func (r *Runner) run(ctx context.Context, e *entry, fn Func) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	sem := r.sem(e.job.Kind)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		r.finish(e, nil, ctx.Err())
		return
	}
	defer func() { <-sem }()

	r.mu.Lock()
	now := r.now().UTC()
	e.job.Status = StatusRunning
	e.job.StartedAt = &now
	r.mu.Unlock()

	result, err := r.call(ctx, e.job.ID, fn)
	r.finish(e, result, err)
}

func (r *Runner) call(ctx context.Context, id string, fn Func) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errs.Errorf(errs.KindUnknown, "run job", "panic: %v", p)
		}
	}()
	return fn(ctx, id)
}

func (r *Runner) finish(e *entry, result interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	e.job.FinishedAt = &now
	log := r.log.With("job", e.job.ID, "kind", e.job.Kind)

	switch {
	case err == nil:
		e.job.Status = StatusSucceeded
		e.job.Result = result
		log.Infow("job succeeded")
	case e.canceled || (errors.Is(err, context.Canceled) && r.ctx.Err() != nil):
		e.job.Status = StatusCanceled
		e.job.ErrorKind = errs.KindCanceled
		e.job.Message = errs.Message(errs.KindCanceled)
		e.job.Detail = err.Error()
		log.Infow("job canceled")
	default:
		kind := errs.KindOf(err)
		e.job.Status = StatusFailed
		e.job.ErrorKind = kind
		e.job.Message = errs.Message(kind)
		e.job.Detail = err.Error()
		log.Warnw("job failed", "error_kind", kind, "error", err)
	}
}

func (r *Runner) lookup(op, id string) (*entry, error) {
	e, ok := r.jobs[id]
	if !ok {
		return nil, errs.Errorf(errs.KindNotFound, op, "job %q not found", id)
	}
	return e, nil
}

func (r *Runner) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup("get job", id)
	if err != nil {
		return Job{}, err
	}
	return e.job, nil
}

// jobs in submission order
func (r *Runner) List() []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// blocks until the job finishes or ctx is done
func (r *Runner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	e, err := r.lookup("wait job", id)
	r.mu.Unlock()
	if err != nil {
		return Job{}, err
	}

	select {
	case <-e.done:
		return r.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Cancel stops a queued or running job. Finished jobs are left as they are.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	e, err := r.lookup("cancel job", id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if e.job.Status.Done() {
		r.mu.Unlock()
		return nil
	}
	e.canceled = true
	r.mu.Unlock()

	e.cancel()
	r.log.Infow("job cancel requested", "job", id)
	return nil
}

// records progress, e.g. a pipeline state, on a running job
func (r *Runner) SetStage(id, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok && !e.job.Status.Done() {
		e.job.Stage = stage
	}
}

// Shutdown cancels every job and waits for them to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
