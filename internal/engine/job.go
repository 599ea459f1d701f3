// Package engine is the concurrent batch-highlighting core: per-file
// cancellable jobs and the coordinator that fans a request out over the
// worker pool and reassembles a fully-accounted-for response.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/highlight"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/registry"
)

// State is a job's position in its lifecycle.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one file: rendered lines on success,
// a typed failure otherwise.
type Outcome struct {
	Ident    uint16
	Filename string
	Language language.ID
	Lines    []string
	Err      *errors.FileError
}

// DocRenderer converts a highlight event stream into output lines.
// *highlight.HTMLRenderer is the production implementation.
type DocRenderer interface {
	Render(src []byte, events []highlight.Event) []string
}

// Job is one file's unit of cancellable work. It borrows the file's
// contents from the request buffer; the coordinator keeps that buffer
// alive until every job of the batch is terminal.
type Job struct {
	ident    uint16
	filename string
	lang     language.ID
	contents []byte
	opts     highlight.Options

	entry    *registry.Entry
	resolver registry.Resolver
	renderer DocRenderer

	deadline time.Time
	state    atomic.Int32
	outcome  Outcome
	done     chan struct{}
}

// NewJob builds a pending job. deadline is absolute wall-clock time and is
// independent of every other job in the batch.
func NewJob(ident uint16, filename string, lang language.ID, contents []byte, opts highlight.Options,
	entry *registry.Entry, resolver registry.Resolver, renderer DocRenderer, deadline time.Time) *Job {
	return &Job{
		ident:    ident,
		filename: filename,
		lang:     lang,
		contents: contents,
		opts:     opts,
		entry:    entry,
		resolver: resolver,
		renderer: renderer,
		deadline: deadline,
		done:     make(chan struct{}),
	}
}

// Deadline reports the job's wall-clock deadline.
func (j *Job) Deadline() time.Time { return j.deadline }

// State reports the job's current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Outcome returns the terminal result. Only valid after Done is closed.
func (j *Job) Outcome() Outcome { return j.outcome }

// Run drives the renderer to completion or abandonment. Panics inside the
// highlighting traversal are caught here and downgraded to an internal
// failure so they can never take down the worker or sibling jobs.
func (j *Job) Run() {
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			j.finish(StateFailed, j.failure(errors.Recovered(r)))
		}
	}()

	ctx, cancel := context.WithDeadline(context.Background(), j.deadline)
	defer cancel()

	events, err := highlight.Highlight(ctx, j.contents, j.entry, j.resolver, j.opts)
	if err != nil {
		var fe *errors.FileError
		if !errors.As(err, &fe) {
			fe = errors.Internal("highlighting failed", err)
		}
		state := StateFailed
		if fe.Kind == errors.KindTimedOut || fe.Kind == errors.KindCancelled {
			state = StateCancelled
		}
		j.finish(state, j.failure(fe))
		return
	}

	j.finish(StateCompleted, Outcome{
		Ident:    j.ident,
		Filename: j.filename,
		Language: j.lang,
		Lines:    j.renderer.Render(j.contents, events),
	})
}

// Expire marks a job that sat in the queue past its deadline. It yields a
// timedOut failure without the job ever running.
func (j *Job) Expire() {
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateCancelled)) {
		return
	}
	j.outcome = j.failure(errors.TimedOut("deadline expired while queued"))
	close(j.done)
}

// Abort marks a job cancelled for a reason other than its deadline, such
// as pool shutdown.
func (j *Job) Abort() {
	if !j.state.CompareAndSwap(int32(StatePending), int32(StateCancelled)) {
		return
	}
	j.outcome = j.failure(errors.Cancelled("job aborted before running"))
	close(j.done)
}

func (j *Job) finish(state State, out Outcome) {
	j.outcome = out
	j.state.Store(int32(state))
	close(j.done)
}

func (j *Job) failure(err *errors.FileError) Outcome {
	return Outcome{Ident: j.ident, Filename: j.filename, Language: j.lang, Err: err}
}
