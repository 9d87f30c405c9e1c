package watcher

import (
	"context"
	"sync"

	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// Notifier is told about the outcome of every watch-triggered run.
type Notifier interface {
	// Reload is called after a run succeeded.
	Reload(ctx context.Context)
	// BuildFailed is called instead of Reload after a run failed.
	BuildFailed(ctx context.Context, err error)
}

// Binding re-runs Group whenever a file matching one of Patterns changes.
// Patterns are relative to the watcher root.
type Binding struct {
	Name     string
	Patterns []string
	Group    pipeline.Runnable
}

// Matches reports whether the root-relative path rel is covered.
func (b Binding) Matches(rel string) bool {
	return pipeline.Match(rel, b.Patterns...)
}

// runner serializes the runs of one binding. A trigger during a run marks
// the binding dirty, which buys exactly one follow-up run.
type runner struct {
	binding  Binding
	notifier Notifier
	logger   logging.Logger

	mutex   sync.Mutex
	running bool
	dirty   bool
	wg      sync.WaitGroup
}

func newRunner(b Binding, n Notifier, logger logging.Logger) *runner {
	return &runner{
		binding:  b,
		notifier: n,
		logger:   logger.With("binding", b.Name),
	}
}

func (r *runner) trigger(ctx context.Context) {
	r.mutex.Lock()
	if r.running {
		r.dirty = true
		r.mutex.Unlock()
		return
	}
	r.running = true
	r.wg.Add(1)
	r.mutex.Unlock()

	go r.loop(ctx)
}

func (r *runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		r.runOnce(ctx)

		r.mutex.Lock()
		if r.dirty && ctx.Err() == nil {
			r.dirty = false
			r.mutex.Unlock()
			continue
		}
		r.running = false
		r.dirty = false
		r.mutex.Unlock()
		return
	}
}

func (r *runner) runOnce(ctx context.Context) {
	perf := logging.StartOperation(r.logger, "rebuild "+r.binding.Name)

	err := r.binding.Group.Run(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		perf.EndWithError(ctx, err)
		if r.notifier != nil {
			r.notifier.BuildFailed(ctx, err)
		}
		return
	}

	perf.End(ctx)
	if r.notifier != nil {
		r.notifier.Reload(ctx)
	}
}

// wait blocks until no run is in flight.
func (r *runner) wait() {
	r.wg.Wait()
}
