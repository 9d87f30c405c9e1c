package pipeline

import (
	"context"
	"strings"

	"github.com/sourcegraph/conc/pool"
)

// Runnable is anything the task graph can run: a Task, a group, or a plain
// function.
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
}

type parallel struct {
	children []Runnable
}

// Parallel runs all children concurrently and returns when every one of
// them has returned. A failing child does not cancel its siblings; all
// failures are joined into the returned error.
func Parallel(children ...Runnable) Runnable {
	return &parallel{children: children}
}

func (p *parallel) Name() string {
	return "parallel(" + names(p.children) + ")"
}

func (p *parallel) Run(ctx context.Context) error {
	wp := pool.New().WithErrors()
	for _, child := range p.children {
		child := child
		wp.Go(func() error {
			return child.Run(ctx)
		})
	}
	return wp.Wait()
}

type series struct {
	children []Runnable
}

// Series runs children one after another. The first failure stops the
// series and is returned as is.
func Series(children ...Runnable) Runnable {
	return &series{children: children}
}

func (s *series) Name() string {
	return "series(" + names(s.children) + ")"
}

func (s *series) Run(ctx context.Context) error {
	for _, child := range s.children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := child.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

type funcRunnable struct {
	name string
	fn   func(ctx context.Context) error
}

// Func adapts fn to a Runnable.
func Func(name string, fn func(ctx context.Context) error) Runnable {
	return &funcRunnable{name: name, fn: fn}
}

func (f *funcRunnable) Name() string { return f.name }

func (f *funcRunnable) Run(ctx context.Context) error { return f.fn(ctx) }

func names(rs []Runnable) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.Name()
	}
	return strings.Join(parts, ", ")
}
