package pipeline

import (
	"context"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// Task collects files from its patterns, runs them through its steps in
// order and writes the result to its destination. Patterns are expanded on
// every Run, so files created after the task was defined are picked up.
//
//	pipeline.NewTask("styles", log).
//		Src(root, "src/scss/**/*.scss").
//		Pipe(sass, prefix).
//		Dest("dist/style")
type Task struct {
	name     string
	root     string
	patterns []string
	steps    []Step
	dest     *Dest
	logger   logging.Logger
}

// NewTask creates an empty task.
func NewTask(name string, logger logging.Logger) *Task {
	return &Task{
		name:   name,
		root:   ".",
		logger: logger.WithComponent("task"),
	}
}

// Src sets the project root and input patterns.
func (t *Task) Src(root string, patterns ...string) *Task {
	t.root = root
	t.patterns = append(t.patterns, patterns...)
	return t
}

// Pipe appends steps.
func (t *Task) Pipe(steps ...Step) *Task {
	t.steps = append(t.steps, steps...)
	return t
}

// Dest sets the output directory. A task without one discards its stream,
// which is what lint tasks want.
func (t *Task) Dest(dir string) *Task {
	t.dest = NewDest(dir)
	return t
}

func (t *Task) Name() string { return t.name }

// Patterns returns the input patterns.
func (t *Task) Patterns() []string { return t.patterns }

// Run executes the task once.
func (t *Task) Run(ctx context.Context) error {
	perf := logging.StartOperation(t.logger.With("task", t.name), t.name)

	files, err := Collect(t.root, t.patterns...)
	if err != nil {
		err = apperrors.Wrap(err, t.name, "src")
		perf.EndWithError(ctx, err)
		return err
	}
	inputs := len(files)

	for _, step := range t.steps {
		if err := ctx.Err(); err != nil {
			perf.EndWithError(ctx, err)
			return err
		}

		files, err = step.Transform(ctx, files)
		if err != nil {
			err = apperrors.Wrap(err, t.name, step.Name())
			perf.EndWithError(ctx, err)
			return err
		}
	}

	written := 0
	if t.dest != nil {
		written, err = t.dest.Write(ctx, files)
		if err != nil {
			err = apperrors.Wrap(err, t.name, "dest")
			perf.EndWithError(ctx, err)
			return err
		}
	}

	perf.End(ctx, "inputs", inputs, "outputs", len(files), "written", written)
	return nil
}
