package pipeline

import (
	"context"
)

// Step is a Transformation Step: it consumes the whole stream produced by
// the previous step and returns the next one. Steps must not modify the
// files they are given in place; they return new or cloned files.
type Step interface {
	Name() string
	Transform(ctx context.Context, files []*File) ([]*File, error)
}

// StepFunc adapts a function to a Step.
type StepFunc func(ctx context.Context, files []*File) ([]*File, error)

type funcStep struct {
	name string
	fn   StepFunc
}

// NewStep wraps fn as a named Step.
func NewStep(name string, fn StepFunc) Step {
	return &funcStep{name: name, fn: fn}
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Transform(ctx context.Context, files []*File) ([]*File, error) {
	return s.fn(ctx, files)
}

// Map returns a Step applying fn to each file in order. A nil result drops
// the file from the stream.
func Map(name string, fn func(ctx context.Context, f *File) (*File, error)) Step {
	return NewStep(name, func(ctx context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next, err := fn(ctx, f)
			if err != nil {
				return nil, err
			}
			if next != nil {
				out = append(out, next)
			}
		}
		return out, nil
	})
}

// Filter runs inner on the files matching match only. The other files pass
// through and keep their position at the front of the result.
func Filter(match func(*File) bool, inner Step) Step {
	return NewStep(inner.Name(), func(ctx context.Context, files []*File) ([]*File, error) {
		var selected, rest []*File
		for _, f := range files {
			if match(f) {
				selected = append(selected, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(selected) == 0 {
			return files, nil
		}

		transformed, err := inner.Transform(ctx, selected)
		if err != nil {
			return nil, err
		}
		return append(rest, transformed...), nil
	})
}

// HasExt matches files by extension.
func HasExt(exts ...string) func(*File) bool {
	return func(f *File) bool {
		ext := f.Ext()
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}
