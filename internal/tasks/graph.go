// Package tasks defines the named tasks of a project and how they compose
// into the default build-then-watch graph.
//
// Every task reads its inputs and output directories from an explicit
// *config.Config and gets its external tools from a Toolchain, so the same
// graph runs against real tools on the command line and fakes in tests.
package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/conneroisu/assetpipe/internal/config"
	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
	"github.com/conneroisu/assetpipe/internal/steps"
	"github.com/conneroisu/assetpipe/internal/watcher"
)

// Task names.
const (
	HTML    = "html"
	Assets  = "assets"
	Styles  = "styles"
	Scripts = "scripts"
	Icons   = "icons"
	Lint    = "lint"
	Robots  = "robots"
	Watch   = "watch"
)

// aliases maps the names used by older build files onto task names.
var aliases = map[string]string{
	"copyHTML":   HTML,
	"copyAss":    Assets,
	"scssTask":   Styles,
	"jsTask":     Scripts,
	"iconTask":   Icons,
	"lintScss":   Lint,
	"robotsTask": Robots,
	"watchTask":  Watch,
}

// Info describes a task for listings.
type Info struct {
	Name     string   `json:"name" yaml:"name"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Patterns []string `json:"patterns" yaml:"patterns"`
	Output   string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// Graph builds the project's tasks.
type Graph struct {
	config *config.Config
	tools  Toolchain
	logger logging.Logger
	now    func() time.Time
}

// Option configures a Graph.
type Option func(*Graph)

// WithClock sets the time source stamped into the icon font metadata.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// NewGraph creates the task graph for cfg.
func NewGraph(cfg *config.Config, tools Toolchain, logger logging.Logger, opts ...Option) *Graph {
	g := &Graph{
		config: cfg,
		tools:  tools,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Names returns every task name, sorted.
func (g *Graph) Names() []string {
	return []string{Assets, HTML, Icons, Lint, Robots, Scripts, Styles, Watch}
}

// Lookup resolves a task name or alias.
func (g *Graph) Lookup(name string) (pipeline.Runnable, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	switch name {
	case HTML:
		return g.html(), nil
	case Assets:
		return g.assets(), nil
	case Styles:
		return g.styles(), nil
	case Scripts:
		return g.scripts(), nil
	case Icons:
		return g.icons(), nil
	case Lint:
		return g.lint(), nil
	case Robots:
		return g.robots(), nil
	case Watch:
		return g.Watch(), nil
	}

	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTask, name)
}

// Build is every build task in parallel.
func (g *Graph) Build() pipeline.Runnable {
	return pipeline.Parallel(g.html(), g.assets(), g.styles(), g.scripts(), g.icons(), g.robots())
}

// Default builds once and then watches and serves.
func (g *Graph) Default() pipeline.Runnable {
	return pipeline.Series(g.Build(), g.Watch())
}

// Bindings are the watch bindings: page sources rebuild the page outputs
// and run lint, assets, icons and robots.txt rebuild themselves.
func (g *Graph) Bindings() []watcher.Binding {
	p := g.config.Paths

	return []watcher.Binding{
		{
			Name:     "pages",
			Patterns: []string{p.HTML, p.SCSS, p.JS},
			Group:    pipeline.Parallel(g.html(), g.styles(), g.scripts(), g.lint()),
		},
		{Name: Assets, Patterns: []string{p.Assets}, Group: g.assets()},
		{Name: Icons, Patterns: []string{p.Icons}, Group: g.icons()},
		{Name: Robots, Patterns: []string{p.Robots}, Group: g.robots()},
	}
}

// Describe lists every task with its aliases, patterns and output.
func (g *Graph) Describe() []Info {
	byTask := make(map[string][]string)
	for alias, name := range aliases {
		byTask[name] = append(byTask[name], alias)
	}

	rel := func(dir string) string {
		r, err := filepath.Rel(g.config.Root, dir)
		if err != nil {
			return dir
		}
		return filepath.ToSlash(r)
	}

	p := g.config.Paths
	infos := []Info{
		{Name: Assets, Patterns: []string{p.Assets}, Output: rel(g.config.OutputPath(g.config.Output.Assets))},
		{Name: HTML, Patterns: []string{p.HTML}, Output: rel(g.config.OutputPath(""))},
		{Name: Icons, Patterns: []string{p.Icons}, Output: rel(g.config.OutputPath(g.config.Output.Fonts))},
		{Name: Lint, Patterns: []string{p.Lint}},
		{Name: Robots, Patterns: []string{p.Robots}, Output: rel(g.config.OutputPath(""))},
		{Name: Scripts, Patterns: []string{p.JS}, Output: rel(g.config.OutputPath(g.config.Output.Scripts))},
		{Name: Styles, Patterns: []string{p.SCSS}, Output: rel(g.config.OutputPath(g.config.Output.Styles))},
		{Name: Watch, Patterns: []string{p.HTML, p.SCSS, p.JS, p.Assets, p.Icons, p.Robots}},
	}
	for i := range infos {
		infos[i].Aliases = byTask[infos[i].Name]
		sort.Strings(infos[i].Aliases)
	}

	return infos
}

func (g *Graph) task(name string) *pipeline.Task {
	return pipeline.NewTask(name, g.logger)
}

func (g *Graph) html() pipeline.Runnable {
	return g.task(HTML).
		Src(g.config.Root, g.config.Paths.HTML).
		Dest(g.config.OutputPath(""))
}

func (g *Graph) assets() pipeline.Runnable {
	return g.task(Assets).
		Src(g.config.Root, g.config.Paths.Assets).
		Dest(g.config.OutputPath(g.config.Output.Assets))
}

func (g *Graph) styles() pipeline.Runnable {
	dest := g.config.OutputPath(g.config.Output.Styles)

	t := g.task(Styles).
		Src(g.config.Root, g.config.Paths.SCSS).
		Pipe(g.tools.Compile)
	if g.tools.Prefix != nil {
		t.Pipe(g.tools.Prefix)
	}
	if g.config.Styles.Minify && g.tools.Minify != nil {
		t.Pipe(g.tools.Minify)
	}
	if g.config.Styles.SourceMaps {
		t.Pipe(steps.WriteSourceMaps(dest))
	}

	return t.Dest(dest)
}

func (g *Graph) scripts() pipeline.Runnable {
	t := g.task(Scripts).
		Src(g.config.Root, g.config.Paths.JS).
		Pipe(steps.Concat(g.config.Scripts.Bundle))
	if g.config.Scripts.Minify && g.tools.Minify != nil {
		t.Pipe(g.tools.Minify)
	}

	return t.Dest(g.config.OutputPath(g.config.Output.Scripts))
}

func (g *Graph) lint() pipeline.Runnable {
	return g.task(Lint).
		Src(g.config.Root, g.config.Paths.Lint).
		Pipe(g.tools.Lint)
}

func (g *Graph) robots() pipeline.Runnable {
	return g.task(Robots).
		Src(g.config.Root, g.config.Paths.Robots).
		Dest(g.config.OutputPath(""))
}

// Watch serves the output directory and re-runs bindings on change until
// ctx is cancelled.
func (g *Graph) Watch() pipeline.Runnable {
	return pipeline.Func(Watch, func(ctx context.Context) error {
		return g.watch(ctx)
	})
}
