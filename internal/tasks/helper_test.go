package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
	"github.com/conneroisu/assetpipe/internal/steps"
)

const glyphSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M2 2 L22 2 L22 22 Z"/></svg>`

var fixedClock = func() time.Time { return time.UnixMilli(1700000000000) }

// fakeSass "compiles" by prefixing a marker, dropping partials like the
// real step.
func fakeSass() pipeline.Step {
	return pipeline.NewStep("sass", func(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		var out []*pipeline.File
		for _, f := range files {
			if strings.HasPrefix(filepath.Base(f.Path), "_") {
				continue
			}
			if strings.Contains(string(f.Contents), "@error") {
				return nil, fmt.Errorf("%s: @error in stylesheet", f.Path)
			}
			css := f.WithExt(".css")
			css.Contents = append([]byte("/* compiled */\n"), f.Contents...)
			out = append(out, css)
		}
		return out, nil
	})
}

type countingLint struct {
	runs  atomic.Int32
	files atomic.Int32
}

func (l *countingLint) Name() string { return "stylelint" }

func (l *countingLint) Transform(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	l.runs.Add(1)
	l.files.Add(int32(len(files)))
	return files, nil
}

type fakeConverter struct {
	mutex sync.Mutex
	calls []string
	fail  bool
}

func (c *fakeConverter) Convert(ctx context.Context, format string, input []byte) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.calls = append(c.calls, format)
	if c.fail {
		return nil, errors.New("converter crashed")
	}
	return []byte(fmt.Sprintf("%s font from %d bytes", format, len(input))), nil
}

// fakeFonts stands in for svgicons2svgfont.
type fakeFonts struct{}

func (fakeFonts) BuildFont(ctx context.Context, opts steps.FontOptions, glyphs []steps.GlyphSource) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<font id=%q>", opts.FontName)
	for _, g := range glyphs {
		fmt.Fprintf(&b, "<glyph glyph-name=%q unicode=\"&#x%s;\"/>", g.Name, g.Hex())
	}
	b.WriteString("</font>")
	return []byte(b.String()), nil
}

type fixture struct {
	cfg       *config.Config
	lint      *countingLint
	converter *fakeConverter
	graph     *Graph
}

// newFixture lays out a small project and a graph over it with a fake
// toolchain.
func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}

	cfg := config.Default(root)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = false
	cfg.Watch.Debounce = 50 * time.Millisecond

	f := &fixture{
		cfg:       cfg,
		lint:      &countingLint{},
		converter: &fakeConverter{},
	}
	tools := Toolchain{
		Compile:   fakeSass(),
		Minify:    steps.NewMinifier(),
		Lint:      f.lint,
		Fonts:     fakeFonts{},
		Converter: f.converter,
	}
	f.graph = NewGraph(cfg, tools, logging.Discard(), WithClock(fixedClock))

	return f
}

func defaultProject() map[string]string {
	return map[string]string{
		"src/index.html":                        "<html><body>home</body></html>",
		"src/about.html":                        "<html><body>about</body></html>",
		"src/assets/img/logo.txt":               "logo",
		"src/scss/main.scss":                    "@use 'vars';\nbody { color: red; }",
		"src/scss/_vars.scss":                   "$brand: red;",
		"src/js/a.js":                           "var first = 1;",
		"src/js/b.js":                           "function second() { return 2; }",
		"src/assets/svg/icons/uEA01-home.svg":   glyphSVG,
		"src/assets/svg/icons/uEA02-search.svg": glyphSVG,
		"robots.txt":                            "User-agent: *\nDisallow:\n",
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

type snapshotEntry struct {
	contents string
	modTime  time.Time
}

// snapshot records every file below dir by relative slash path.
func snapshot(t *testing.T, dir string) map[string]snapshotEntry {
	t.Helper()

	entries := make(map[string]snapshotEntry)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		entries[filepath.ToSlash(rel)] = snapshotEntry{contents: string(data), modTime: info.ModTime()}
		return nil
	})
	require.NoError(t, err)

	return entries
}
