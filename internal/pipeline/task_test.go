package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func upper() Step {
	return Map("upper", func(ctx context.Context, f *File) (*File, error) {
		c := f.Clone()
		c.Contents = bytes.ToUpper(c.Contents)
		return c, nil
	})
}

func TestCollectUsesGlobBase(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/scss/main.scss", "a")
	writeFile(t, root, "src/scss/layout/_grid.scss", "b")
	writeFile(t, root, "src/js/app.js", "c")

	files, err := Collect(root, "src/scss/**/*.scss")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, filepath.FromSlash("layout/_grid.scss"), files[0].Rel())
	assert.Equal(t, "main.scss", files[1].Rel())
	assert.Equal(t, filepath.Join(root, "src", "scss"), files[0].Base)
}

func TestCollectMissingBaseIsEmpty(t *testing.T) {
	files, err := Collect(t.TempDir(), "src/assets/**/*", "robots.txt")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCollectDeduplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.html", "<p>")

	files, err := Collect(root, "src/*.html", "src/**/*.html")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("src/scss/a/b.scss", "src/scss/**/*.scss"))
	assert.True(t, Match("robots.txt", "robots.txt"))
	assert.False(t, Match("src/js/app.js", "src/scss/**/*.scss"))
	assert.Equal(t, "src/scss", GlobBase("src/scss/**/*.scss"))
	assert.Equal(t, ".", GlobBase("robots.txt"))
}

func TestTaskRunsStepsAndWrites(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a/one.txt", "one")
	out := filepath.Join(root, "dist", "text")

	task := NewTask("text", logging.Discard()).Src(root, "src/**/*.txt").Pipe(upper()).Dest(out)
	require.NoError(t, task.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(out, "a", "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ONE", string(data))
}

func TestTaskEnumeratesAtRunTime(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist")

	task := NewTask("html", logging.Discard()).Src(root, "src/*.html").Dest(out)
	writeFile(t, root, "src/late.html", "late")

	require.NoError(t, task.Run(context.Background()))
	assert.FileExists(t, filepath.Join(out, "late.html"))
}

func TestTaskCreatesEmptyDestination(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist", "assets")

	require.NoError(t, NewTask("assets", logging.Discard()).Src(root, "src/assets/**/*").Dest(out).Run(context.Background()))
	assert.DirExists(t, out)
}

func TestTaskRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/x.txt", "x")
	out := filepath.Join(root, "dist")

	escape := Map("escape", func(ctx context.Context, f *File) (*File, error) {
		c := f.Clone()
		c.Path = filepath.Join(f.Base, "..", "..", "evil.txt")
		return c, nil
	})

	err := NewTask("evil", logging.Discard()).Src(root, "src/*.txt").Pipe(escape).Dest(out).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPathEscape)
	assert.NoFileExists(t, filepath.Join(root, "evil.txt"))
}

func TestTaskWrapsStepFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.js", "x")
	cause := errors.New("unexpected token")

	failing := NewStep("minify", func(ctx context.Context, files []*File) ([]*File, error) {
		return nil, cause
	})
	err := NewTask("scripts", logging.Discard()).Src(root, "src/*.js").Pipe(failing).Run(context.Background())

	var pe *apperrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "scripts", pe.Task)
	assert.Equal(t, "minify", pe.Step)
	assert.ErrorIs(t, err, cause)
}

func TestDestSkipsUnchangedContent(t *testing.T) {
	out := t.TempDir()
	d := NewDest(out)
	f := NewFile("/src", "a.txt", []byte("same"))

	n, err := d.Write(context.Background(), []*File{f})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := os.Stat(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	past := info.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(out, "a.txt"), past, past))

	n, err = d.Write(context.Background(), []*File{f})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	info, err = os.Stat(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))

	// A fresh writer compares against the bytes on disk.
	n, err = NewDest(out).Write(context.Background(), []*File{f})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f2 := NewFile("/src", "a.txt", []byte("changed"))
	n, err = d.Write(context.Background(), []*File{f2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDestRestoresEditedOutput(t *testing.T) {
	out := t.TempDir()
	d := NewDest(out)
	f := NewFile("/src", "index.html", []byte("<p>built</p>"))

	_, err := d.Write(context.Background(), []*File{f})
	require.NoError(t, err)

	// same size, so only the modification time gives the edit away
	target := filepath.Join(out, "index.html")
	require.NoError(t, os.WriteFile(target, []byte("<p>EDITS</p>"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(target, later, later))

	n, err := d.Write(context.Background(), []*File{f})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "<p>built</p>", string(data))
}

func TestTaskLogsCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.js", "x")

	var logs bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "text", Output: &logs})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTask("scripts", logger).Src(root, "src/*.js").Pipe(upper()).Dest(t.TempDir()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, logs.String(), "Failed scripts")
}

func TestSafeJoin(t *testing.T) {
	dir := filepath.FromSlash("/out")

	p, err := SafeJoin(dir, filepath.FromSlash("a/b.css"))
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/out/a/b.css"), p)

	for _, rel := range []string{"", ".", "..", "../x", "a/../../x", filepath.FromSlash("/etc/passwd")} {
		_, err := SafeJoin(dir, rel)
		assert.ErrorIs(t, err, apperrors.ErrPathEscape, rel)
	}
}

func TestFilterOnlyTransformsMatches(t *testing.T) {
	files := []*File{
		NewFile("/b", "a.css", []byte("css")),
		NewFile("/b", "a.css.map", []byte("map")),
	}

	out, err := Filter(HasExt(".css"), upper()).Transform(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "map", string(out[0].Contents))
	assert.Equal(t, "CSS", string(out[1].Contents))
	assert.Equal(t, "css", string(files[0].Contents))
}

func TestWithExt(t *testing.T) {
	f := NewFile("/b", "x/main.scss", nil)
	assert.Equal(t, filepath.FromSlash("x/main.css"), f.WithExt(".css").Rel())
	assert.Equal(t, ".scss", f.Ext())
}
