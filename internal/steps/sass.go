package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var sourceMappingURL = regexp.MustCompile(`(?m)\n*/\*# sourceMappingURL=[^*]*\*/\s*$`)

// Sass compiles .scss entry points with the sass CLI. Partials (files whose
// name starts with an underscore) are only reachable through @use and are
// dropped from the stream.
type Sass struct {
	Cmd Command
	// Style is expanded or compressed.
	Style      string
	SourceMaps bool
}

func (s *Sass) Name() string { return "sass" }

func (s *Sass) Transform(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	out := make([]*pipeline.File, 0, len(files))
	for _, f := range files {
		if strings.HasPrefix(filepath.Base(f.Path), "_") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		compiled, err := s.compile(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

func (s *Sass) compile(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
	tmp, err := os.MkdirTemp("", "assetpipe-sass-*")
	if err != nil {
		return nil, apperrors.NewIOError("TEMP_FAILED", "creating temporary directory", err)
	}
	defer os.RemoveAll(tmp)

	target := filepath.Join(tmp, "out.css")

	style := s.Style
	if style == "" {
		style = "compressed"
	}
	args := []string{
		"--style=" + style,
		"--load-path=" + f.Base,
		"--no-error-css",
	}
	if s.SourceMaps {
		args = append(args, "--source-map", "--embed-sources")
	} else {
		args = append(args, "--no-source-map")
	}
	args = append(args, f.Path, target)

	if _, err := s.Cmd.With(args...).Output(ctx, nil); err != nil {
		return nil, withFile(err, f.Path)
	}

	css, err := os.ReadFile(target)
	if err != nil {
		return nil, apperrors.NewTransformError("SASS_NO_OUTPUT", "sass wrote no stylesheet", err).WithFile(f.Path)
	}

	result := f.WithExt(".css")
	result.Contents = stripMappingURL(css)
	result.SourceMap = nil

	if s.SourceMaps {
		data, err := os.ReadFile(target + ".map")
		if err != nil {
			return nil, apperrors.NewTransformError("SASS_NO_MAP", "sass wrote no source map", err).WithFile(f.Path)
		}
		sm, err := pipeline.ParseSourceMap(data)
		if err != nil {
			return nil, apperrors.NewTransformError("SASS_BAD_MAP", "reading sass source map", err).WithFile(f.Path)
		}
		absoluteSources(sm, tmp)
		result.SourceMap = sm
	}

	return result, nil
}

// stripMappingURL drops a trailing sourceMappingURL comment. The link is
// added back by WriteSourceMaps once the map has its final name.
func stripMappingURL(css []byte) []byte {
	css = sourceMappingURL.ReplaceAll(css, []byte("\n"))
	return append(bytes.TrimRight(css, "\n"), '\n')
}

// absoluteSources rewrites map sources relative to mapDir or as file: URLs
// into absolute OS paths.
func absoluteSources(sm *pipeline.SourceMap, mapDir string) {
	root := sm.SourceRoot
	sm.SourceRoot = ""
	for i, src := range sm.Sources {
		if strings.HasPrefix(src, "file:") {
			if u, err := url.Parse(src); err == nil {
				sm.Sources[i] = filepath.FromSlash(u.Path)
				continue
			}
		}
		p := filepath.FromSlash(root + src)
		if !filepath.IsAbs(p) {
			p = filepath.Join(mapDir, p)
		}
		sm.Sources[i] = filepath.Clean(p)
	}
}

func withFile(err error, path string) error {
	var pe *apperrors.PipelineError
	if errors.As(err, &pe) {
		if pe.FilePath == "" {
			pe.WithFile(path)
		}
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}
