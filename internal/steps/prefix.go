package steps

import (
	"context"
	"os"
	"path/filepath"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// Autoprefix pipes stylesheets through a vendor-prefixing command such as
// `postcss {in} --use autoprefixer --map --output {out}`. Non-CSS files
// pass through.
//
// With {in} and {out} placeholders an incoming map is written next to {in}
// and linked from it, so postcss continues it, and the result is read back
// from {out}.map. When the tool writes no map, or reads stdin, the
// incoming map is kept.
func Autoprefix(cmd Command) pipeline.Step {
	prefix := pipeline.Map("autoprefixer", func(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
		css, sm, err := prefixCSS(ctx, cmd, f)
		if err != nil {
			return nil, withFile(err, f.Path)
		}
		next := f.Clone()
		next.Contents = css
		if sm != nil {
			next.SourceMap = sm
		}
		return next, nil
	})
	return pipeline.Filter(pipeline.HasExt(".css"), prefix)
}

// prefixCSS returns the prefixed stylesheet and its new map, or a nil map
// when the incoming one still applies.
func prefixCSS(ctx context.Context, cmd Command, f *pipeline.File) ([]byte, *pipeline.SourceMap, error) {
	if !cmd.usesFiles() {
		out, err := cmd.Filter(ctx, f.Contents, ".css", ".css")
		return out, nil, err
	}

	tmp, err := os.MkdirTemp("", "assetpipe-prefix-*")
	if err != nil {
		return nil, nil, apperrors.NewIOError("TEMP_FAILED", "creating temporary directory", err)
	}
	defer os.RemoveAll(tmp)

	in := filepath.Join(tmp, "in.css")
	out := filepath.Join(tmp, "out.css")

	input := append([]byte(nil), f.Contents...)
	if f.SourceMap != nil {
		data, err := f.SourceMap.Marshal()
		if err != nil {
			return nil, nil, apperrors.NewTransformError("MAP_ENCODE", "encoding source map", err)
		}
		if err := os.WriteFile(in+".map", data, 0o644); err != nil {
			return nil, nil, apperrors.NewIOError("TEMP_FAILED", "writing source map", err)
		}
		input = append(input, mappingComment(".css", filepath.Base(in)+".map")...)
	}
	if err := os.WriteFile(in, input, 0o644); err != nil {
		return nil, nil, apperrors.NewIOError("TEMP_FAILED", "writing tool input", err)
	}

	if _, err := cmd.run(ctx, cmd.expand(in, out), nil); err != nil {
		return nil, nil, err
	}

	css, err := os.ReadFile(out)
	if err != nil {
		return nil, nil, apperrors.NewTransformError("TOOL_NO_OUTPUT", cmd.Path+" produced no output", err)
	}
	css = stripMappingURL(css)

	data, err := os.ReadFile(out + ".map")
	if err != nil {
		return css, nil, nil
	}
	sm, err := pipeline.ParseSourceMap(data)
	if err != nil {
		return nil, nil, apperrors.NewTransformError("PREFIX_BAD_MAP", "reading autoprefixer source map", err)
	}
	absoluteSources(sm, tmp)
	return css, sm, nil
}
