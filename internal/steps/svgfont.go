package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

// FontOptions controls how glyphs are laid out in the SVG font.
type FontOptions struct {
	FontName           string
	Height             float64
	Normalize          bool
	CenterHorizontally bool
}

// GlyphSource is a glyph with its codepoint already assigned.
type GlyphSource struct {
	Glyph
	Contents []byte
}

// FontBuilder lays glyph SVGs out into an SVG font.
type FontBuilder interface {
	BuildFont(ctx context.Context, opts FontOptions, glyphs []GlyphSource) ([]byte, error)
}

// SVGFontCommand builds the SVG font with svgicons2svgfont. Glyphs are
// staged as uXXXX-name.svg so the tool takes the codepoints from the file
// names instead of assigning its own. Without an {out} placeholder the
// font is read from stdout.
type SVGFontCommand struct {
	Cmd Command
}

func (b SVGFontCommand) BuildFont(ctx context.Context, opts FontOptions, glyphs []GlyphSource) ([]byte, error) {
	if !b.Cmd.Available() {
		return nil, apperrors.NewToolError("svg font builder", apperrors.ErrToolNotFound)
	}

	tmp, err := os.MkdirTemp("", "assetpipe-glyphs-*")
	if err != nil {
		return nil, apperrors.NewIOError("TEMP_FAILED", "creating temporary directory", err)
	}
	defer os.RemoveAll(tmp)

	args := []string{"--fontname", opts.FontName}
	if opts.Height > 0 {
		args = append(args, "--height", strconv.FormatFloat(opts.Height, 'f', -1, 64))
	}
	if opts.Normalize {
		args = append(args, "--normalize")
	}
	if opts.CenterHorizontally {
		args = append(args, "--centerhorizontally")
	}

	for _, g := range glyphs {
		staged := filepath.Join(tmp, fmt.Sprintf("u%s-%s.svg", g.Hex(), g.Name))
		if err := os.WriteFile(staged, g.Contents, 0o644); err != nil {
			return nil, apperrors.NewIOError("TEMP_FAILED", "staging glyph", err)
		}
		args = append(args, staged)
	}

	cmd := b.Cmd.With(args...)
	out := filepath.Join(tmp, opts.FontName+".svg")
	stdout, err := cmd.run(ctx, cmd.expand("", out), nil)
	if err != nil {
		return nil, err
	}
	if !cmd.usesFiles() {
		return stdout, nil
	}

	font, err := os.ReadFile(out)
	if err != nil {
		return nil, apperrors.NewTransformError("TOOL_NO_OUTPUT", b.Cmd.Path+" produced no font", err)
	}
	return font, nil
}
