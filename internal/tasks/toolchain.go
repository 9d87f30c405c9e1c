package tasks

import (
	"io"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
	"github.com/conneroisu/assetpipe/internal/steps"
)

// Toolchain holds the Transformation Steps that wrap external tools. Tests
// swap them for in-process fakes.
type Toolchain struct {
	// Compile turns .scss entry points into .css.
	Compile pipeline.Step
	// Prefix adds vendor prefixes. Nil skips prefixing.
	Prefix pipeline.Step
	// Minify shrinks stylesheets and scripts.
	Minify pipeline.Step
	// Lint reports stylesheet diagnostics and never fails.
	Lint pipeline.Step
	// Fonts lays the icon glyphs out into an SVG font.
	Fonts steps.FontBuilder
	// Converter produces the binary font formats.
	Converter steps.FontConverter
}

// DefaultToolchain builds the toolchain from cfg's tool command lines. Lint
// diagnostics are written to out.
func DefaultToolchain(cfg *config.Config, out io.Writer, logger logging.Logger) Toolchain {
	tc := Toolchain{
		Compile: &steps.Sass{
			Cmd:        steps.NewCommand(cfg.Tools.Sass),
			Style:      cfg.Styles.Style,
			SourceMaps: cfg.Styles.SourceMaps,
		},
		Minify: steps.NewMinifier(),
		Fonts:  steps.SVGFontCommand{Cmd: steps.NewCommand(cfg.Tools.SVGFont)},
		Lint: &steps.Lint{
			Cmd:    steps.NewCommand(cfg.Tools.Stylelint),
			Out:    out,
			Logger: logger.WithComponent("lint"),
		},
	}

	// An empty autoprefixer command turns prefixing off
	if prefix := steps.NewCommand(cfg.Tools.Autoprefixer); prefix.Available() {
		tc.Prefix = steps.Autoprefix(prefix)
	}

	converters := make(steps.CommandConverter, len(cfg.Tools.FontConverters))
	for format, argv := range cfg.Tools.FontConverters {
		converters[format] = steps.NewCommand(argv)
	}
	tc.Converter = converters

	return tc
}
