package tasks

import (
	"context"
	"errors"
	"path/filepath"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
	"github.com/conneroisu/assetpipe/internal/steps"
)

// iconsTask builds the icon font and, concurrently, the glyph stylesheet.
// The two halves share a GlyphFuture that lives for one Run.
type iconsTask struct {
	g *Graph
}

func (g *Graph) icons() pipeline.Runnable {
	return &iconsTask{g: g}
}

func (t *iconsTask) Name() string { return Icons }

func (t *iconsTask) Run(ctx context.Context) error {
	cfg := t.g.config
	glyphs := steps.NewGlyphFuture()

	font := &steps.IconFont{
		FontName:           cfg.Icons.FontName,
		Formats:            cfg.Icons.Formats,
		FontHeight:         cfg.Icons.FontHeight,
		Normalize:          cfg.Icons.Normalize,
		CenterHorizontally: cfg.Icons.CenterHorizontally,
		StartCodepoint:     rune(cfg.Icons.StartCodepoint),
		PrependUnicode:     cfg.Icons.PrependUnicode,
		Builder:            t.g.tools.Fonts,
		Converter:          t.g.tools.Converter,
		Glyphs:             glyphs,
		Logger:             t.g.logger.WithComponent("iconfont"),
		Now:                t.g.now,
	}

	fontTask := pipeline.NewTask(Icons+":font", t.g.logger).
		Src(cfg.Root, cfg.Paths.Icons).
		Pipe(font).
		Dest(cfg.OutputPath(cfg.Output.Fonts))

	fonts := pipeline.Func(Icons+":font", func(ctx context.Context) error {
		err := fontTask.Run(ctx)
		// Unblocks the template half when the font task failed before
		// the font step ran; a no-op once metadata was published.
		glyphs.Fail(err)
		return err
	})

	template := steps.GlyphTemplate{
		Path:     cfg.Abs(cfg.Paths.IconsTemplate),
		DestDir:  cfg.Abs(cfg.Icons.TemplateDest),
		FontPath: t.fontPath(),
	}

	stylesheet := pipeline.Func(Icons+":template", func(ctx context.Context) error {
		err := steps.RenderGlyphTemplate(ctx, glyphs, template)
		if errors.Is(err, apperrors.ErrGlyphsNotReady) {
			// reported by the font half
			return nil
		}
		return apperrors.Wrap(err, Icons+":template", "template")
	})

	return pipeline.Parallel(fonts, stylesheet).Run(ctx)
}

// fontPath is the font directory as seen from the compiled stylesheets.
func (t *iconsTask) fontPath() string {
	cfg := t.g.config
	rel, err := filepath.Rel(cfg.OutputPath(cfg.Output.Styles), cfg.OutputPath(cfg.Output.Fonts))
	if err != nil {
		return ""
	}

	return filepath.ToSlash(rel) + "/"
}
