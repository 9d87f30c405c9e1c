package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// Lint runs a stylesheet linter over the whole stream and reports its
// diagnostics. It never fails: violations, and a linter that cannot be
// started, are written to Out and logged as warnings. The stream passes
// through unchanged.
type Lint struct {
	Cmd    Command
	Out    io.Writer
	Logger logging.Logger
}

func (l *Lint) Name() string { return "stylelint" }

func (l *Lint) Transform(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	if len(files) == 0 {
		return files, nil
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	report, err := l.Cmd.With(append([]string{"--formatter", "string"}, paths...)...).Output(ctx, nil)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case err == nil:
		l.Logger.Debug(ctx, "Stylesheets passed lint", "files", len(files))
	case errors.Is(err, apperrors.ErrToolNotFound):
		l.Logger.Warn(ctx, err, "Linter unavailable, skipping lint")
	default:
		report = bytes.TrimSpace(report)
		if len(report) == 0 {
			report = []byte(err.Error())
		}
		if l.Out != nil {
			fmt.Fprintf(l.Out, "%s\n", report)
		}
		l.Logger.Warn(ctx, apperrors.NewLintError("stylesheets have lint violations"),
			"Lint reported problems", "files", len(files), "lines", strings.Count(string(report), "\n")+1)
	}

	return files, nil
}
