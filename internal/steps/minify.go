package steps

import (
	"context"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var mediaTypes = map[string]string{
	".css": "text/css",
	".js":  "application/javascript",
}

// Minifier minifies stylesheets and scripts in-process. Other files pass
// through untouched.
type Minifier struct {
	m *minify.M
}

// NewMinifier registers the CSS and JS minifiers.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return &Minifier{m: m}
}

func (mn *Minifier) Name() string { return "minify" }

func (mn *Minifier) Transform(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	out := make([]*pipeline.File, 0, len(files))
	for _, f := range files {
		mediatype, ok := mediaTypes[f.Ext()]
		if !ok {
			out = append(out, f)
			continue
		}

		minified, err := mn.m.Bytes(mediatype, f.Contents)
		if err != nil {
			return nil, apperrors.NewTransformError("MINIFY_FAILED", "minifying "+mediatype, err).WithFile(f.Path)
		}

		next := f.Clone()
		next.Contents = minified
		// Offsets moved; an upstream map no longer describes the output.
		next.SourceMap = nil
		out = append(out, next)
	}
	return out, nil
}
