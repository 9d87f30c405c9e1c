package steps

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

//go:embed templates/iconfont.scss.tmpl
var defaultGlyphTemplate string

// GlyphFuture carries the metadata of one icon font run from the font
// builder to the template renderer. It resolves exactly once.
type GlyphFuture struct {
	once sync.Once
	done chan struct{}
	meta GlyphMetadata
	err  error
}

func NewGlyphFuture() *GlyphFuture {
	return &GlyphFuture{done: make(chan struct{})}
}

// Publish resolves the future with meta. Later calls are ignored.
func (f *GlyphFuture) Publish(meta GlyphMetadata) {
	f.once.Do(func() {
		f.meta = meta
		close(f.done)
	})
}

// Fail resolves the future without metadata. Later calls are ignored.
func (f *GlyphFuture) Fail(err error) {
	f.once.Do(func() {
		if err == nil {
			err = apperrors.ErrGlyphsNotReady
		}
		f.err = fmt.Errorf("%w: %v", apperrors.ErrGlyphsNotReady, err)
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is done.
func (f *GlyphFuture) Wait(ctx context.Context) (GlyphMetadata, error) {
	select {
	case <-f.done:
		return f.meta, f.err
	case <-ctx.Done():
		return GlyphMetadata{}, ctx.Err()
	}
}

// GlyphTemplate describes where the glyph stylesheet comes from and goes to.
type GlyphTemplate struct {
	// Path is the template file. When it does not exist the built-in
	// stylesheet template is used.
	Path string
	// DestDir receives the rendered file, named like the template.
	DestDir string
	// FontPath is prefixed to font file names in the rendered output.
	FontPath string
}

type glyphTemplateData struct {
	GlyphMetadata
	FontPath string
}

var cssFontFormats = map[string]string{
	"eot":   "embedded-opentype",
	"woff2": "woff2",
	"woff":  "woff",
	"ttf":   "truetype",
	"svg":   "svg",
}

var glyphFuncs = template.FuncMap{
	"fontFormat": func(ext string) string {
		if f, ok := cssFontFormats[ext]; ok {
			return f
		}
		return ext
	},
	"last": func(i int, list []string) bool {
		return i == len(list)-1
	},
}

// Render executes the template against meta.
func (gt GlyphTemplate) Render(meta GlyphMetadata) ([]byte, error) {
	src := defaultGlyphTemplate
	if data, err := os.ReadFile(gt.Path); err == nil {
		src = string(data)
	} else if !os.IsNotExist(err) {
		return nil, apperrors.NewIOError("TEMPLATE_READ", "reading glyph template", err).WithFile(gt.Path)
	}

	tmpl, err := template.New(filepath.Base(gt.Path)).Funcs(glyphFuncs).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, apperrors.NewTransformError("TEMPLATE_PARSE", "parsing glyph template", err).WithFile(gt.Path)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, glyphTemplateData{GlyphMetadata: meta, FontPath: gt.FontPath}); err != nil {
		return nil, apperrors.NewTransformError("TEMPLATE_EXEC", "rendering glyph template", err).WithFile(gt.Path)
	}
	return buf.Bytes(), nil
}

// RenderGlyphTemplate waits for the glyph metadata and writes the rendered
// template into gt.DestDir. If the font side failed the returned error
// wraps ErrGlyphsNotReady.
func RenderGlyphTemplate(ctx context.Context, glyphs *GlyphFuture, gt GlyphTemplate) error {
	meta, err := glyphs.Wait(ctx)
	if err != nil {
		return err
	}

	out, err := gt.Render(meta)
	if err != nil {
		return err
	}

	f := pipeline.NewFile(gt.DestDir, filepath.Base(gt.Path), out)
	_, err = pipeline.NewDest(gt.DestDir).Write(ctx, []*pipeline.File{f})
	return err
}
