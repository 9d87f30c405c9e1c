package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// uEA01-name.svg. Upper-case hex only, so names like uface-smile.svg stay
// plain names.
var codepointPrefix = regexp.MustCompile(`^u([0-9A-F]{4,6})-(.+)$`)

// Glyph is one icon of the generated font.
type Glyph struct {
	Name      string
	Codepoint rune
	// Unicode is the character the glyph is mapped to.
	Unicode string
}

// Hex is the upper-case hexadecimal codepoint, as used in CSS escapes.
func (g Glyph) Hex() string {
	return fmt.Sprintf("%X", g.Codepoint)
}

// GlyphMetadata describes a generated font. It exists for a single icon task
// run.
type GlyphMetadata struct {
	FontName string
	// FontDate is the generation time in milliseconds since the epoch.
	FontDate int64
	// Formats lists the font files produced, by extension.
	Formats []string
	Glyphs  []Glyph
}

// FontConverter produces a binary font format. ttf is converted from the SVG
// font; every other format from the ttf.
type FontConverter interface {
	Convert(ctx context.Context, format string, input []byte) ([]byte, error)
}

// CommandConverter converts with one external command per format.
type CommandConverter map[string]Command

func (c CommandConverter) Convert(ctx context.Context, format string, input []byte) ([]byte, error) {
	cmd, ok := c[format]
	if !ok || !cmd.Available() {
		return nil, apperrors.NewToolError(format+" converter", apperrors.ErrToolNotFound)
	}
	inExt := ".ttf"
	if format == "ttf" {
		inExt = ".svg"
	}
	return cmd.Filter(ctx, input, inExt, "."+format)
}

// IconFont turns a stream of glyph SVGs into font files.
type IconFont struct {
	FontName           string
	Formats            []string
	FontHeight         float64
	Normalize          bool
	CenterHorizontally bool
	StartCodepoint     rune
	// PrependUnicode renames unprefixed source files to uXXXX-name.svg so
	// their codepoint survives the next run.
	PrependUnicode bool
	// Builder lays the glyphs out into the SVG font.
	Builder FontBuilder
	// Converter produces the binary formats.
	Converter FontConverter
	// Glyphs, when set, receives the metadata of every Transform.
	Glyphs *GlyphFuture
	Logger logging.Logger
	Now    func() time.Time
}

func (ic *IconFont) Name() string { return "iconfont" }

// Transform emits the font files and publishes the metadata to Glyphs.
func (ic *IconFont) Transform(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	fonts, meta, err := ic.Generate(ctx, files)
	if ic.Glyphs != nil {
		if err != nil {
			ic.Glyphs.Fail(err)
		} else {
			ic.Glyphs.Publish(meta)
		}
	}
	return fonts, err
}

type sourceGlyph struct {
	file      *pipeline.File
	name      string
	codepoint rune
	prefixed  bool
}

// Generate builds the fonts for files. Zero glyphs produce no fonts and
// metadata without glyphs.
func (ic *IconFont) Generate(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, GlyphMetadata, error) {
	now := time.Now
	if ic.Now != nil {
		now = ic.Now
	}
	meta := GlyphMetadata{
		FontName: ic.FontName,
		FontDate: now().UnixMilli(),
		Glyphs:   []Glyph{},
	}

	sources, err := ic.assign(files)
	if err != nil {
		return nil, meta, err
	}
	if len(sources) == 0 {
		return nil, meta, nil
	}

	if ic.PrependUnicode {
		if err := ic.renameSources(ctx, sources); err != nil {
			return nil, meta, err
		}
	}

	glyphs := make([]GlyphSource, 0, len(sources))
	for _, src := range sources {
		g := Glyph{Name: src.name, Codepoint: src.codepoint, Unicode: string(src.codepoint)}
		glyphs = append(glyphs, GlyphSource{Glyph: g, Contents: src.file.Contents})
		meta.Glyphs = append(meta.Glyphs, g)
	}

	if ic.Builder == nil {
		return nil, meta, apperrors.NewToolError("svg font builder", apperrors.ErrToolNotFound)
	}
	height := ic.FontHeight
	if height <= 0 {
		height = 1000
	}
	svg, err := ic.Builder.BuildFont(ctx, FontOptions{
		FontName:           ic.FontName,
		Height:             height,
		Normalize:          ic.Normalize,
		CenterHorizontally: ic.CenterHorizontally,
	}, glyphs)
	if err != nil {
		return nil, meta, fmt.Errorf("building svg font: %w", err)
	}

	fonts, err := ic.convert(ctx, files[0].Base, svg)
	if err != nil {
		return nil, meta, err
	}
	for _, f := range fonts {
		meta.Formats = append(meta.Formats, strings.TrimPrefix(f.Ext(), "."))
	}

	return fonts, meta, nil
}

// assign gives every glyph a codepoint. Prefixed files keep theirs; the
// rest take the next free codepoint from StartCodepoint in name order. The
// result is sorted by codepoint.
func (ic *IconFont) assign(files []*pipeline.File) ([]sourceGlyph, error) {
	used := make(map[rune]string)
	taken := func(cp rune) bool {
		_, ok := used[cp]
		return ok
	}
	var sources, pending []sourceGlyph

	for _, f := range files {
		if f.Ext() != ".svg" {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
		src := sourceGlyph{file: f, name: norm.NFC.String(stem)}

		if m := codepointPrefix.FindStringSubmatch(stem); m != nil {
			cp, err := strconv.ParseInt(m[1], 16, 32)
			if err == nil && validCodepoint(rune(cp)) {
				src.codepoint = rune(cp)
				src.name = norm.NFC.String(m[2])
				src.prefixed = true
			}
		}

		if !src.prefixed {
			pending = append(pending, src)
			continue
		}
		if taken(src.codepoint) {
			other := used[src.codepoint]
			return nil, apperrors.NewTransformError("GLYPH_CODEPOINT_TAKEN",
				fmt.Sprintf("U+%X is claimed by both %s and %s", src.codepoint, other, src.name), nil).WithFile(f.Path)
		}
		used[src.codepoint] = src.name
		sources = append(sources, src)
	}

	sort.SliceStable(pending, func(i, j int) bool { return pending[i].name < pending[j].name })

	next := ic.StartCodepoint
	if next <= 0 {
		next = 0xEA01
	}
	for _, src := range pending {
		for taken(next) || !validCodepoint(next) {
			next++
		}
		src.codepoint = next
		used[next] = src.name
		sources = append(sources, src)
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].codepoint < sources[j].codepoint })
	return sources, nil
}

// validCodepoint rejects surrogates, which cannot be encoded as characters.
func validCodepoint(cp rune) bool {
	return cp > 0 && cp <= unicode.MaxRune && (cp < 0xD800 || cp > 0xDFFF)
}

func (ic *IconFont) renameSources(ctx context.Context, sources []sourceGlyph) error {
	for i := range sources {
		src := &sources[i]
		if src.prefixed {
			continue
		}
		renamed := filepath.Join(filepath.Dir(src.file.Path), fmt.Sprintf("u%X-%s.svg", src.codepoint, src.name))
		if err := os.Rename(src.file.Path, renamed); err != nil {
			return apperrors.NewIOError("GLYPH_RENAME", "recording codepoint in file name", err).WithFile(src.file.Path)
		}
		if ic.Logger != nil {
			ic.Logger.Debug(ctx, "Recorded glyph codepoint", "from", src.file.Path, "to", renamed)
		}
		src.prefixed = true
	}
	return nil
}

// convert produces one file per configured format, in the configured order.
func (ic *IconFont) convert(ctx context.Context, base string, svg []byte) ([]*pipeline.File, error) {
	var ttf []byte
	var fonts []*pipeline.File

	for _, format := range ic.Formats {
		var data []byte
		var err error

		switch format {
		case "svg":
			data = svg
		case "ttf":
			if ttf == nil {
				ttf, err = ic.convertWith(ctx, "ttf", svg)
			}
			data = ttf
		default:
			if ttf == nil {
				ttf, err = ic.convertWith(ctx, "ttf", svg)
			}
			if err == nil {
				data, err = ic.convertWith(ctx, format, ttf)
			}
		}
		if err != nil {
			return nil, err
		}

		fonts = append(fonts, pipeline.NewFile(base, ic.FontName+"."+format, data))
	}
	return fonts, nil
}

func (ic *IconFont) convertWith(ctx context.Context, format string, input []byte) ([]byte, error) {
	if ic.Converter == nil {
		return nil, apperrors.NewToolError(format+" converter", apperrors.ErrToolNotFound)
	}
	out, err := ic.Converter.Convert(ctx, format, input)
	if err != nil {
		return nil, fmt.Errorf("converting %s font: %w", format, err)
	}
	return out, nil
}
