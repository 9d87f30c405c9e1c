package steps

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

func postcss(withMap bool) Command {
	args := []string{"{in}"}
	if withMap {
		args = append(args, "--map")
	}
	return helperCommand("prefix", append(args, "--output", "{out}")...)
}

func TestAutoprefixContinuesSassMap(t *testing.T) {
	files := scssFixture(t, map[string]string{"main.scss": "a{display:flex}"})
	root := filepath.Dir(filepath.Dir(files[0].Base))
	dest := filepath.Join(root, "dist", "style")

	var err error
	stream := files
	for _, step := range []pipeline.Step{
		&Sass{Cmd: helperCommand("sass"), SourceMaps: true},
		Autoprefix(postcss(true)),
		WriteSourceMaps(dest),
	} {
		stream, err = step.Transform(context.Background(), stream)
		require.NoError(t, err, step.Name())
	}

	require.Len(t, stream, 2)
	css, mapFile := stream[0], stream[1]
	assert.Equal(t, "main.css", css.Rel())
	assert.True(t, strings.HasPrefix(string(css.Contents), "/* prefixed *//* compiled */a{display:flex}"))
	assert.Equal(t, 1, strings.Count(string(css.Contents), "sourceMappingURL"))
	assert.True(t, strings.HasSuffix(string(css.Contents), "/*# sourceMappingURL=main.css.map */\n"))

	assert.Equal(t, "main.css.map", mapFile.Rel())
	sm, err := pipeline.ParseSourceMap(mapFile.Contents)
	require.NoError(t, err)
	assert.Equal(t, "AACA", sm.Mappings, "map comes from the prefixer")
	assert.Equal(t, []string{"../../src/scss/main.scss"}, sm.Sources)
}

func TestAutoprefixKeepsMapWhenToolWritesNone(t *testing.T) {
	css := pipeline.NewFile("/b", "a.css", []byte("a{display:flex}"))
	css.SourceMap = &pipeline.SourceMap{Version: 3, Sources: []string{"/b/a.scss"}, Mappings: "AAAA"}

	out, err := Autoprefix(postcss(false)).Transform(context.Background(), []*pipeline.File{css})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "/* prefixed */a{display:flex}\n", string(out[0].Contents))
	require.NotNil(t, out[0].SourceMap)
	assert.Equal(t, "AAAA", out[0].SourceMap.Mappings)
}

func TestAutoprefixOverStdio(t *testing.T) {
	css := pipeline.NewFile("/b", "a.css", []byte("a{display:flex}"))
	css.SourceMap = &pipeline.SourceMap{Version: 3}
	other := pipeline.NewFile("/b", "a.txt", []byte("{}"))

	out, err := Autoprefix(helperCommand("upper")).Transform(context.Background(), []*pipeline.File{css, other})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "{}", string(out[0].Contents))
	assert.Equal(t, "A{DISPLAY:FLEX}", string(out[1].Contents))
	assert.NotNil(t, out[1].SourceMap)
}

func TestAutoprefixFailureNamesFile(t *testing.T) {
	css := pipeline.NewFile("/b", "a.css", []byte("a{"))

	_, err := Autoprefix(helperCommand("fail", "{in}", "{out}")).Transform(context.Background(), []*pipeline.File{css})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransformError(err))
	assert.Contains(t, err.Error(), "a.css")
}
