package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

func TestConcatJoinsInPathOrder(t *testing.T) {
	files := []*pipeline.File{
		pipeline.NewFile("/p/src/js", "b.js", []byte("var b = 2;")),
		pipeline.NewFile("/p/src/js", "a.js", []byte("var a = 1;")),
	}

	out, err := Concat("global.min.js").Transform(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "global.min.js", out[0].Rel())
	assert.Equal(t, "var a = 1;\nvar b = 2;", string(out[0].Contents))
}

func TestConcatEmpty(t *testing.T) {
	out, err := Concat("global.min.js").Transform(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMinifier(t *testing.T) {
	m := NewMinifier()
	js := pipeline.NewFile("/b", "app.js", []byte("function add(first, second) {\n  return first + second;\n}\n"))
	css := pipeline.NewFile("/b", "a.css", []byte("body {\n  color: #ff0000;\n}\n"))
	css.SourceMap = &pipeline.SourceMap{Version: 3}
	txt := pipeline.NewFile("/b", "robots.txt", []byte("User-agent: *\n"))

	out, err := m.Transform(context.Background(), []*pipeline.File{js, css, txt})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Less(t, len(out[0].Contents), len(js.Contents))
	assert.NotContains(t, string(out[0].Contents), "\n  ")
	assert.Equal(t, "body{color:red}", string(out[1].Contents))
	assert.Nil(t, out[1].SourceMap)
	assert.Same(t, txt, out[2])
}

func TestMinifierRejectsBrokenScript(t *testing.T) {
	js := pipeline.NewFile("/b", "app.js", []byte("function ( {"))
	_, err := NewMinifier().Transform(context.Background(), []*pipeline.File{js})
	assert.Error(t, err)
}
