package steps

import (
	"bytes"
	"context"
	"sort"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// Concat joins every file of the stream, in path order, into a single file
// called name placed at the glob base of the first file. An empty stream
// stays empty.
func Concat(name string) pipeline.Step {
	return pipeline.NewStep("concat", func(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		if len(files) == 0 {
			return nil, nil
		}

		sorted := append([]*pipeline.File(nil), files...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Path < sorted[j].Path
		})

		var buf bytes.Buffer
		for i, f := range sorted {
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(f.Contents)
		}

		return []*pipeline.File{pipeline.NewFile(sorted[0].Base, name, buf.Bytes())}, nil
	})
}
