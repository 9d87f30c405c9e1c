package steps

import (
	"context"
	"fmt"
	"path/filepath"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// WriteSourceMaps emits every file's source map as a companion <name>.map
// next to it and links it with a sourceMappingURL comment. destDir is
// where the stream will be written; map sources are made relative to the
// map's final location so that browser devtools resolve them.
func WriteSourceMaps(destDir string) pipeline.Step {
	return pipeline.NewStep("sourcemaps", func(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		out := make([]*pipeline.File, 0, 2*len(files))
		for _, f := range files {
			if f.SourceMap == nil {
				out = append(out, f)
				continue
			}

			mapFile, err := companion(f, destDir)
			if err != nil {
				return nil, err
			}

			linked := f.Clone()
			linked.SourceMap = nil
			linked.Contents = append(linked.Contents, mappingComment(f.Ext(), filepath.Base(mapFile.Path))...)

			out = append(out, linked, mapFile)
		}
		return out, nil
	})
}

func companion(f *pipeline.File, destDir string) (*pipeline.File, error) {
	sm := *f.SourceMap
	sm.File = filepath.Base(f.Path)
	sm.Sources = make([]string, len(f.SourceMap.Sources))

	target, err := pipeline.SafeJoin(destDir, f.Rel())
	if err != nil {
		return nil, apperrors.NewIOError("PATH_ESCAPE", "source map target", err).WithFile(f.Path)
	}
	mapDir := filepath.Dir(target)

	for i, src := range f.SourceMap.Sources {
		rel, err := filepath.Rel(mapDir, src)
		if err != nil {
			rel = src
		}
		sm.Sources[i] = filepath.ToSlash(rel)
	}

	data, err := sm.Marshal()
	if err != nil {
		return nil, apperrors.NewTransformError("MAP_ENCODE", "encoding source map", err).WithFile(f.Path)
	}

	return &pipeline.File{
		Base:     f.Base,
		Path:     f.Path + ".map",
		Contents: data,
		Mode:     0o644,
	}, nil
}

func mappingComment(ext, name string) string {
	if ext == ".js" {
		return fmt.Sprintf("//# sourceMappingURL=%s\n", name)
	}
	return fmt.Sprintf("/*# sourceMappingURL=%s */\n", name)
}
