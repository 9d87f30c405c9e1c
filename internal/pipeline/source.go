package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

// GlobBase returns the static directory prefix of a Path Pattern, in slash
// form. Output paths are computed relative to it.
func GlobBase(pattern string) string {
	base, _ := doublestar.SplitPattern(path.Clean(filepath.ToSlash(pattern)))
	return base
}

// Match reports whether the slash-separated, root-relative path rel matches
// any of the patterns.
func Match(rel string, patterns ...string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(path.Clean(filepath.ToSlash(p)), rel); ok {
			return true
		}
	}
	return false
}

// Collect reads every regular file below root matching patterns. Patterns
// that match nothing, including ones whose base directory does not exist,
// contribute no files. The result is sorted by path and free of duplicates.
func Collect(root string, patterns ...string) ([]*File, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var files []*File

	for _, pattern := range patterns {
		pattern = path.Clean(filepath.ToSlash(pattern))
		base := GlobBase(pattern)

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, apperrors.NewIOError("GLOB_FAILED", fmt.Sprintf("expanding %q", pattern), err)
		}

		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true

			f, err := readFile(fsys, root, base, m)
			if errors.Is(err, fs.ErrNotExist) {
				// removed or renamed since the glob ran
				continue
			}
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

func readFile(fsys fs.FS, root, base, name string) (*File, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, apperrors.NewIOError("READ_FAILED", "stat", err).WithFile(name)
	}
	contents, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, apperrors.NewIOError("READ_FAILED", "read", err).WithFile(name)
	}

	return &File{
		Base:     filepath.Join(root, filepath.FromSlash(base)),
		Path:     filepath.Join(root, filepath.FromSlash(name)),
		Contents: contents,
		Mode:     info.Mode().Perm(),
	}, nil
}
