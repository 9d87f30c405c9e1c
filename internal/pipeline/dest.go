package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

// Dest writes streams below an output directory. It remembers the
// fingerprint of everything it wrote, and skips a write when the file on
// disk already holds the same bytes.
type Dest struct {
	dir string

	mu           sync.Mutex
	fingerprints map[string]fingerprint
}

// fingerprint is the content hash of a written file, valid while the file
// keeps the size and modification time it had when hashed.
type fingerprint struct {
	sum     uint64
	size    int64
	modTime time.Time
}

func (fp fingerprint) matches(info os.FileInfo) bool {
	return info.Size() == fp.size && info.ModTime().Equal(fp.modTime)
}

// NewDest creates a writer for dir.
func NewDest(dir string) *Dest {
	return &Dest{
		dir:          dir,
		fingerprints: make(map[string]fingerprint),
	}
}

// Dir is the output directory.
func (d *Dest) Dir() string {
	return d.dir
}

// Write stores files at dir/Rel(). The directory is created even when files
// is empty. It returns the number of files actually written.
func (d *Dest) Write(ctx context.Context, files []*File) (int, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, apperrors.NewIOError("MKDIR_FAILED", "creating output directory", err).WithFile(d.dir)
	}

	written := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		target, err := SafeJoin(d.dir, f.Rel())
		if err != nil {
			return written, apperrors.NewIOError("PATH_ESCAPE", "refusing to write", err).WithFile(f.Path)
		}

		ok, err := d.writeFile(target, f)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}

	return written, nil
}

func (d *Dest) writeFile(target string, f *File) (bool, error) {
	sum := xxhash.Sum64(f.Contents)
	if d.unchanged(target, sum) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, apperrors.NewIOError("MKDIR_FAILED", "creating parent directory", err).WithFile(target)
	}

	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(target, f.Contents, mode); err != nil {
		return false, apperrors.NewIOError("WRITE_FAILED", "writing output", err).WithFile(target)
	}

	d.remember(target, sum)

	return true, nil
}

// unchanged reports whether target already holds content with fingerprint
// sum. A remembered fingerprint is trusted only while the file on disk
// keeps its size and modification time; otherwise the file is re-hashed.
func (d *Dest) unchanged(target string, sum uint64) bool {
	info, err := os.Stat(target)
	if err != nil {
		return false
	}

	d.mu.Lock()
	known, ok := d.fingerprints[target]
	d.mu.Unlock()
	if ok && known.matches(info) {
		return known.sum == sum
	}

	existing, err := os.ReadFile(target)
	if err != nil {
		return false
	}
	onDisk := xxhash.Sum64(existing)
	d.remember(target, onDisk)

	return onDisk == sum
}

func (d *Dest) remember(target string, sum uint64) {
	info, err := os.Stat(target)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.fingerprints[target] = fingerprint{sum: sum, size: info.Size(), modTime: info.ModTime()}
	d.mu.Unlock()
}

// SafeJoin joins rel onto dir, rejecting paths that would land outside dir.
func SafeJoin(dir, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) || filepath.Clean(rel) == "." {
		return "", fmt.Errorf("%q: %w", rel, apperrors.ErrPathEscape)
	}
	return filepath.Join(dir, rel), nil
}
