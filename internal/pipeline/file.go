// Package pipeline is the task runner: files are collected from Path
// Patterns, passed through an ordered list of Transformation Steps and
// written below an output directory. Tasks compose into Series and Parallel
// groups, which compose further since all of them are Runnable.
package pipeline

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// File is one element of a task's stream.
type File struct {
	// Base is the glob base the file was collected under. Rel is computed
	// against it.
	Base string
	// Path is the absolute path of the file. Steps that rename outputs
	// change Path and keep Base.
	Path     string
	Contents []byte
	Mode     fs.FileMode
	// SourceMap is set by steps that produce one. Steps that rewrite
	// Contents without updating the map must clear it.
	SourceMap *SourceMap
}

// Rel is the path of the file relative to its glob base, using the OS
// separator.
func (f *File) Rel() string {
	rel, err := filepath.Rel(f.Base, f.Path)
	if err != nil {
		// Base and Path on different volumes; the writer rejects it.
		return f.Path
	}
	return rel
}

// Ext returns the file extension including the dot.
func (f *File) Ext() string {
	return filepath.Ext(f.Path)
}

// Clone returns a shallow copy with its own Contents slice.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	if f.SourceMap != nil {
		sm := *f.SourceMap
		c.SourceMap = &sm
	}
	return &c
}

// WithExt returns a copy of f whose Path ends in ext instead of the current
// extension.
func (f *File) WithExt(ext string) *File {
	c := *f
	c.Path = strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ext
	return &c
}

// NewFile creates a file named rel below base.
func NewFile(base, rel string, contents []byte) *File {
	return &File{
		Base:     base,
		Path:     filepath.Join(base, filepath.FromSlash(rel)),
		Contents: contents,
		Mode:     0o644,
	}
}
