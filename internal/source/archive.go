// Package source reads comic pages from local folders, archives and PDFs.
package source

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEntryNotFound     = errors.New("entry not found")
)

// Archive is a container of page images.
type Archive interface {
	// Entries lists the page entries in container order.
	Entries(ctx context.Context) ([]string, error)
	// Read returns the encoded bytes of an entry.
	Read(ctx context.Context, name string) ([]byte, error)
}

// IsImage reports whether path has a page image extension.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif", ".tif", ".tiff":
		return true
	}
	return false
}

// IsBook reports whether path is a container Open understands.
func IsBook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".cbz", ".rar", ".cbr", ".7z", ".cb7", ".pdf":
		return true
	}
	return false
}

// Open returns the archive for a directory, archive or PDF path.
func Open(path string) (Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return Dir{Path: path}, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".cbz":
		return Zip{Path: path}, nil
	case ".rar", ".cbr":
		return Rar{Path: path}, nil
	case ".7z", ".cb7":
		return SevenZip{Path: path}, nil
	case ".pdf":
		return PDF{Path: path}, nil
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}

// Dir is a folder of images, walked recursively.
type Dir struct {
	Path string
}

func (d Dir) Entries(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !IsImage(path) {
			return nil
		}
		rel, err := filepath.Rel(d.Path, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.Path, err)
	}
	return names, nil
}

func (d Dir) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s in %s: %w", name, d.Path, ErrEntryNotFound)
	}
	return data, err
}

type Zip struct {
	Path string
}

func (z Zip) Entries(ctx context.Context) ([]string, error) {
	r, err := zip.OpenReader(z.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && IsImage(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func (z Zip) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := zip.OpenReader(z.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s in %s: %w", name, z.Path, ErrEntryNotFound)
}

type Rar struct {
	Path string
}

// walk calls fn for each file header until fn returns false.
func (a Rar) walk(ctx context.Context, fn func(*rardecode.FileHeader, io.Reader) (bool, error)) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := rardecode.NewReader(f, "")
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if header.IsDir {
			continue
		}
		more, err := fn(header, r)
		if err != nil || !more {
			return err
		}
	}
}

func (a Rar) Entries(ctx context.Context) ([]string, error) {
	var names []string
	err := a.walk(ctx, func(h *rardecode.FileHeader, _ io.Reader) (bool, error) {
		if IsImage(h.Name) {
			names = append(names, h.Name)
		}
		return true, nil
	})
	return names, err
}

func (a Rar) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := a.walk(ctx, func(h *rardecode.FileHeader, r io.Reader) (bool, error) {
		if h.Name != name {
			return true, nil
		}
		var err error
		data, err = io.ReadAll(r)
		return false, err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s in %s: %w", name, a.Path, ErrEntryNotFound)
	}
	return data, nil
}

type SevenZip struct {
	Path string
}

func (a SevenZip) Entries(ctx context.Context) ([]string, error) {
	r, err := sevenzip.OpenReader(a.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && IsImage(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func (a SevenZip) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := sevenzip.OpenReader(a.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s in %s: %w", name, a.Path, ErrEntryNotFound)
}
