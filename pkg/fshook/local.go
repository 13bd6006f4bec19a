// Package fshook implements vigil.FileSystemHook for the local filesystem and for HDFS over
// the WebHDFS REST API.
package fshook

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jkbrsn/vigil"
)

// Local is a vigil.FileSystemHook backed by the OS filesystem. Paths are relative to Root when
// Root is set.
type Local struct {
	Root string
}

// NewLocal returns a Local hook rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) resolve(path string) string {
	if l.Root == "" {
		return path
	}
	return filepath.Join(l.Root, filepath.FromSlash(path))
}

// Stat describes the file or directory at path.
func (l *Local) Stat(ctx context.Context, path string) (vigil.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return vigil.FileInfo{}, err
	}
	fi, err := os.Stat(l.resolve(path))
	if err != nil {
		return vigil.FileInfo{}, err
	}
	return fileInfo(path, fi), nil
}

// List returns the direct children of the directory at path.
func (l *Local) List(ctx context.Context, path string) ([]vigil.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.resolve(path))
	if err != nil {
		return nil, err
	}

	out := make([]vigil.FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if os.IsNotExist(err) {
			// removed since ReadDir
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fileInfo(filepath.ToSlash(filepath.Join(path, e.Name())), fi))
	}
	return out, nil
}

func fileInfo(path string, fi os.FileInfo) vigil.FileInfo {
	return vigil.FileInfo{
		Path:    path,
		Name:    fi.Name(),
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime(),
	}
}
