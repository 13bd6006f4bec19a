package vigil

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultIgnoredExt lists the extensions of files that are still being written, e.g. by an
// HDFS put in progress.
var DefaultIgnoredExt = []string{"_COPYING_"}

// FileInfo describes a file or directory as reported by a FileSystemHook.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// FileSystemHook is the query surface of a filesystem. Both methods report a missing path with
// an error matching fs.ErrNotExist; any other error is a resource failure.
type FileSystemHook interface {
	// Stat describes the file or directory at path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the direct children of the directory at path.
	List(ctx context.Context, path string) ([]FileInfo, error)
}

// FileFilter narrows down the entries a filesystem sensor considers. Entries with an ignored
// extension are dropped first, then the regex is applied, then the size.
type FileFilter struct {
	// IgnoredExt lists extensions of entries to drop. Nil means DefaultIgnoredExt.
	IgnoredExt []string

	// KeepIgnored disables the extension filter.
	KeepIgnored bool

	// FileSize, when set, keeps only entries of exactly this many bytes.
	FileSize *int64
}

// Validate checks that the filter is valid.
func (f FileFilter) Validate() error {
	if f.FileSize != nil && *f.FileSize < 0 {
		return configError("FileSize cannot be negative")
	}
	return nil
}

// apply filters entries by extension, then regex (when non-nil), then size.
func (f FileFilter) apply(entries []FileInfo, re *regexp.Regexp) []FileInfo {
	ignored := f.IgnoredExt
	if ignored == nil {
		ignored = DefaultIgnoredExt
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !f.KeepIgnored && hasIgnoredExt(e.Name, ignored) {
			continue
		}
		if re != nil && !re.MatchString(e.Name) {
			continue
		}
		if f.FileSize != nil && e.Size != *f.FileSize {
			continue
		}
		out = append(out, e)
	}
	return out
}

func hasIgnoredExt(name string, exts []string) bool {
	for _, ext := range exts {
		ext = strings.TrimPrefix(ext, ".")
		if ext != "" && strings.HasSuffix(name, "."+ext) {
			return true
		}
	}
	return false
}

// FileSensor waits for a path to exist. When the path is a directory it waits for the
// directory to hold at least one entry that passes the filter.
type FileSensor struct {
	Hook   FileSystemHook
	Path   string
	Filter FileFilter
}

// Validate checks that the FileSensor is ready to poke.
func (s *FileSensor) Validate() error {
	if s.Hook == nil {
		return configError("FileSensor has no hook")
	}
	if s.Path == "" {
		return configError("FileSensor path is empty")
	}
	return s.Filter.Validate()
}

// Poke reports whether the path exists and passes the filter.
func (s *FileSensor) Poke(ctx context.Context) (bool, error) {
	log.Trace().Str("path", s.Path).Msg("poking for file")

	info, err := s.Hook.Stat(ctx, s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	entries := []FileInfo{info}
	if info.IsDir {
		entries, err = s.Hook.List(ctx, s.Path)
		if err != nil {
			return false, err
		}
	}
	return len(s.Filter.apply(entries, nil)) > 0, nil
}

// FolderSensor waits for a directory to be empty, or non-empty, ignoring entries dropped by the
// filter.
type FolderSensor struct {
	Hook    FileSystemHook
	Path    string
	BeEmpty bool
	Filter  FileFilter
}

// Validate checks that the FolderSensor is ready to poke.
func (s *FolderSensor) Validate() error {
	if s.Hook == nil {
		return configError("FolderSensor has no hook")
	}
	if s.Path == "" {
		return configError("FolderSensor path is empty")
	}
	return s.Filter.Validate()
}

// Poke reports whether the directory holds the expected number of entries. A missing directory
// is neither empty nor non-empty.
func (s *FolderSensor) Poke(ctx context.Context) (bool, error) {
	log.Trace().Str("path", s.Path).Bool("be_empty", s.BeEmpty).Msg("poking for folder")

	entries, err := s.Hook.List(ctx, s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	count := len(s.Filter.apply(entries, nil))
	if s.BeEmpty {
		return count == 0, nil
	}
	return count > 0, nil
}

// RegexSensor waits for a directory to hold an entry whose name matches Regex.
type RegexSensor struct {
	Hook   FileSystemHook
	Path   string
	Regex  *regexp.Regexp
	Filter FileFilter
}

// Validate checks that the RegexSensor is ready to poke.
func (s *RegexSensor) Validate() error {
	if s.Hook == nil {
		return configError("RegexSensor has no hook")
	}
	if s.Path == "" {
		return configError("RegexSensor path is empty")
	}
	if s.Regex == nil {
		return configError("RegexSensor regex is nil")
	}
	return s.Filter.Validate()
}

// Poke reports whether a matching entry exists.
func (s *RegexSensor) Poke(ctx context.Context) (bool, error) {
	log.Trace().Str("path", s.Path).Str("regex", s.Regex.String()).Msg("poking for regex")

	entries, err := s.Hook.List(ctx, s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(s.Filter.apply(entries, s.Regex)) > 0, nil
}
