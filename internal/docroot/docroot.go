// Package docroot resolves request targets to files under one document root
// and maps their contents read-only for zero-copy sends.
package docroot

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	ErrOutsideRoot = errors.New("target escapes the document root")
	ErrNotFound    = errors.New("target not found")
	ErrForbidden   = errors.New("target is not world-readable")
	ErrIsDirectory = errors.New("target is a directory")
)

type Root struct {
	dir string
}

// New opens dir as a document root. dir must exist and be a directory.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", dir, err)
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, fmt.Errorf("document root %q: %w", dir, err)
	}
	var st unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return nil, fmt.Errorf("document root %q: %w", abs, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return nil, fmt.Errorf("document root %q: not a directory", abs)
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// File is a resolved regular file. Data is a read-only mapping of the whole
// file and is nil for an empty one.
type File struct {
	Path string
	Size int64
	Mode uint32
	Data []byte
}

// Close unmaps Data.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var data = f.Data
	f.Data = nil
	return unix.Munmap(data)
}

func (r *Root) contains(p string) bool {
	return p == r.dir || strings.HasPrefix(p, r.dir+string(filepath.Separator))
}

// relPath turns an origin-form target into a slash-separated path relative
// to the root.
func relPath(target string) (string, error) {
	if strings.IndexByte(target, 0) >= 0 || strings.Contains(target, "\\") {
		return "", ErrOutsideRoot
	}
	if !strings.HasPrefix(target, "/") {
		return "", ErrOutsideRoot
	}
	for _, seg := range strings.Split(target[1:], "/") {
		if seg == ".." {
			return "", ErrOutsideRoot
		}
	}
	var clean = path.Clean(target)
	if clean == "/" {
		return "", nil
	}
	return clean[1:], nil
}

// Resolve stats and maps target. Errors are checked in order: a target
// escaping the root, a failed stat, a symlink leading out of the root, a
// file that is not world-readable, a directory.
func (r *Root) Resolve(target string) (*File, error) {
	rel, err := relPath(target)
	if err != nil {
		return nil, err
	}
	var full = filepath.Join(r.dir, filepath.FromSlash(rel))

	var st unix.Stat_t
	if err := unix.Stat(full, &st); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if !r.contains(resolved) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	if st.Mode&unix.S_IROTH == 0 {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, target)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, target)
	}

	var f = &File{Path: resolved, Size: st.Size, Mode: st.Mode}
	if st.Size == 0 {
		return f, nil
	}

	fd, err := unix.Open(resolved, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	defer unix.Close(fd)

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", target, err)
	}
	f.Data = data
	return f, nil
}
