package fsys

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Lstat inspects path without following a final symlink.
func Lstat(path string) (Info, error) {
	var st unix.Stat_t
	if err := lstat(path, &st); err != nil {
		return Info{}, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return Info{
		Mode:  fileMode(st.Mode),
		Size:  st.Size,
		ATime: time.Unix(st.Atim.Unix()),
		MTime: time.Unix(st.Mtim.Unix()),
		UID:   int(st.Uid),
		GID:   int(st.Gid),
	}, nil
}

func fileMode(raw uint32) fs.FileMode {
	mode := fs.FileMode(raw & 0777)
	switch raw & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= fs.ModeDir
	case unix.S_IFLNK:
		mode |= fs.ModeSymlink
	case unix.S_IFIFO:
		mode |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= fs.ModeSocket
	case unix.S_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		mode |= fs.ModeDevice
	}
	return mode
}

// Open opens a file for reading.
func Open(path string) (*os.File, error) {
	return openFile(path, os.O_RDONLY, 0)
}

// CopyFile copies the content of src to a newly created (or truncated) dst which receives the permission bits given.
// The data is flushed to stable storage before returning so that exhausted capacity is reported here and not later.
// Errors opening the source are marked as such so callers can tell a vanished source from a missing destination.
func CopyFile(src string, dst string, perm fs.FileMode) (written int64, err error) {
	in, err := Open(src)
	if err != nil {
		return 0, &SourceError{Err: err}
	}
	defer in.Close()

	out, err := openFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	outClosed := false
	defer func() {
		if !outClosed {
			out.Close()
		}
	}()

	written, err = copyData(out, in)
	if err != nil {
		return written, fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err = out.Sync(); err != nil {
		return written, fmt.Errorf("syncing %s: %w", dst, err)
	}
	outClosed = true
	if err = out.Close(); err != nil {
		return written, fmt.Errorf("closing %s: %w", dst, err)
	}
	return written, nil
}

// SourceError marks a failure that happened while accessing the source side of a copy.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func MkdirAll(path string) error {
	return mkdirAll(path, 0755)
}

func Symlink(target string, path string) error {
	return symlink(target, path)
}

func Readlink(path string) (string, error) {
	return readlink(path)
}

func Remove(path string) error {
	return remove(path)
}

// SetTimes sets access and modification time of path (following symlinks).
func SetTimes(path string, atime time.Time, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := utimesNano(path, ts); err != nil {
		return &fs.PathError{Op: "utimes", Path: path, Err: err}
	}
	return nil
}

// Chown changes owner and group of path (following symlinks).
func Chown(path string, uid int, gid int) error {
	if err := chown(path, uid, gid); err != nil {
		return &fs.PathError{Op: "chown", Path: path, Err: err}
	}
	return nil
}

// Lchown changes owner and group of a symlink itself.
func Lchown(path string, uid int, gid int) error {
	if err := lchown(path, uid, gid); err != nil {
		return &fs.PathError{Op: "lchown", Path: path, Err: err}
	}
	return nil
}
