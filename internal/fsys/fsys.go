// Package fsys is the platform file-I/O layer: link-status inspection with access times and ownership,
// time and owner changes, verbatim content copies, and the classification of platform errors into
// entry outcomes that callers can act upon without inspecting error codes themselves.
package fsys

import (
	"errors"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// Outcome classifies what happened to a single entry. Fatal conditions are not outcomes but errors.
type Outcome int

const (
	Succeeded      Outcome = iota
	SourceVanished         //source disappeared since it was enumerated
	OutOfSpace             //destination capacity exhausted
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case SourceVanished:
		return "source vanished"
	case OutOfSpace:
		return "out of space"
	}
	return "unknown outcome"
}

// Info is the link-status of a path, i.e. symlinks are described and not their targets.
type Info struct {
	Mode  fs.FileMode
	Size  int64
	ATime time.Time
	MTime time.Time
	UID   int
	GID   int
}

func (i Info) IsRegular() bool {
	return i.Mode.IsRegular()
}

func (i Info) IsDir() bool {
	return i.Mode.IsDir()
}

func (i Info) IsSymlink() bool {
	return i.Mode&fs.ModeSymlink != 0
}

// IsVanished reports whether err means that the path does not exist (anymore).
func IsVanished(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// IsOutOfSpace reports whether err was caused by exhausted capacity (blocks or quota) of the target filesystem.
func IsOutOfSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

// IsSourceSide reports whether err happened while accessing the source of a copy.
func IsSourceSide(err error) bool {
	var sourceErr *SourceError
	return errors.As(err, &sourceErr)
}
