package fsys

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Hooks used for testing (overridable)
var (
	lstat      = unix.Lstat
	openFile   = os.OpenFile
	copyData   = io.Copy
	mkdirAll   = os.MkdirAll
	symlink    = os.Symlink
	readlink   = os.Readlink
	remove     = os.Remove
	utimesNano = unix.UtimesNano
	chown      = unix.Chown
	lchown     = unix.Lchown
)

// getters and setters for test override
func GetCopyData() func(io.Writer, io.Reader) (int64, error)  { return copyData }
func SetCopyData(f func(io.Writer, io.Reader) (int64, error)) { copyData = f }
func GetMkdirAll() func(string, os.FileMode) error             { return mkdirAll }
func SetMkdirAll(f func(string, os.FileMode) error)            { mkdirAll = f }
func GetSymlink() func(string, string) error                   { return symlink }
func SetSymlink(f func(string, string) error)                  { symlink = f }
