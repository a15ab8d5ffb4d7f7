// Package fileset captures the state of one source directory tree: which entries existed below it,
// with which content and modification time. A FileSet is what gets copied onto a volume and persisted
// as the record of that volume.
package fileset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/n2code/hdb/internal/fsys"
	"github.com/n2code/hdb/internal/metadata"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidPath        = errors.New("invalid path")
	ErrNotADirectory      = errors.New("not a directory")
	ErrNamingConflict     = errors.New("naming conflict")
	ErrIncompatibleFormat = errors.New("incompatible format")
)

const progressInterval = 5000

type FileSet struct {
	metadata.Set
	Label     string
	Host      string
	SourceDir string //absolute, symlinks resolved
	Prune     bool   //whether archive paths are relative to SourceDir
	Version   string //format version of the persisted file this set was read from, current version if made here
}

// Options tune observation and copying. The zero value records and copies without touching source times or ownership.
type Options struct {
	Logger            logrus.FieldLogger //optional
	PreserveAtime     bool               //restore access times of source files after reading them
	PreserveOwnership bool               //transfer owner and group to copies (requires privileges)
	Host              string             //defaults to the system host name
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Make records every entry below sourceDir (but not sourceDir itself).
// Digests are taken from the lookup where possible, see metadata.Observe.
// Entries that vanish while the tree is inspected are skipped.
func Make(ctx context.Context, sourceDir string, label string, prune bool, lookup metadata.Lookup, options Options) (*FileSet, error) {
	log := options.logger()

	root, err := NormalizeDir(sourceDir)
	if err != nil {
		return nil, err
	}
	host := options.Host
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("determining host name: %w", err)
		}
	}
	set := &FileSet{Label: label, Host: host, SourceDir: root, Prune: prune, Version: FormatVersion}

	paths, err := enumerate(ctx, root, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"dir": root, "entries": len(paths)}).Info("enumerated source tree")

	observeOptions := metadata.ObserveOptions{PreserveAtime: options.PreserveAtime, Logger: log}
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		archivePath := set.archivePath(path)
		if strings.ContainsAny(archivePath, "\n\r") {
			//one line per entry, a line break in the name cannot be recorded
			log.WithField("path", path).Warn("name contains a line break, skipping")
			continue
		}
		m, outcome, err := metadata.Observe(path, archivePath, lookup, observeOptions)
		if err != nil {
			return nil, fmt.Errorf("observing %s: %w", path, err)
		}
		if outcome == fsys.SourceVanished {
			log.WithField("path", path).Warn("entry vanished before it could be recorded, skipping")
			continue
		}
		set.Push(m)
		if (i+1)%progressInterval == 0 {
			log.WithFields(logrus.Fields{"done": i + 1, "total": len(paths)}).Debug("recording progress")
		}
	}
	set.Sort()
	return set, nil
}

// NormalizeDir returns the absolute, symlink-free form of dir which must be an existing directory.
func NormalizeDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, dir, err)
	}
	info, err := fsys.Lstat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	return filepath.Clean(resolved), nil
}

// enumerate lists all paths below root in lexicographic order of the full path.
func enumerate(ctx context.Context, root string, log logrus.FieldLogger) (paths []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.WithError(walkErr).WithField("path", path).Warn("entry not readable, skipping")
			return nil
		}
		if path == root {
			return nil
		}
		paths = append(paths, path)
		if len(paths)%progressInterval == 0 {
			log.WithField("entries", len(paths)).Debug("enumerating")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (set *FileSet) archivePath(path string) string {
	if !set.Prune {
		return filepath.ToSlash(path)
	}
	prefix := set.SourceDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return filepath.ToSlash(strings.TrimPrefix(path, prefix))
}

// SourcePath is the location on the host an entry was recorded from.
func (set *FileSet) SourcePath(m metadata.Metadata) string {
	if !set.Prune {
		return filepath.FromSlash(m.ArchivePath)
	}
	return filepath.Join(set.SourceDir, filepath.FromSlash(m.ArchivePath))
}

// Equal compares everything but the label and the version.
func (set *FileSet) Equal(other *FileSet) bool {
	return set.Host == other.Host &&
		set.SourceDir == other.SourceDir &&
		set.Prune == other.Prune &&
		set.Set.Equal(&other.Set)
}
