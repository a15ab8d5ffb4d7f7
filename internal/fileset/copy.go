package fileset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/n2code/hdb/internal/fsys"
	"github.com/n2code/hdb/internal/metadata"
	"github.com/n2code/hdb/internal/output"
	"github.com/sirupsen/logrus"
)

// CopyReport summarizes a copy pass. Entries that could not be copied are no longer part of the set afterwards.
type CopyReport struct {
	Copied     int
	OutOfSpace int
	Vanished   int
	Bytes      int64
}

func (r CopyReport) Skipped() int {
	return r.OutOfSpace + r.Vanished
}

func (r CopyReport) String() string {
	return fmt.Sprintf("%d copied (%s), %d did not fit, %d vanished", r.Copied, output.Filesize(r.Bytes), r.OutOfSpace, r.Vanished)
}

// Copy transfers all entries onto destRoot in the current order.
// Entries that do not fit or whose source vanished are dropped from the set, so that afterwards the set describes
// exactly what arrived at the destination. Any other failure aborts the pass and leaves the set untouched.
func (set *FileSet) Copy(ctx context.Context, destRoot string, options Options) (report CopyReport, err error) {
	log := options.logger()

	if info, statErr := os.Stat(destRoot); statErr != nil || !info.IsDir() {
		return report, fmt.Errorf("copy destination %s: %w", destRoot, ErrNotADirectory)
	}

	var dropped []metadata.Metadata
	for _, entry := range set.Entries() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		src := set.SourcePath(entry)
		dst := filepath.Join(destRoot, filepath.FromSlash(entry.ArchivePath))
		entryLog := log.WithField("path", entry.ArchivePath)

		written, outcome, err := CopyEntry(src, dst, options)
		if err != nil {
			return report, fmt.Errorf("copying %s: %w", entry.ArchivePath, err)
		}
		switch outcome {
		case fsys.Succeeded:
			report.Copied++
			report.Bytes += written
			entryLog.Trace("copied")
		case fsys.OutOfSpace:
			if entry.IsRegularFile() {
				if err := fsys.Remove(dst); err != nil && !fsys.IsVanished(err) {
					entryLog.WithError(err).Warn("could not remove partial copy")
				}
			}
			report.OutOfSpace++
			dropped = append(dropped, entry)
			entryLog.Info("does not fit onto volume, skipping")
		case fsys.SourceVanished:
			report.Vanished++
			dropped = append(dropped, entry)
			entryLog.Warn("vanished before it could be copied, skipping")
		}
	}
	set.Subtract(dropped)
	return report, nil
}

// CopyEntry copies a single directory, regular file, or symlink from src to dst whose parent must exist.
// Directories are created if missing, regular files are copied byte by byte, symlinks are recreated with the same target.
// Copies of directories and regular files get the access and modification times of the source, optionally also the ownership.
// Other kinds of entries are skipped. Exhausted capacity and vanished sources are outcomes, not errors.
func CopyEntry(src string, dst string, options Options) (written int64, outcome fsys.Outcome, err error) {
	before, err := fsys.Lstat(src)
	if err != nil {
		return sourceOutcome(0, err)
	}

	switch {
	case before.IsSymlink():
		target, err := fsys.Readlink(src)
		if err != nil {
			return sourceOutcome(0, err)
		}
		if err := fsys.Symlink(target, dst); err != nil {
			return destinationOutcome(0, err)
		}
		if options.PreserveOwnership {
			if err := fsys.Lchown(dst, before.UID, before.GID); err != nil {
				return destinationOutcome(0, err)
			}
		}
		return 0, fsys.Succeeded, nil
	case before.IsDir():
		if existing, err := fsys.Lstat(dst); err == nil && !existing.IsDir() {
			return 0, fsys.Succeeded, fmt.Errorf("%w: %s exists and is not a directory", ErrNamingConflict, dst)
		}
		if err := fsys.MkdirAll(dst); err != nil {
			return destinationOutcome(0, err)
		}
	case before.IsRegular():
		written, err = fsys.CopyFile(src, dst, before.Mode.Perm())
		if err != nil {
			if fsys.IsSourceSide(err) {
				return sourceOutcome(written, err)
			}
			return destinationOutcome(written, err)
		}
	default:
		options.logger().WithFields(logrus.Fields{"path": src, "mode": before.Mode.Type().String()}).Debug("unsupported entry type, skipping")
		return 0, fsys.Succeeded, nil
	}

	after, err := fsys.Lstat(src)
	if err != nil {
		return sourceOutcome(written, err)
	}
	if options.PreserveAtime {
		if err := fsys.SetTimes(src, before.ATime, after.MTime); err != nil {
			return sourceOutcome(written, err)
		}
	}
	if err := fsys.SetTimes(dst, before.ATime, after.MTime); err != nil {
		return destinationOutcome(written, err)
	}
	if options.PreserveOwnership {
		if err := fsys.Chown(dst, after.UID, after.GID); err != nil {
			return destinationOutcome(written, err)
		}
	}
	return written, fsys.Succeeded, nil
}

func sourceOutcome(written int64, err error) (int64, fsys.Outcome, error) {
	if fsys.IsVanished(err) {
		return written, fsys.SourceVanished, nil
	}
	return written, fsys.Succeeded, err
}

// destinationOutcome also maps a missing destination to exhausted capacity:
// parents are copied before their children, so a missing parent did not fit earlier.
func destinationOutcome(written int64, err error) (int64, fsys.Outcome, error) {
	if fsys.IsOutOfSpace(err) || fsys.IsVanished(err) {
		return written, fsys.OutOfSpace, nil
	}
	return written, fsys.Succeeded, err
}
