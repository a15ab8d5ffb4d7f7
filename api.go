package hdb

import (
	"context"

	"github.com/n2code/hdb/internal/fileset"
	"github.com/n2code/hdb/internal/volume"
)

// Hdb lets you back up directory trees onto removable volumes and inspect the records of earlier backups.
// Handles are retrieved using Open.
type Hdb interface {

	// Backup erases the volume on the given device, copies the source directory onto it (as much as fits),
	// and records what arrived in the repository under the ID of the volume.
	// The operator is asked which volume was inserted (and for a passphrase if the volume shall be encrypted).
	// The volume is unmounted (and closed) in any case, it is only ejected if the backup succeeded.
	Backup(ctx context.Context, request BackupRequest, prompter Prompter, runner Runner) (Summary, error)

	// PrintVolumes lists all recorded volumes with label, origin, and number of entries.
	PrintVolumes() error

	// PrintVolume outputs the header and the tree of entries recorded for a volume.
	PrintVolume(volumeID string) error

	// PrintLocations lists the volumes holding a path (relative to the backed up directory).
	// If the query is an existing local file, volumes holding the same content are listed instead.
	PrintLocations(query string) error
}

// Prompter asks the operator, see volume.Prompter for the contract.
type Prompter = volume.Prompter

// Runner executes the external programs that format, open, mount, and eject volumes.
type Runner = volume.Runner

// BackupRequest describes one run. The zero value of optional switches is the conservative choice.
type BackupRequest struct {
	Device     string //physical block device, erased completely
	SourceDir  string
	Label      string
	MountPoint string
	Filesystem string //ext2, ext3, ext4, or reiserfs
	Encrypt    bool
	Eject      bool

	// Lookup trusts digests recorded on earlier volumes for files whose modification time did not change.
	Lookup bool
	// SkipBackedUp leaves out entries that are recorded unchanged on any earlier volume.
	SkipBackedUp bool
	// KeepLeadingDir records absolute paths instead of paths relative to the source directory.
	KeepLeadingDir bool

	PreserveAtime     bool
	PreserveOwnership bool
}

// Summary describes the outcome of a backup run.
type Summary struct {
	VolumeID string
	Recorded int //entries persisted as the record of the volume
	Copy     fileset.CopyReport
	Excluded int //entries left out because they were backed up already
}
