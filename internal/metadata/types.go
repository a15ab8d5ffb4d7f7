package metadata

import (
	"errors"
	"strings"
)

// UnixTimestamp is a point in time with whole-second resolution.
type UnixTimestamp int64

// Digest is the lowercase hex rendering of a SHA-512 content hash or NADigest.
type Digest string

const DigestLength = 128

// NADigest is recorded for everything that is not a regular file (or vanished before it could be read).
var NADigest = Digest(strings.Repeat("*", DigestLength))

// ErrInconsistentMetadata means that the same file state (archive path and modification time) maps to different digests.
var ErrInconsistentMetadata = errors.New("inconsistent metadata")

// Metadata identifies one observed file by its archive path, content digest, and modification time.
// It is comparable, equality is structural.
type Metadata struct {
	ArchivePath string //slash-separated, relative to the source root unless pruning was disabled
	Digest      Digest
	MTime       UnixTimestamp
}

type field uint8

const (
	archivePathField field = 1 << iota
	mTimeField
	digestField
)

// Spec selects Metadata by any subset of its fields, unset fields match anything.
// The zero value matches everything.
type Spec struct {
	archivePath string
	mTime       UnixTimestamp
	digest      Digest
	set         field
}

// Lookup finds previously recorded Metadata, e.g. across all volumes of a repository.
type Lookup interface {
	Find(spec Spec) []Metadata
}
