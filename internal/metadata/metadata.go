package metadata

import (
	"fmt"

	"github.com/n2code/hdb/internal/fsys"
	"github.com/sirupsen/logrus"
)

// ObserveOptions tune how a single path is observed.
type ObserveOptions struct {
	PreserveAtime bool
	Logger        logrus.FieldLogger //optional
}

// Observe records path under the given archive path.
// If a lookup is given, a digest previously recorded for the same archive path and modification time is reused
// without reading the file. Matches with differing digests are a fatal inconsistency.
// A path that disappeared before it could be inspected yields SourceVanished and no error.
func Observe(path string, archivePath string, lookup Lookup, options ObserveOptions) (m Metadata, outcome fsys.Outcome, err error) {
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	info, err := fsys.Lstat(path)
	if err != nil {
		if fsys.IsVanished(err) {
			return Metadata{}, fsys.SourceVanished, nil
		}
		return Metadata{}, fsys.Succeeded, err
	}
	m.ArchivePath = archivePath
	m.MTime = UnixTimestamp(info.MTime.Unix())

	if lookup != nil {
		matches := lookup.Find(MatchPath(archivePath).WithMTime(m.MTime))
		digests := distinctDigests(matches)
		log.WithFields(logrus.Fields{"path": archivePath, "matches": len(matches)}).Trace("looked up previous records")
		switch len(digests) {
		case 0:
			//unknown state, hash below
		case 1:
			log.WithField("path", archivePath).Debug("reusing recorded digest")
			m.Digest = digests[0]
			return m, fsys.Succeeded, nil
		default:
			return Metadata{}, fsys.Succeeded, fmt.Errorf("%w: %s (modified %d) recorded with %d different digests", ErrInconsistentMetadata, archivePath, m.MTime, len(digests))
		}
	}

	if !info.IsRegular() {
		m.Digest = NADigest
		return m, fsys.Succeeded, nil
	}
	log.WithField("path", archivePath).Debug("computing digest")
	m.Digest, err = HashFile(path, options.PreserveAtime)
	if err != nil {
		if fsys.IsVanished(err) {
			return Metadata{}, fsys.SourceVanished, nil
		}
		return Metadata{}, fsys.Succeeded, err
	}
	return m, fsys.Succeeded, nil
}

func distinctDigests(matches []Metadata) (digests []Digest) {
	seen := make(map[Digest]bool)
	for _, match := range matches {
		if !seen[match.Digest] {
			seen[match.Digest] = true
			digests = append(digests, match.Digest)
		}
	}
	return
}

func MatchPath(archivePath string) Spec {
	return Spec{}.WithPath(archivePath)
}

func (s Spec) WithPath(archivePath string) Spec {
	s.archivePath = archivePath
	s.set |= archivePathField
	return s
}

func (s Spec) WithMTime(mTime UnixTimestamp) Spec {
	s.mTime = mTime
	s.set |= mTimeField
	return s
}

func (s Spec) WithDigest(digest Digest) Spec {
	s.digest = digest
	s.set |= digestField
	return s
}

// Matches checks all fields set in the spec, others are wildcards.
func (m Metadata) Matches(s Spec) bool {
	return (s.set&archivePathField == 0 || m.ArchivePath == s.archivePath) &&
		(s.set&mTimeField == 0 || m.MTime == s.mTime) &&
		(s.set&digestField == 0 || m.Digest == s.digest)
}

// Less orders by archive path, then digest, then modification time.
func (m Metadata) Less(other Metadata) bool {
	if m.ArchivePath != other.ArchivePath {
		return m.ArchivePath < other.ArchivePath
	}
	if m.Digest != other.Digest {
		return m.Digest < other.Digest
	}
	return m.MTime < other.MTime
}

func (m Metadata) IsRegularFile() bool {
	return m.Digest != NADigest
}
