package metadata

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// String renders the persisted single-line form: <digest> <mtime as 8 hex digits> <archive path>
//
// The modification time is truncated to 32 bits. Timestamps beyond 2106 (or before 1970) do not survive
// a round trip, this is a known limitation of the format.
func (m Metadata) String() string {
	return fmt.Sprintf("%s %08x %s", m.Digest, uint32(m.MTime), m.ArchivePath)
}

// ParseLine is the inverse of String. Only the first two spaces delimit fields, archive paths may contain spaces.
func ParseLine(line string) (Metadata, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return Metadata{}, fmt.Errorf("malformed metadata line: %q", line)
	}
	digest := Digest(parts[0])
	if err := digest.validate(); err != nil {
		return Metadata{}, fmt.Errorf("malformed metadata line: %w", err)
	}
	mTime, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("malformed modification time in metadata line: %w", err)
	}
	if parts[2] == "" {
		return Metadata{}, fmt.Errorf("archive path missing in metadata line: %q", line)
	}
	return Metadata{ArchivePath: parts[2], Digest: digest, MTime: UnixTimestamp(mTime)}, nil
}

func (d Digest) validate() error {
	if d == NADigest {
		return nil
	}
	if len(d) != DigestLength {
		return fmt.Errorf("digest has %d characters, want %d", len(d), DigestLength)
	}
	if _, err := hex.DecodeString(string(d)); err != nil || strings.ToLower(string(d)) != string(d) {
		return fmt.Errorf("digest is not lowercase hex: %s", d)
	}
	return nil
}
