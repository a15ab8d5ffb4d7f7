package fileset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const FormatVersion = "3.2"
const workInProgressFileSuffix = ".wip"

const (
	versionHeader = "Version"
	labelHeader   = "Label"
	hostHeader    = "Host"
	dirHeader     = "Dir"
	pruneHeader   = "Prune"
)

// Serialize writes the header block, an empty line, and then one line per entry.
func (set *FileSet) Serialize(w io.Writer) error {
	header := []struct{ key, value string }{
		{versionHeader, FormatVersion},
		{labelHeader, set.Label},
		{hostHeader, set.Host},
		{dirHeader, set.SourceDir},
		{pruneHeader, fmt.Sprint(set.Prune)},
	}
	for _, h := range header {
		if _, err := fmt.Fprintf(w, "%s: %s\n", h.key, h.value); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return set.Set.Serialize(w)
}

// Deserialize replaces the content with what is read. Unknown header keys are ignored,
// a different major format version is rejected before any entry is read.
func (set *FileSet) Deserialize(r io.Reader) error {
	reader := bufio.NewReader(r)
	var read FileSet
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("header not terminated by an empty line")
			}
			return err
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}
		key, value, _ := strings.Cut(line, ": ")
		switch key {
		case versionHeader:
			if majorVersion(value) != majorVersion(FormatVersion) {
				return fmt.Errorf("%w: format version %s cannot be read by this program (%s)", ErrIncompatibleFormat, value, FormatVersion)
			}
			read.Version = value
		case labelHeader:
			read.Label = value
		case hostHeader:
			read.Host = value
		case dirHeader:
			read.SourceDir = value
		case pruneHeader:
			read.Prune = value == "true"
		}
	}
	if read.Version == "" {
		return fmt.Errorf("%w: format version missing", ErrIncompatibleFormat)
	}
	if err := read.Set.Deserialize(reader); err != nil {
		return err
	}
	*set = read
	return nil
}

func majorVersion(version string) string {
	major, _, _ := strings.Cut(version, ".")
	return major
}

// WriteFile persists the set at path, replacing any previous file only after everything was written.
func (set *FileSet) WriteFile(path string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("saving file set failed: %w", err)
		}
	}()

	tempPath := path + workInProgressFileSuffix
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return
	}
	buffered := bufio.NewWriter(file)
	err = set.Serialize(buffered)
	if err == nil {
		err = buffered.Flush()
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		return fmt.Errorf("replacing file set (%s) with temporary working copy (%s) failed: %w", path, tempPath, err)
	}
	return nil
}

func ReadFile(path string) (*FileSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	set := &FileSet{}
	if err := set.Deserialize(file); err != nil {
		return nil, fmt.Errorf("reading file set %s: %w", path, err)
	}
	return set, nil
}

// IsWorkInProgress tells leftovers of interrupted writes apart from persisted sets.
func IsWorkInProgress(path string) bool {
	return strings.HasSuffix(path, workInProgressFileSuffix)
}
