package metadata

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Set is an ordered sequence of Metadata. Uniqueness is not enforced.
type Set struct {
	entries []Metadata
}

func NewSet(entries ...Metadata) *Set {
	return &Set{entries: append([]Metadata(nil), entries...)}
}

func (s *Set) Push(m Metadata) {
	s.entries = append(s.entries, m)
}

func (s *Set) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the current sequence.
func (s *Set) Entries() []Metadata {
	return append([]Metadata(nil), s.entries...)
}

func (s *Set) ArchivePaths() []string {
	paths := make([]string, 0, len(s.entries))
	for _, m := range s.entries {
		paths = append(paths, m.ArchivePath)
	}
	return paths
}

// Subtract deletes every element equal to any of the removals, duplicates included.
func (s *Set) Subtract(removals []Metadata) {
	if len(removals) == 0 {
		return
	}
	remove := make(map[Metadata]bool, len(removals))
	for _, m := range removals {
		remove[m] = true
	}
	kept := s.entries[:0]
	for _, m := range s.entries {
		if !remove[m] {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = Metadata{}
	}
	s.entries = kept
}

// Find returns all matches in sequence order. It is a linear scan.
func (s *Set) Find(spec Spec) (matches []Metadata) {
	for _, m := range s.entries {
		if m.Matches(spec) {
			matches = append(matches, m)
		}
	}
	return
}

func (s *Set) Sort() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Less(s.entries[j])
	})
}

// Equal compares the ordered sequences.
func (s *Set) Equal(other *Set) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}
	for i := range s.entries {
		if s.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}

// Serialize writes one line per entry in sequence order.
func (s *Set) Serialize(w io.Writer) error {
	buffered := bufio.NewWriter(w)
	for _, m := range s.entries {
		if _, err := fmt.Fprintln(buffered, m.String()); err != nil {
			return err
		}
	}
	return buffered.Flush()
}

// Deserialize replaces the content with the entries read line by line until EOF.
func (s *Set) Deserialize(r io.Reader) error {
	var entries []Metadata
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		m, err := ParseLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("entry %d: %w", lineNumber, err)
		}
		entries = append(entries, m)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

const maxLineLength = 1024 * 1024
