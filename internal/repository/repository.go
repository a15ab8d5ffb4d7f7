// Package repository manages the directory of persisted file sets, one per volume.
// Volume IDs are slash-separated paths relative to the repository root, nested IDs are allowed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/n2code/hdb/internal/fileset"
	"github.com/n2code/hdb/internal/metadata"
	"github.com/sirupsen/logrus"
)

var ErrInvalidVolumeID = errors.New("invalid volume ID")

type Repository struct {
	root string
	sets map[string]*fileset.FileSet
	log  logrus.FieldLogger
}

// Hit is an entry found on a specific volume.
type Hit struct {
	VolumeID string
	Entry    metadata.Metadata
}

// Open loads all file sets below root which is created if it does not exist yet.
func Open(root string, log logrus.FieldLogger) (*Repository, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("repository root %s: %w", root, fileset.ErrNotADirectory)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating repository root: %w", err)
	}

	repo := &Repository{root: root, sets: make(map[string]*fileset.FileSet), log: log}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if fileset.IsWorkInProgress(path) {
			log.WithField("path", path).Warn("ignoring leftover of an interrupted write, manual intervention necessary")
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		set, err := fileset.ReadFile(path)
		if err != nil {
			return err
		}
		volumeID := filepath.ToSlash(rel)
		repo.sets[volumeID] = set
		log.WithFields(logrus.Fields{"volume": volumeID, "label": set.Label, "entries": set.Len()}).Debug("loaded file set")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading repository %s: %w", root, err)
	}
	log.WithFields(logrus.Fields{"root": root, "volumes": len(repo.sets)}).Info("repository loaded")
	return repo, nil
}

func (r *Repository) Root() string {
	return r.root
}

// Filter forgets (in memory only) all file sets that were not recorded on host from one of dirs.
// An empty host or nil dirs disable the respective criterion.
// A set matches a directory if its source directory is contained in the normalized directory as a substring.
func (r *Repository) Filter(dirs []string, host string) error {
	normalized := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		n, err := fileset.NormalizeDir(dir)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}
	for id, set := range r.sets {
		if host != "" && set.Host != host {
			delete(r.sets, id)
			continue
		}
		if dirs != nil && !containsSourceOf(normalized, set) {
			delete(r.sets, id)
		}
	}
	r.log.WithFields(logrus.Fields{"host": host, "dirs": dirs, "retained": len(r.sets)}).Debug("filtered repository")
	return nil
}

func containsSourceOf(dirs []string, set *fileset.FileSet) bool {
	for _, dir := range dirs {
		if strings.Contains(dir, set.SourceDir) {
			return true
		}
	}
	return false
}

// VolumeIDs lists the IDs of all retained file sets in ascending order.
func (r *Repository) VolumeIDs() []string {
	ids := make([]string, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return volumeIDLess(ids[i], ids[j])
	})
	return ids
}

// volumeIDLess orders numeric IDs numerically and before all others which are ordered lexicographically.
func volumeIDLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func (r *Repository) Get(volumeID string) (set *fileset.FileSet, exists bool) {
	set, exists = r.sets[volumeID]
	return
}

// Find searches all retained file sets, see metadata.Lookup.
func (r *Repository) Find(spec metadata.Spec) (matches []metadata.Metadata) {
	for _, id := range r.VolumeIDs() {
		matches = append(matches, r.sets[id].Find(spec)...)
	}
	return
}

// Locate is like Find but tells on which volume each match was recorded.
func (r *Repository) Locate(spec metadata.Spec) (hits []Hit) {
	for _, id := range r.VolumeIDs() {
		for _, m := range r.sets[id].Find(spec) {
			hits = append(hits, Hit{VolumeID: id, Entry: m})
		}
	}
	return
}

// ExcludeBackedUp removes from candidate every regular file that any retained file set recorded already.
// Directories and other entries without content stay, files below them may still have changed.
func (r *Repository) ExcludeBackedUp(candidate *fileset.FileSet) {
	for _, id := range r.VolumeIDs() {
		var files []metadata.Metadata
		for _, m := range r.sets[id].Entries() {
			if m.IsRegularFile() {
				files = append(files, m)
			}
		}
		candidate.Subtract(files)
	}
}

// CreateFileSet records dir, consulting the repository for known digests if useLookup is set.
func (r *Repository) CreateFileSet(ctx context.Context, dir string, label string, prune bool, useLookup bool, options fileset.Options) (*fileset.FileSet, error) {
	var lookup metadata.Lookup
	if useLookup {
		lookup = r
	}
	if options.Logger == nil {
		options.Logger = r.log
	}
	return fileset.Make(ctx, dir, label, prune, lookup, options)
}

// Persist writes set as the record of the given volume, replacing any previous one.
func (r *Repository) Persist(set *fileset.FileSet, volumeID string) error {
	path, err := r.pathOf(volumeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := set.WriteFile(path); err != nil {
		return err
	}
	r.sets[volumeID] = set
	r.log.WithFields(logrus.Fields{"volume": volumeID, "entries": set.Len()}).Info("file set persisted")
	return nil
}

// Discard deletes the record of the given volume if there is one.
func (r *Repository) Discard(volumeID string) error {
	path, err := r.pathOf(volumeID)
	if err != nil {
		return err
	}
	delete(r.sets, volumeID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	r.log.WithField("volume", volumeID).Debug("file set discarded")
	return nil
}

// Validate tells whether volumeID can name a record in the repository.
func (r *Repository) Validate(volumeID string) error {
	_, err := r.pathOf(volumeID)
	return err
}

// Exists checks for a persisted record regardless of any filtering.
func (r *Repository) Exists(volumeID string) bool {
	path, err := r.pathOf(volumeID)
	if err != nil {
		return false
	}
	_, err = os.Lstat(path)
	return err == nil
}

// NextFreeVolumeID is the lowest positive integer that does not have a persisted record.
func (r *Repository) NextFreeVolumeID() (string, error) {
	for n := 1; n > 0; n++ {
		id := strconv.Itoa(n)
		if !r.Exists(id) {
			return id, nil
		}
	}
	return "", errors.New("volume IDs exhausted")
}

func (r *Repository) pathOf(volumeID string) (string, error) {
	native := filepath.FromSlash(volumeID)
	if volumeID == "" || !filepath.IsLocal(native) || fileset.IsWorkInProgress(volumeID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVolumeID, volumeID)
	}
	return filepath.Join(r.root, native), nil
}
