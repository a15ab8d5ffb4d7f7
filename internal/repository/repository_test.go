package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/n2code/hdb/internal/fileset"
	"github.com/n2code/hdb/internal/metadata"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func digestOf(c string) metadata.Digest {
	return metadata.Digest(strings.Repeat(c, metadata.DigestLength))
}

func makeSet(host string, dir string, entries ...metadata.Metadata) *fileset.FileSet {
	set := &fileset.FileSet{Host: host, SourceDir: dir, Prune: true, Version: fileset.FormatVersion}
	for _, e := range entries {
		set.Push(e)
	}
	return set
}

func TestOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")

	repo, err := Open(root, quietLogger())
	require.NoError(t, err)
	assert.DirExists(t, root)
	assert.Empty(t, repo.VolumeIDs())

	entry := metadata.Metadata{ArchivePath: "f", Digest: digestOf("a"), MTime: 1}
	require.NoError(t, repo.Persist(makeSet("h", "/src", entry), "1"))
	require.NoError(t, repo.Persist(makeSet("h", "/src"), "offsite/7"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2.wip"), []byte("garbage"), 0644))

	reopened, err := Open(root, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "offsite/7"}, reopened.VolumeIDs())
	set, exists := reopened.Get("1")
	require.True(t, exists)
	assert.Equal(t, []metadata.Metadata{entry}, set.Entries())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = Open(file, quietLogger())
	assert.True(t, errors.Is(err, fileset.ErrNotADirectory))
}

func TestFilter(t *testing.T) {
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	target := t.TempDir()
	normalized, err := fileset.NormalizeDir(target)
	require.NoError(t, err)

	require.NoError(t, repo.Persist(makeSet("here", normalized), "1"))
	require.NoError(t, repo.Persist(makeSet("elsewhere", normalized), "2"))
	require.NoError(t, repo.Persist(makeSet("here", "/some/other/dir"), "3"))
	require.NoError(t, repo.Persist(makeSet("here", filepath.Dir(normalized)), "4")) //substring of target, matches as well

	require.NoError(t, repo.Filter([]string{target}, "here"))
	assert.Equal(t, []string{"1", "4"}, repo.VolumeIDs())
	assert.True(t, repo.Exists("2"), "filtering must not touch persisted records")

	require.NoError(t, repo.Filter(nil, ""))
	assert.Equal(t, []string{"1", "4"}, repo.VolumeIDs())

	err = repo.Filter([]string{filepath.Join(target, "missing")}, "")
	assert.True(t, errors.Is(err, fileset.ErrInvalidPath))
}

func TestFindAndLocate(t *testing.T) {
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	old := metadata.Metadata{ArchivePath: "f", Digest: digestOf("a"), MTime: 1}
	current := metadata.Metadata{ArchivePath: "f", Digest: digestOf("b"), MTime: 2}
	other := metadata.Metadata{ArchivePath: "g", Digest: digestOf("c"), MTime: 2}
	require.NoError(t, repo.Persist(makeSet("h", "/d", old, other), "10"))
	require.NoError(t, repo.Persist(makeSet("h", "/d", current), "9"))

	assert.Equal(t, []metadata.Metadata{current, old}, repo.Find(metadata.MatchPath("f")), "volumes are searched in numeric order")
	assert.Equal(t, []metadata.Metadata{current, other}, repo.Find(metadata.Spec{}.WithMTime(2)))
	assert.Equal(t, []Hit{{VolumeID: "10", Entry: other}}, repo.Locate(metadata.MatchPath("g")))
	assert.Empty(t, repo.Locate(metadata.MatchPath("h")))
}

func TestExcludeBackedUp(t *testing.T) {
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	dir := metadata.Metadata{ArchivePath: "dir", Digest: metadata.NADigest, MTime: 1}
	saved := metadata.Metadata{ArchivePath: "dir/saved", Digest: digestOf("a"), MTime: 1}
	changed := metadata.Metadata{ArchivePath: "dir/changed", Digest: digestOf("b"), MTime: 1}
	require.NoError(t, repo.Persist(makeSet("h", "/d", dir, saved, changed), "1"))

	changedAgain := changed
	changedAgain.MTime = 5
	fresh := metadata.Metadata{ArchivePath: "fresh", Digest: digestOf("c"), MTime: 1}
	candidate := makeSet("h", "/d", dir, saved, changedAgain, fresh)

	repo.ExcludeBackedUp(candidate)
	//the unchanged directory stays so that the changed file has a parent on the new volume
	assert.Equal(t, []metadata.Metadata{dir, changedAgain, fresh}, candidate.Entries())
}

func TestValidate(t *testing.T) {
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	for _, id := range []string{"1", "offsite/3"} {
		assert.NoError(t, repo.Validate(id), id)
	}
	for _, id := range []string{"", "../x", "/abs", "1.wip"} {
		assert.ErrorIs(t, repo.Validate(id), ErrInvalidVolumeID, id)
	}
}

func TestCreateFileSetUsesRepositoryAsLookup(t *testing.T) {
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "f"), []byte("x"), 0644))
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	options := fileset.Options{Host: "h"}

	fresh, err := repo.CreateFileSet(context.Background(), source, "l", true, false, options)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.Len())
	observed := fresh.Entries()[0]

	bogus := observed
	bogus.Digest = digestOf("0")
	require.NoError(t, repo.Persist(makeSet("h", fresh.SourceDir, bogus), "1"))

	withLookup, err := repo.CreateFileSet(context.Background(), source, "l", true, true, options)
	require.NoError(t, err)
	assert.Equal(t, []metadata.Metadata{bogus}, withLookup.Entries(), "recorded digest must be trusted")

	withoutLookup, err := repo.CreateFileSet(context.Background(), source, "l", true, false, options)
	require.NoError(t, err)
	assert.Equal(t, []metadata.Metadata{observed}, withoutLookup.Entries())

	conflicting := bogus
	conflicting.Digest = digestOf("1")
	require.NoError(t, repo.Persist(makeSet("h", fresh.SourceDir, conflicting), "2"))
	_, err = repo.CreateFileSet(context.Background(), source, "l", true, true, options)
	assert.True(t, errors.Is(err, metadata.ErrInconsistentMetadata))
}

func TestPersistAndDiscard(t *testing.T) {
	root := t.TempDir()
	repo, err := Open(root, quietLogger())
	require.NoError(t, err)

	require.NoError(t, repo.Persist(makeSet("h", "/d"), "nested/id"))
	assert.FileExists(t, filepath.Join(root, "nested", "id"))
	assert.True(t, repo.Exists("nested/id"))

	require.NoError(t, repo.Discard("nested/id"))
	assert.False(t, repo.Exists("nested/id"))
	_, exists := repo.Get("nested/id")
	assert.False(t, exists)
	require.NoError(t, repo.Discard("nested/id"), "discarding twice is fine")

	for _, invalid := range []string{"", "../escape", "/absolute", "x.wip"} {
		err := repo.Persist(makeSet("h", "/d"), invalid)
		assert.True(t, errors.Is(err, ErrInvalidVolumeID), invalid)
	}
}

func TestNextFreeVolumeID(t *testing.T) {
	repo, err := Open(t.TempDir(), quietLogger())
	require.NoError(t, err)

	next, err := repo.NextFreeVolumeID()
	require.NoError(t, err)
	assert.Equal(t, "1", next)

	require.NoError(t, repo.Persist(makeSet("h", "/d"), "1"))
	require.NoError(t, repo.Persist(makeSet("other", "/d"), "2"))
	require.NoError(t, repo.Persist(makeSet("h", "/d"), "4"))
	require.NoError(t, repo.Filter(nil, "h"))

	next, err = repo.NextFreeVolumeID()
	require.NoError(t, err)
	assert.Equal(t, "3", next, "filtered volumes are still taken")
}
