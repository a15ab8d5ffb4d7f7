package hdb

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/n2code/hdb/internal/metadata"
	out "github.com/n2code/hdb/internal/output"
	"github.com/n2code/hdb/internal/repository"
)

const shortDigestLength = 16

func (h *hdb) openRepository() (*repository.Repository, error) {
	repo, err := repository.Open(h.groupDir, h.log)
	if err != nil {
		return nil, newCommandError("opening repository", err)
	}
	return repo, nil
}

func (h *hdb) PrintVolumes() error {
	repo, err := h.openRepository()
	if err != nil {
		return err
	}
	ids := repo.VolumeIDs()
	h.Print(out.Normal, "Repository: %s\n\n", repo.Root())
	for _, id := range ids {
		set, _ := repo.Get(id)
		h.Print(out.Required, "%-8s %-20s %s:%s (%s)\n", id, set.Label, set.Host, set.SourceDir, out.Count(set.Len(), "entry", "entries"))
	}
	if len(ids) == 0 {
		h.Print(out.Normal, "<no volumes>\n")
	} else {
		h.Print(out.Normal, "\n%s in total\n", out.Count(len(ids), "volume", "volumes"))
	}
	return nil
}

func (h *hdb) PrintVolume(volumeID string) error {
	repo, err := h.openRepository()
	if err != nil {
		return err
	}
	set, exists := repo.Get(volumeID)
	if !exists {
		return newCommandError(fmt.Sprintf("volume %s", volumeID), ErrUnknownVolume)
	}

	h.Print(out.Normal, "Label:   %s\n", set.Label)
	h.Print(out.Normal, "Host:    %s\n", set.Host)
	h.Print(out.Normal, "Dir:     %s\n", set.SourceDir)
	h.Print(out.Normal, "Prune:   %t\n", set.Prune)
	h.Print(out.Normal, "Version: %s\n\n", set.Version)

	entries := set.Entries()
	parents := make(map[string]bool)
	for _, entry := range entries {
		for dir := path.Dir(entry.ArchivePath); dir != "." && dir != "/"; dir = path.Dir(dir) {
			parents[dir] = true
		}
	}
	tree := out.NewVisualFileTree("volume " + volumeID)
	for _, entry := range entries {
		if parents[entry.ArchivePath] {
			tree.InsertDir(entry.ArchivePath)
			continue
		}
		tree.InsertPath(entry.ArchivePath, "")
	}
	h.Print(out.Required, "%s", tree.Render())
	h.Print(out.Normal, "\n%s\n", out.Count(len(entries), "entry", "entries"))
	return nil
}

func (h *hdb) PrintLocations(query string) error {
	repo, err := h.openRepository()
	if err != nil {
		return err
	}

	spec := metadata.MatchPath(query)
	if info, statErr := os.Stat(query); statErr == nil && info.Mode().IsRegular() {
		digest, err := metadata.HashFile(query, false)
		if err != nil {
			return newCommandError(fmt.Sprintf("hashing %s", query), err)
		}
		h.Print(out.Verbose, "Searching content %s of local file %s\n", digest, query)
		spec = metadata.Spec{}.WithDigest(digest)
	}

	hits := repo.Locate(spec)
	for _, hit := range hits {
		h.Print(out.Required, "%-8s %s  %s  %s\n",
			hit.VolumeID,
			shortDigest(hit.Entry.Digest),
			time.Unix(int64(hit.Entry.MTime), 0).Format(time.DateTime),
			hit.Entry.ArchivePath)
	}
	if len(hits) == 0 {
		h.Print(out.Normal, "%s not found on any volume\n", query)
	}
	return nil
}

func shortDigest(d metadata.Digest) string {
	return string(d[:shortDigestLength])
}
