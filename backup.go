package hdb

import (
	"context"
	"errors"

	"github.com/n2code/hdb/internal/fileset"
	out "github.com/n2code/hdb/internal/output"
	"github.com/n2code/hdb/internal/repository"
	"github.com/n2code/hdb/internal/volume"
	"github.com/sirupsen/logrus"
)

func (h *hdb) Backup(ctx context.Context, request BackupRequest, prompter Prompter, runner Runner) (summary Summary, err error) {
	host, err := h.hostName()
	if err != nil {
		return summary, newCommandError("determining host name", err)
	}
	sourceDir, err := fileset.NormalizeDir(request.SourceDir)
	if err != nil {
		return summary, newCommandError("invalid source directory", err)
	}
	filesystem, err := volume.ParseFilesystemKind(request.Filesystem)
	if err != nil {
		return summary, newCommandError("invalid request", err)
	}
	kind := volume.Plain
	if request.Encrypt {
		kind = volume.Encrypted
	}

	repo, err := repository.Open(h.groupDir, h.log)
	if err != nil {
		return summary, newCommandError("opening repository", err)
	}
	vol, err := volume.New(volume.Settings{
		Kind:       kind,
		Filesystem: filesystem,
		Device:     request.Device,
		Label:      request.Label,
		MountPoint: request.MountPoint,
		Eject:      request.Eject,
		Logger:     h.log,
	}, runner)
	if err != nil {
		return summary, newCommandError("invalid request", err)
	}

	if err = vol.ResolveID(prompter, repo); err != nil {
		return summary, newCommandError("selecting volume", err)
	}
	summary.VolumeID = vol.ID()
	log := h.log.WithFields(logrus.Fields{"volume": vol.ID(), "dir": sourceDir})

	if err = repo.Filter([]string{sourceDir}, host); err != nil {
		return summary, newCommandError("scoping repository", err)
	}
	log.WithField("volumes", len(repo.VolumeIDs())).Debug("considering earlier volumes of this directory")

	if kind == volume.Encrypted {
		if err = vol.SetPassphrase(prompter); err != nil {
			return summary, newCommandError("setting passphrase", err)
		}
	}

	if err = vol.Prepare(ctx); err != nil {
		return summary, newCommandError("preparing volume", err)
	}
	defer func() {
		if releaseErr := vol.Release(ctx); releaseErr != nil {
			err = errors.Join(err, newCommandError("releasing volume", releaseErr))
		}
		if err == nil {
			if ejectErr := vol.Eject(ctx); ejectErr != nil {
				err = newCommandError("ejecting volume", ejectErr)
			}
		}
	}()

	//the volume was just erased so its old record is void
	if err = repo.Discard(vol.ID()); err != nil {
		return summary, newCommandError("discarding old record", err)
	}

	options := fileset.Options{
		Logger:            log,
		PreserveAtime:     request.PreserveAtime,
		PreserveOwnership: request.PreserveOwnership,
		Host:              host,
	}
	set, err := repo.CreateFileSet(ctx, sourceDir, request.Label, !request.KeepLeadingDir, request.Lookup, options)
	if err != nil {
		return summary, newCommandError("recording source directory", err)
	}
	if request.SkipBackedUp {
		before := set.Len()
		repo.ExcludeBackedUp(set)
		summary.Excluded = before - set.Len()
		log.WithField("excluded", summary.Excluded).Info("left out entries that are backed up already")
	}

	h.logFreeSpace(vol, log)
	h.Print(out.Normal, "Copying %s onto volume %s\n", out.Count(set.Len(), "entry", "entries"), vol.ID())
	summary.Copy, err = set.Copy(ctx, vol.MountPoint(), options)
	if err != nil {
		return summary, newCommandError("copying", err)
	}
	h.logFreeSpace(vol, log)

	if err = repo.Persist(set, vol.ID()); err != nil {
		return summary, newCommandError("recording volume", err)
	}
	summary.Recorded = set.Len()
	h.Print(out.Normal, "Volume %s: %s\n", vol.ID(), summary.Copy)
	if summary.Copy.OutOfSpace > 0 {
		h.Print(out.Required, "%s did not fit onto volume %s, back them up onto another volume\n",
			out.Count(summary.Copy.OutOfSpace, "entry", "entries"), vol.ID())
	}
	return summary, nil
}

func (h *hdb) logFreeSpace(vol *volume.Volume, log logrus.FieldLogger) {
	space, err := vol.FreeSpace()
	if err != nil {
		log.WithError(err).Debug("free space unknown")
		return
	}
	log.WithField("space", space.String()).Info("volume capacity")
}
