package volume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

type step int

const (
	luksFormat step = iota
	luksOpen
	makeFilesystem
	mount
)

// steps is the preparation sequence for a kind of volume, from the blank device to the mounted file system.
func steps(kind Kind) []step {
	if kind == Encrypted {
		return []step{luksFormat, luksOpen, makeFilesystem, mount}
	}
	return []step{makeFilesystem, mount}
}

// newUnmountBackOff paces retries of a failed unmount, the file system may still be busy shortly after copying.
var newUnmountBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (v *Volume) instructions(s step) (cmd Command, reached State, undo *release) {
	device := v.settings.Device
	label := v.settings.Label
	switch s {
	case luksFormat:
		cmd = Command{Description: "Formatting encrypted container on " + device, Name: "cryptsetup", Args: []string{"luksFormat", device, "-"}, Stdin: v.passphrase}
		reached = Formatted
	case luksOpen:
		cmd = Command{Description: "Opening encrypted container on " + device, Name: "cryptsetup", Args: []string{"--key-file", "-", "luksOpen", device, label}, Stdin: v.passphrase}
		reached = Opened
		undo = &release{description: "Closing encrypted container", command: Command{Description: "Closing encrypted container " + label, Name: "cryptsetup", Args: []string{"luksClose", label}}, reached: Closed}
	case makeFilesystem:
		cmd = Command{Description: "Making file system on " + v.MappedDevice(), Name: "mkfs", Args: v.settings.Filesystem.MkfsArgs(label, v.MappedDevice())}
		reached = FilesystemCreated
	case mount:
		cmd = Command{Description: fmt.Sprintf("Mounting %s on %s", v.MappedDevice(), v.settings.MountPoint), Name: "mount", Args: []string{v.MappedDevice(), v.settings.MountPoint}}
		reached = Mounted
		undo = &release{description: "Unmounting", command: Command{Description: "Unmounting " + v.settings.MountPoint, Name: "umount", Args: []string{v.settings.MountPoint}}, reached: Unmounted, retry: true}
	}
	return
}

func (v *Volume) run(ctx context.Context, cmd Command) error {
	v.log.Info(cmd.Description)
	v.log.WithField("command", cmd.String()).Debug("running")
	return v.runner.Run(ctx, cmd)
}

// Prepare erases the device and mounts a new file system on it.
// If any step fails (or ctx is cancelled) everything acquired so far is released before returning.
func (v *Volume) Prepare(ctx context.Context) (err error) {
	ready := IDResolved
	if v.settings.Kind == Encrypted {
		ready = PassphraseSet
	}
	if v.state != ready {
		return fmt.Errorf("%w: cannot prepare %s volume in state %s", ErrIllegalTransition, v.settings.Kind, v.state)
	}
	defer func() {
		v.passphrase = ""
		if err != nil {
			v.failed = true
			if releaseErr := v.Release(ctx); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
		}
	}()

	for _, s := range steps(v.settings.Kind) {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, reached, undo := v.instructions(s)
		if err := v.run(ctx, cmd); err != nil {
			return err
		}
		v.state = reached
		if undo != nil {
			v.releases = append(v.releases, *undo)
		}
	}
	return nil
}

// Release undoes all acquired resources in reverse order. It is not affected by cancellation of ctx.
// Every release is attempted even if an earlier one failed, all failures are reported.
func (v *Volume) Release(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for len(v.releases) > 0 {
		last := v.releases[len(v.releases)-1]
		v.releases = v.releases[:len(v.releases)-1]
		if err := v.undo(ctx, last); err != nil {
			v.log.WithError(err).Error(last.description + " failed")
			errs = append(errs, err)
			continue
		}
		v.state = last.reached
	}
	if len(errs) > 0 {
		v.failed = true
	}
	return errors.Join(errs...)
}

func (v *Volume) undo(ctx context.Context, r release) error {
	if !r.retry {
		return v.run(ctx, r.command)
	}
	notify := func(err error, wait time.Duration) {
		v.log.WithError(err).WithField("wait", wait).Warn(r.description + " failed, retrying")
	}
	return backoff.RetryNotify(func() error {
		return v.run(ctx, r.command)
	}, newUnmountBackOff(), notify)
}

// Eject hands the physical device back to the operator after a successful preparation and release.
// It does nothing if ejecting is disabled.
func (v *Volume) Eject(ctx context.Context) error {
	if !v.settings.Eject {
		v.log.Debug("ejecting disabled, medium stays inserted")
		return nil
	}
	released := Unmounted
	if v.settings.Kind == Encrypted {
		released = Closed
	}
	if v.state != released || v.failed || len(v.releases) > 0 {
		return fmt.Errorf("%w: cannot eject in state %s", ErrIllegalTransition, v.state)
	}
	cmd := Command{Description: "Ejecting " + v.settings.Device, Name: "eject", Args: []string{v.settings.Device}}
	if err := v.run(ctx, cmd); err != nil {
		return err
	}
	v.state = Ejected
	v.log.WithField("volume", v.id).Info("medium ejected")
	return nil
}
