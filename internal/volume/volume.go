// Package volume drives the removable medium through its lifecycle:
// identification, optional encryption, file system creation, mounting, and finally the release and ejection.
// Every acquired resource is released in reverse order, also after failures and cancellation.
package volume

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrAborted           = errors.New("aborted by user decision")
	ErrIllegalTransition = errors.New("illegal volume state transition")
)

type Kind int

const (
	Plain Kind = iota
	Encrypted
)

func (k Kind) String() string {
	if k == Encrypted {
		return "encrypted"
	}
	return "plain"
}

type FilesystemKind string

const (
	Ext2     FilesystemKind = "ext2"
	Ext3     FilesystemKind = "ext3"
	Ext4     FilesystemKind = "ext4"
	ReiserFS FilesystemKind = "reiserfs"
)

var filesystemKinds = []FilesystemKind{Ext2, Ext3, Ext4, ReiserFS}

func ParseFilesystemKind(name string) (FilesystemKind, error) {
	for _, kind := range filesystemKinds {
		if string(kind) == name {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown file system type %q", name)
}

// MkfsArgs are the arguments to mkfs for a quiet run that labels the new file system.
func (k FilesystemKind) MkfsArgs(label string, device string) []string {
	labelFlag := "-L"
	if k == ReiserFS {
		labelFlag = "-l" //mkfs.reiserfs does not take -L
	}
	return []string{"-t", string(k), labelFlag, label, "-q", device}
}

type State int

const (
	Unselected State = iota
	IDResolved
	PassphraseSet
	Formatted
	Opened
	FilesystemCreated
	Mounted
	Unmounted
	Closed
	Ejected
)

var stateNames = map[State]string{
	Unselected:        "unselected",
	IDResolved:        "ID resolved",
	PassphraseSet:     "passphrase set",
	Formatted:         "formatted",
	Opened:            "opened",
	FilesystemCreated: "file system created",
	Mounted:           "mounted",
	Unmounted:         "unmounted",
	Closed:            "closed",
	Ejected:           "ejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Prompter asks the operator. Passphrase is expected to ask repeatedly until two consecutive answers match.
type Prompter interface {
	ChooseVolume() (answer string, err error)
	Confirm(question string) (yes bool, err error)
	Passphrase() (string, error)
}

// Registry knows which volume IDs have been used already and which are acceptable at all.
type Registry interface {
	Validate(volumeID string) error
	Exists(volumeID string) bool
	NextFreeVolumeID() (string, error)
}

type Settings struct {
	Kind       Kind
	Filesystem FilesystemKind
	Device     string //physical block device
	Label      string //file system label, also the name of the mapped device if encrypted
	MountPoint string
	Eject      bool
	Logger     logrus.FieldLogger //optional
}

type Volume struct {
	settings   Settings
	runner     Runner
	log        logrus.FieldLogger
	state      State
	id         string
	passphrase string
	releases   []release //executed in reverse order
	failed     bool      //preparation or release did not succeed
}

type release struct {
	description string
	command     Command
	reached     State
	retry       bool
}

func New(settings Settings, runner Runner) (*Volume, error) {
	if _, err := ParseFilesystemKind(string(settings.Filesystem)); err != nil {
		return nil, err
	}
	if settings.Device == "" || settings.MountPoint == "" {
		return nil, errors.New("device and mount point are required")
	}
	if settings.Kind == Encrypted && (settings.Label == "" || strings.ContainsRune(settings.Label, '/')) {
		return nil, fmt.Errorf("encrypted volumes need a label usable as device name, got %q", settings.Label)
	}
	log := settings.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Volume{settings: settings, runner: runner, log: log.WithField("device", settings.Device)}, nil
}

func (v *Volume) State() State {
	return v.state
}

func (v *Volume) ID() string {
	return v.id
}

func (v *Volume) MountPoint() string {
	return v.settings.MountPoint
}

// MappedDevice is where the file system lives: the physical device, or the opened mapping if encrypted.
func (v *Volume) MappedDevice() string {
	if v.settings.Kind == Encrypted {
		return path.Join("/dev/mapper", v.settings.Label)
	}
	return v.settings.Device
}

func (v *Volume) transition(to State, allowed ...State) error {
	for _, from := range allowed {
		if v.state == from {
			v.log.WithFields(logrus.Fields{"from": v.state, "to": to}).Trace("volume state change")
			v.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.state, to)
}

// ResolveID asks the operator which volume was inserted. Zero or nothing selects the next free ID,
// reusing a known ID requires confirmation because its record will be replaced.
func (v *Volume) ResolveID(prompter Prompter, registry Registry) error {
	if v.state != Unselected {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.state, IDResolved)
	}
	answer, err := prompter.ChooseVolume()
	if err != nil {
		return err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || answer == "0" {
		if answer, err = registry.NextFreeVolumeID(); err != nil {
			return err
		}
		v.log.WithField("volume", answer).Warn("new volume ID assigned, please label the medium accordingly")
	} else if err := registry.Validate(answer); err != nil {
		return err
	} else if registry.Exists(answer) {
		confirmed, err := prompter.Confirm(fmt.Sprintf("Are you sure you have inserted volume %s and want to overwrite it?", answer))
		if err != nil {
			return err
		}
		if !confirmed {
			return ErrAborted
		}
		v.log.WithField("volume", answer).Warn("overwriting existing volume")
	}
	v.id = answer
	return v.transition(IDResolved, Unselected)
}

func (v *Volume) SetPassphrase(prompter Prompter) error {
	if v.settings.Kind != Encrypted {
		return fmt.Errorf("%w: %s volumes take no passphrase", ErrIllegalTransition, v.settings.Kind)
	}
	if v.state != IDResolved {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.state, PassphraseSet)
	}
	passphrase, err := prompter.Passphrase()
	if err != nil {
		return err
	}
	if passphrase == "" {
		return errors.New("empty passphrase")
	}
	v.passphrase = passphrase
	return v.transition(PassphraseSet, IDResolved)
}
