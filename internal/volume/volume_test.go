package volume

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	commands []string
	stdins   []string
	failures map[string]int //command prefix -> remaining failures, negative fails forever
	onRun    func(cmd Command)
	ctxErrs  []error
}

func (r *fakeRunner) Run(ctx context.Context, cmd Command) error {
	line := cmd.String()
	r.commands = append(r.commands, line)
	r.stdins = append(r.stdins, cmd.Stdin)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	if r.onRun != nil {
		r.onRun(cmd)
	}
	for prefix, remaining := range r.failures {
		if strings.HasPrefix(line, prefix) && remaining != 0 {
			r.failures[prefix] = remaining - 1
			return &ExitError{Command: cmd, Code: 1, Err: errors.New("simulated failure")}
		}
	}
	return nil
}

type fakePrompter struct {
	volume     string
	confirm    bool
	passphrase string
	questions  []string
}

func (p *fakePrompter) ChooseVolume() (string, error) { return p.volume, nil }
func (p *fakePrompter) Confirm(question string) (bool, error) {
	p.questions = append(p.questions, question)
	return p.confirm, nil
}
func (p *fakePrompter) Passphrase() (string, error) { return p.passphrase, nil }

type fakeRegistry map[string]bool

func (r fakeRegistry) Exists(id string) bool { return r[id] }
func (r fakeRegistry) Validate(id string) error {
	if strings.Contains(id, "..") {
		return errors.New("invalid volume ID")
	}
	return nil
}
func (r fakeRegistry) NextFreeVolumeID() (string, error) {
	for n := 1; ; n++ {
		if id := fmt.Sprint(n); !r[id] {
			return id, nil
		}
	}
}

func withoutRetryDelay(t *testing.T, retries uint64) {
	original := newUnmountBackOff
	t.Cleanup(func() { newUnmountBackOff = original })
	newUnmountBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, retries)
	}
}

func newTestVolume(t *testing.T, kind Kind, runner Runner) *Volume {
	t.Helper()
	log, _ := test.NewNullLogger()
	v, err := New(Settings{
		Kind:       kind,
		Filesystem: Ext4,
		Device:     "/dev/sdx",
		Label:      "backup",
		MountPoint: "/mnt/hdb",
		Eject:      true,
		Logger:     log,
	}, runner)
	require.NoError(t, err)
	return v
}

func readyVolume(t *testing.T, kind Kind, runner Runner) *Volume {
	t.Helper()
	v := newTestVolume(t, kind, runner)
	prompter := &fakePrompter{volume: "0", passphrase: "secret"}
	require.NoError(t, v.ResolveID(prompter, fakeRegistry{}))
	if kind == Encrypted {
		require.NoError(t, v.SetPassphrase(prompter))
	}
	return v
}

var (
	plainPreparation = []string{
		"mkfs -t ext4 -L backup -q /dev/sdx",
		"mount /dev/sdx /mnt/hdb",
	}
	encryptedPreparation = []string{
		"cryptsetup luksFormat /dev/sdx -",
		"cryptsetup --key-file - luksOpen /dev/sdx backup",
		"mkfs -t ext4 -L backup -q /dev/mapper/backup",
		"mount /dev/mapper/backup /mnt/hdb",
	}
)

func TestSteps(t *testing.T) {
	assert.Equal(t, []step{makeFilesystem, mount}, steps(Plain))
	assert.Equal(t, []step{luksFormat, luksOpen, makeFilesystem, mount}, steps(Encrypted))
}

func TestFilesystemKinds(t *testing.T) {
	assert.Equal(t, []string{"-t", "reiserfs", "-l", "x", "-q", "/dev/a"}, ReiserFS.MkfsArgs("x", "/dev/a"))
	assert.Equal(t, []string{"-t", "ext2", "-L", "x", "-q", "/dev/a"}, Ext2.MkfsArgs("x", "/dev/a"))

	kind, err := ParseFilesystemKind("ext3")
	require.NoError(t, err)
	assert.Equal(t, Ext3, kind)
	_, err = ParseFilesystemKind("ntfs")
	assert.Error(t, err)

	_, err = New(Settings{Filesystem: "xfs", Device: "/dev/a", MountPoint: "/mnt"}, &fakeRunner{})
	assert.Error(t, err)
	_, err = New(Settings{Kind: Encrypted, Filesystem: Ext4, Device: "/dev/a", MountPoint: "/mnt"}, &fakeRunner{})
	assert.Error(t, err, "encrypted volumes need a label")
}

func TestResolveID(t *testing.T) {
	registry := fakeRegistry{"1": true, "2": true}

	for answer, expected := range map[string]string{"0": "3", "": "3", " 7 ": "7"} {
		v := newTestVolume(t, Plain, &fakeRunner{})
		prompter := &fakePrompter{volume: answer}
		require.NoError(t, v.ResolveID(prompter, registry))
		assert.Equal(t, expected, v.ID())
		assert.Equal(t, IDResolved, v.State())
		assert.Empty(t, prompter.questions)
	}

	v := newTestVolume(t, Plain, &fakeRunner{})
	prompter := &fakePrompter{volume: "2", confirm: true}
	require.NoError(t, v.ResolveID(prompter, registry))
	assert.Equal(t, "2", v.ID())
	assert.Len(t, prompter.questions, 1)

	v = newTestVolume(t, Plain, &fakeRunner{})
	err := v.ResolveID(&fakePrompter{volume: "2", confirm: false}, registry)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, Unselected, v.State())

	v = newTestVolume(t, Plain, &fakeRunner{})
	prompter = &fakePrompter{volume: "../x", confirm: true}
	assert.Error(t, v.ResolveID(prompter, registry))
	assert.Equal(t, Unselected, v.State())
	assert.Empty(t, prompter.questions)

	v = readyVolume(t, Plain, &fakeRunner{})
	err = v.ResolveID(&fakePrompter{volume: "4"}, registry)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestIllegalTransitions(t *testing.T) {
	runner := &fakeRunner{}
	v := newTestVolume(t, Encrypted, runner)
	assert.True(t, errors.Is(v.Prepare(context.Background()), ErrIllegalTransition))
	assert.True(t, errors.Is(v.SetPassphrase(&fakePrompter{passphrase: "x"}), ErrIllegalTransition))

	require.NoError(t, v.ResolveID(&fakePrompter{volume: "1"}, fakeRegistry{}))
	assert.True(t, errors.Is(v.Prepare(context.Background()), ErrIllegalTransition), "passphrase missing")
	assert.True(t, errors.Is(v.Eject(context.Background()), ErrIllegalTransition))
	assert.Empty(t, runner.commands)

	plain := readyVolume(t, Plain, runner)
	assert.True(t, errors.Is(plain.SetPassphrase(&fakePrompter{passphrase: "x"}), ErrIllegalTransition))
	_, err := plain.FreeSpace()
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestPlainLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	v := readyVolume(t, Plain, runner)

	require.NoError(t, v.Prepare(context.Background()))
	assert.Equal(t, Mounted, v.State())
	assert.Equal(t, plainPreparation, runner.commands)

	require.NoError(t, v.Release(context.Background()))
	assert.Equal(t, Unmounted, v.State())
	require.NoError(t, v.Eject(context.Background()))
	assert.Equal(t, Ejected, v.State())

	expected := append(append([]string{}, plainPreparation...), "umount /mnt/hdb", "eject /dev/sdx")
	assert.Equal(t, expected, runner.commands)
}

func TestEncryptedLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	v := readyVolume(t, Encrypted, runner)
	assert.Equal(t, "/dev/mapper/backup", v.MappedDevice())

	require.NoError(t, v.Prepare(context.Background()))
	require.NoError(t, v.Release(context.Background()))
	assert.Equal(t, Closed, v.State())
	require.NoError(t, v.Eject(context.Background()))

	expected := append(append([]string{}, encryptedPreparation...),
		"umount /mnt/hdb",
		"cryptsetup luksClose backup",
		"eject /dev/sdx", //physical device, not the mapping
	)
	assert.Equal(t, expected, runner.commands)
	assert.Equal(t, []string{"secret", "secret", "", "", "", "", ""}, runner.stdins)
}

func TestEjectDisabled(t *testing.T) {
	runner := &fakeRunner{}
	log, _ := test.NewNullLogger()
	v, err := New(Settings{Filesystem: Ext2, Device: "/dev/sdx", MountPoint: "/mnt", Logger: log}, runner)
	require.NoError(t, err)
	require.NoError(t, v.ResolveID(&fakePrompter{volume: "1"}, fakeRegistry{}))
	require.NoError(t, v.Prepare(context.Background()))
	require.NoError(t, v.Release(context.Background()))
	require.NoError(t, v.Eject(context.Background()))
	assert.Equal(t, Unmounted, v.State())
	assert.NotContains(t, runner.commands, "eject /dev/sdx")
}

func TestFailureAtEachStepReleasesInReverse(t *testing.T) {
	expectedReleases := map[int][]string{
		0: nil,
		1: nil,
		2: {"cryptsetup luksClose backup"},
		3: {"cryptsetup luksClose backup"},
	}
	for failing, releases := range expectedReleases {
		t.Run(encryptedPreparation[failing], func(t *testing.T) {
			runner := &fakeRunner{failures: map[string]int{encryptedPreparation[failing]: -1}}
			v := readyVolume(t, Encrypted, runner)

			err := v.Prepare(context.Background())
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, encryptedPreparation[failing], exitErr.Command.String())

			expected := append(append([]string{}, encryptedPreparation[:failing+1]...), releases...)
			assert.Equal(t, expected, runner.commands)
			assert.True(t, errors.Is(v.Eject(context.Background()), ErrIllegalTransition), "no eject after failure")
			require.NoError(t, v.Release(context.Background()), "nothing left to release")
		})
	}
}

func TestCancellationStillReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{onRun: func(cmd Command) {
		if len(cmd.Args) > 0 && cmd.Args[len(cmd.Args)-1] == "backup" && cmd.Args[0] == "--key-file" {
			cancel() //operator interrupts while the container is being opened
		}
	}}
	v := readyVolume(t, Encrypted, runner)

	err := v.Prepare(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{
		"cryptsetup luksFormat /dev/sdx -",
		"cryptsetup --key-file - luksOpen /dev/sdx backup",
		"cryptsetup luksClose backup",
	}, runner.commands)
	assert.NoError(t, runner.ctxErrs[2], "release must not run with a cancelled context")
	assert.Equal(t, Closed, v.State())
}

func TestUnmountIsRetried(t *testing.T) {
	withoutRetryDelay(t, 5)
	runner := &fakeRunner{failures: map[string]int{"umount": 2}}
	v := readyVolume(t, Plain, runner)
	require.NoError(t, v.Prepare(context.Background()))

	require.NoError(t, v.Release(context.Background()))
	assert.Equal(t, []string{"umount /mnt/hdb", "umount /mnt/hdb", "umount /mnt/hdb"}, runner.commands[2:])
	assert.Equal(t, Unmounted, v.State())
}

func TestReleaseAttemptsEverything(t *testing.T) {
	withoutRetryDelay(t, 1)
	runner := &fakeRunner{failures: map[string]int{"umount": -1}}
	v := readyVolume(t, Encrypted, runner)
	require.NoError(t, v.Prepare(context.Background()))

	err := v.Release(context.Background())
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, []string{"umount /mnt/hdb", "umount /mnt/hdb", "cryptsetup luksClose backup"}, runner.commands[4:])
	assert.True(t, errors.Is(v.Eject(context.Background()), ErrIllegalTransition))
}

func TestFreeSpace(t *testing.T) {
	original := diskUsage
	defer func() { diskUsage = original }()
	var probed string
	diskUsage = func(path string) (*disk.UsageStat, error) {
		probed = path
		return &disk.UsageStat{Path: path, Total: 4 << 30, Free: 1 << 30}, nil
	}

	v := readyVolume(t, Plain, &fakeRunner{})
	require.NoError(t, v.Prepare(context.Background()))
	space, err := v.FreeSpace()
	require.NoError(t, err)
	assert.Equal(t, "/mnt/hdb", probed)
	assert.Equal(t, Space{Total: 4 << 30, Free: 1 << 30}, space)
	assert.Equal(t, "1.0 GiB of 4.0 GiB free", space.String())
}

func TestExecRunner(t *testing.T) {
	runner := ExecRunner{}
	require.NoError(t, runner.Run(context.Background(), Command{Description: "stdin check", Name: "sh", Args: []string{"-c", `test "$(cat)" = secret`}, Stdin: "secret"}))

	err := runner.Run(context.Background(), Command{Description: "failing", Name: "sh", Args: []string{"-c", "exit 3"}})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, err.Error(), "failing")

	err = runner.Run(context.Background(), Command{Description: "missing", Name: "/nonexistent/tool"})
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, -1, exitErr.Code)
}
