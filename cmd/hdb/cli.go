package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/n2code/hdb"
	"github.com/n2code/hdb/cmd/hdb/flags"
	"github.com/n2code/hdb/internal/config"
	"github.com/n2code/hdb/internal/output"
	"github.com/n2code/hdb/internal/volume"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type CliRequest struct {
	verbose    bool
	quiet      bool
	debug      bool
	groupDir   string
	action     string
	actionArgs []string
	backup     hdb.BackupRequest
}

func parseFlags(args []string, settings config.Settings, errOut io.Writer) (request *CliRequest, exitCode int) {
	flagSet := pflag.NewFlagSet("hdb", pflag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprint(errOut, `
Usage:
   hdb [-v|-q|-d] [-g DIR] <ACTION> [FLAG...] [ARG...]

 ACTIONs:  backup  volumes  list  locate

`)
		flagSet.PrintDefaults()
		fmt.Fprint(errOut, `
 FLAG(s) and ARG(s) are action-specific.
 You can read the help on any action:
    hdb <ACTION> -h

`)
	}

	request = &CliRequest{}
	var helpRequested bool
	flagSet.BoolVarP(&request.verbose, flags.Verbose, "v", false, "Output more information, e.g. every external command")
	flagSet.BoolVarP(&request.quiet, flags.Quiet, "q", false, "Output only warnings, errors, and requested information")
	flagSet.BoolVarP(&request.debug, flags.Debug, "d", false, "Output debugging information about every single entry")
	flagSet.BoolVarP(&helpRequested, flags.Help, "h", false, "Display general usage help")
	flagSet.StringVarP(&request.groupDir, flags.GroupDir, "g", settings.GroupDir, "Group metadata directory holding one record per volume")

	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(errOut, "%s\nUsage help: hdb -h\n", err)
			exitCode = 2
			request = nil
		}
	}()

	if err = flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			err = nil
			request = nil
		}
		return
	}
	if helpRequested {
		flagSet.Usage()
		request = nil
		return
	}
	if flagSet.NArg() == 0 {
		err = errors.New("no action given")
		return
	}
	modes := 0
	for _, set := range []bool{request.verbose, request.quiet, request.debug} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		err = errors.New("quiet, verbose, and debug mode are mutually exclusive")
		return
	}

	request.action = flagSet.Arg(0)
	actionArgs := flagSet.Args()[1:]
	actionParams := pflag.NewFlagSet(request.action, pflag.ContinueOnError)
	actionParams.SetOutput(errOut)
	argumentSpecification := ""
	actionDescription := ""
	actionParams.Usage = func() {
		fmt.Fprintf(errOut, "\nUsage of %s action:\n   hdb [MODE] %s [FLAG...]%s\n\n  %s\n\n", request.action, request.action, argumentSpecification, actionDescription)
		actionParams.PrintDefaults()
		fmt.Fprintln(errOut)
	}

	expectedArgs := 0
	var skipEject bool
	switch request.action {
	case "backup":
		argumentSpecification = " DEVICE SOURCEDIR"
		actionDescription = "Erase the medium in DEVICE and copy SOURCEDIR onto it, as much as fits."
		b := &request.backup
		actionParams.BoolVarP(&b.Encrypt, flags.BackupEncrypt, "e", settings.Encrypt, "Encrypt the medium using LUKS cryptsetup")
		actionParams.StringVarP(&b.Label, flags.BackupLabel, "l", "", "Label for human consumption, required")
		actionParams.BoolVarP(&b.Lookup, flags.BackupLookup, "L", settings.Lookup, "Reuse digests recorded on other volumes for unchanged files")
		actionParams.BoolVarP(&skipEject, flags.BackupSkipEject, "s", !settings.Eject, "Skip ejecting the medium on successful completion")
		actionParams.StringVarP(&b.Filesystem, flags.BackupFilesystem, "f", settings.Filesystem, "Type of file system: ext2, ext3, ext4, reiserfs")
		actionParams.StringVarP(&b.MountPoint, flags.BackupMountPoint, "m", settings.MountPoint, "Mount point for the medium")
		actionParams.BoolVar(&b.SkipBackedUp, flags.BackupSkipBackedUp, settings.SkipBackedUp, "Leave out entries recorded unchanged on other volumes")
		actionParams.BoolVar(&b.KeepLeadingDir, flags.BackupKeepLeadingDir, false, "Record absolute paths instead of paths relative to SOURCEDIR")
		actionParams.BoolVar(&b.PreserveAtime, flags.BackupPreserveAtime, settings.PreserveAtime, "Restore access times of source files after reading")
		actionParams.BoolVar(&b.PreserveOwnership, flags.BackupPreserveOwnership, settings.PreserveOwnership, "Copy owner and group (requires privileges)")
		expectedArgs = 2
	case "volumes":
		actionDescription = "List all recorded volumes."
	case "list":
		argumentSpecification = " VOLUME"
		actionDescription = "Show the record of the given VOLUME as a tree."
		expectedArgs = 1
	case "locate":
		argumentSpecification = " PATH"
		actionDescription = "List the volumes holding PATH (relative to the backed up directory).\n" +
			"  If PATH is an existing file, volumes holding the same content are listed instead."
		expectedArgs = 1
	default:
		err = fmt.Errorf(`unknown action "%s"`, request.action)
		return
	}

	if err = actionParams.Parse(actionArgs); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			err = nil
			request = nil
		}
		return
	}
	if actionParams.NArg() != expectedArgs {
		err = fmt.Errorf("bad number of arguments, %d expected", expectedArgs)
		return
	}
	request.actionArgs = actionParams.Args()
	if request.action == "backup" {
		request.backup.Device = request.actionArgs[0]
		request.backup.SourceDir = request.actionArgs[1]
		request.backup.Eject = !skipEject
		//cryptsetup needs the label to name the mapping
		if request.backup.Label == "" {
			err = errors.New("no label given")
		}
	}
	return
}

func (rq *CliRequest) apiConfig(colors bool) hdb.Config {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: !colors, FullTimestamp: true})

	config := hdb.Config{GroupDir: rq.groupDir, Logger: log, UseColors: colors}
	switch {
	case rq.verbose:
		config.Verbosity = hdb.VerboseMode
	case rq.quiet:
		config.Verbosity = hdb.QuietMode
	case rq.debug:
		config.Verbosity = hdb.DebugMode
	}
	return config
}

func (rq *CliRequest) execute(ctx context.Context, colors bool) error {
	api, err := hdb.Open(rq.apiConfig(colors))
	if err != nil {
		return err
	}

	switch rq.action {
	case "backup":
		prompter := NewTerminalPrompter(os.Stdin, os.Stdout)
		runner := volume.ExecRunner{Stderr: os.Stderr}
		if rq.verbose || rq.debug {
			runner.Stdout = os.Stdout
		}
		_, err = api.Backup(ctx, rq.backup, prompter, runner)
		return err
	case "volumes":
		return api.PrintVolumes()
	case "list":
		return api.PrintVolume(rq.actionArgs[0])
	case "locate":
		return api.PrintLocations(rq.actionArgs[0])
	default:
		panic("bad action")
	}
}

func main() {
	colors := term.IsTerminal(int(os.Stderr.Fd()))

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rq, rc := parseFlags(os.Args[1:], settings, os.Stderr)
	if rc != 0 || rq == nil {
		os.Exit(rc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	err = rq.execute(ctx, colors)
	stop()
	if err != nil {
		message := err.Error()
		if colors {
			message = output.TerminalFormatAsError(message)
		}
		fmt.Fprintln(os.Stderr, message)
		if rq.action == "backup" && !rq.quiet {
			hint := "(medium not ejected, record of the volume kept unless it was replaced)"
			if colors {
				hint = output.TerminalFormatAsDim(hint)
			}
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
	os.Exit(0)
}
