package hdb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	out "github.com/n2code/hdb/internal/output"
	"github.com/sirupsen/logrus"
)

type VerbosityLevel int

// Config holds the switches that concern all calls to the hdb API.
// The zero value is a sensible default except for GroupDir which is required.
type Config struct {
	GroupDir  string //repository of volume records
	Verbosity VerbosityLevel
	Logger    *logrus.Logger //optional, its level is set according to Verbosity
	Output    io.Writer      //optional, receives requested information, defaults to stdout
	Host      string         //optional, defaults to the system host name
	UseColors bool
}

const (
	DefaultVerbosity VerbosityLevel = iota //normal level of information, all noteworthy facts without too much noise
	VerboseMode                            //exhaustive information about what is happening, e.g. every external command
	QuietMode                              //only output warnings, errors, and information that was explicitly requested (-> Print* functions)
	DebugMode                              //everything, including every single entry
)

var logLevels = map[VerbosityLevel]logrus.Level{
	DefaultVerbosity: logrus.InfoLevel,
	VerboseMode:      logrus.DebugLevel,
	QuietMode:        logrus.WarnLevel,
	DebugMode:        logrus.TraceLevel,
}

// Open creates a handle on the repository in the configured group directory. The directory is created on first use.
func Open(config Config) (Hdb, error) {
	if config.GroupDir == "" {
		return nil, newCommandError("no group directory configured", nil)
	}
	groupDir, err := filepath.Abs(config.GroupDir)
	if err != nil {
		return nil, newCommandError("invalid group directory", err)
	}
	if info, err := os.Stat(groupDir); err == nil && !info.IsDir() {
		return nil, newCommandError(fmt.Sprintf("group directory %s", groupDir), ErrNotADirectory)
	}
	return makeHdb(config, groupDir), nil
}

type hdb struct {
	groupDir string //absolute, system-native path
	host     string //empty means the system host name
	log      *logrus.Logger
	printer  out.Printer
}

func makeHdb(config Config, groupDir string) (instance *hdb) {
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}
	log.SetLevel(logLevels[config.Verbosity])

	terminal := config.Output
	if terminal == nil {
		terminal = os.Stdout
	}
	classes := []out.Class{out.Required, out.Error}
	switch config.Verbosity {
	case VerboseMode, DebugMode:
		classes = append(classes, out.Verbose)
		fallthrough
	case DefaultVerbosity:
		classes = append(classes, out.Normal)
	}

	return &hdb{
		groupDir: groupDir,
		host:     config.Host,
		log:      log,
		printer:  out.NewPrinterTo(terminal, log.Out, classes, config.UseColors),
	}
}

func (h *hdb) Print(class out.Class, format string, values ...interface{}) {
	h.printer.Out(class, format, values...)
}

func (h *hdb) hostName() (string, error) {
	if h.host != "" {
		return h.host, nil
	}
	return os.Hostname()
}
