package hdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n2code/hdb/internal/fileset"
	"github.com/n2code/hdb/internal/metadata"
	"github.com/n2code/hdb/internal/repository"
	"github.com/n2code/hdb/internal/volume"
)

type CommandError struct {
	message string
	cause   error
}

func (e *CommandError) Error() string {
	var msg strings.Builder
	fmt.Fprint(&msg, e.message)
	if e.cause != nil {
		fmt.Fprint(&msg, ": ", e.cause)
	}
	return msg.String()
}

func (e *CommandError) Unwrap() error {
	return e.cause
}

func newCommandError(message string, cause error) *CommandError {
	return &CommandError{message: message, cause: cause}
}

// Errors to check for with errors.Is, they may be wrapped arbitrarily.
var (
	ErrInconsistentMetadata = metadata.ErrInconsistentMetadata
	ErrIncompatibleFormat   = fileset.ErrIncompatibleFormat
	ErrNotADirectory        = fileset.ErrNotADirectory
	ErrInvalidPath          = fileset.ErrInvalidPath
	ErrNamingConflict       = fileset.ErrNamingConflict
	ErrAborted              = volume.ErrAborted
	ErrIllegalTransition    = volume.ErrIllegalTransition
	ErrInvalidVolumeID      = repository.ErrInvalidVolumeID
	ErrUnknownVolume        = errors.New("unknown volume")
)

// ExitError is the failure of an external program.
type ExitError = volume.ExitError
