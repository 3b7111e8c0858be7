package kernel

import (
	"fmt"

	"github.com/evanphx/malta/loader"
	"github.com/evanphx/malta/memory"
	"github.com/pkg/errors"
)

// Errno is a kernel status code. Every failure is negative; Success is 0.
type Errno int32

const (
	ErrNotFound          Errno = -11
	ErrOutOfMemory       Errno = -10
	ErrUnknownPid        Errno = -9
	ErrUnknownMessageId  Errno = -8
	ErrInvalidPriority   Errno = -7
	ErrOutOfPidSpace     Errno = -6
	ErrOutOfMessageSlots Errno = -5
	ErrNullArgument      Errno = -4
	ErrInvalidArgument   Errno = -3
	ErrInvalidId         Errno = -2
	ErrGeneralFailure    Errno = -1
	Success              Errno = 0
)

// ErrOutOfCapacity is the name the process table and device queues use
// for ErrOutOfMemory.
const ErrOutOfCapacity = ErrOutOfMemory

var errnoNames = map[Errno]string{
	ErrNotFound:          "not found",
	ErrOutOfMemory:       "out of memory",
	ErrUnknownPid:        "unknown pid",
	ErrUnknownMessageId:  "unknown message id",
	ErrInvalidPriority:   "invalid priority",
	ErrOutOfPidSpace:     "out of pid space",
	ErrOutOfMessageSlots: "out of message slots",
	ErrNullArgument:      "null argument",
	ErrInvalidArgument:   "invalid argument",
	ErrInvalidId:         "invalid id",
	ErrGeneralFailure:    "general failure",
	Success:              "success",
}

func (e Errno) Error() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}

	return fmt.Sprintf("errno %d", int32(e))
}

func (e Errno) Failed() bool {
	return e < 0
}

// Code maps err to the status code a syscall hands back to a process.
// Errors from the supporting packages are translated, anything unknown
// is a general failure.
func Code(err error) Errno {
	if err == nil {
		return Success
	}

	switch cause := errors.Cause(err); cause {
	case memory.ErrArenaFull:
		return ErrOutOfMemory
	case memory.ErrSlotNotFound:
		return ErrNotFound
	case loader.ErrUnknownImage:
		return ErrInvalidArgument
	default:
		if e, ok := cause.(Errno); ok {
			return e
		}

		return ErrGeneralFailure
	}
}
