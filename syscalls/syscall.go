package syscalls

import (
	"context"

	"github.com/evanphx/malta/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

const (
	SysExit = iota + 1
	SysCreate
	SysWait
	SysChangePriority
	SysProcessInfo
	SysSend
	SysReceive
	SysGetPid
	SysYield
	SysAddSupervised
	SysRemoveSupervised
)

type SysArgs struct {
	Index int32
	Args  SyscallRequest
}

// SyscallRequest carries the argument registers of a trap along with the
// memory the caller handed in by reference.
type SyscallRequest struct {
	R0, R1, R2, R3 int32

	Name   string
	Params []string
	Buf    []byte
	Info   *kernel.ProcessInfo
}

var Syscalls [64]func(context.Context, hclog.Logger, *kernel.Task, SysArgs) int32

// errno turns err into the negative code a syscall returns.
func errno(l hclog.Logger, call string, err error) int32 {
	code := kernel.Code(err)

	if code == kernel.ErrGeneralFailure {
		l.Error("syscall failed", "call", call, "error", err)
	} else {
		l.Trace("syscall-error", "call", call, "error", err)
	}

	return int32(code)
}
