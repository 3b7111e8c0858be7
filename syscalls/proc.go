package syscalls

import (
	"context"

	"github.com/evanphx/malta/kernel"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func sysChangePriority(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	var (
		pid      = args.Args.R0
		priority = args.Args.R1
	)

	if err := t.Kernel.ChangePriority(int(pid), int(priority)); err != nil {
		return errno(l, "change-priority", err)
	}

	return 0
}

// sysProcessInfo copies the bookkeeping of R0 into Info.
func sysProcessInfo(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	var (
		pid = args.Args.R0
		out = args.Args.Info
	)

	if out == nil {
		return errno(l, "process-info", errors.Wrap(kernel.ErrNullArgument, "info buffer"))
	}

	info, err := t.Kernel.Snapshot(int(pid))
	if err != nil {
		return errno(l, "process-info", err)
	}

	*out = info

	return 0
}

func sysAddSupervised(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	if err := t.Kernel.AddSupervised(t.Pid(), int(args.Args.R0)); err != nil {
		return errno(l, "add-supervised", err)
	}

	return 0
}

func sysRemoveSupervised(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	if err := t.Kernel.RemoveSupervised(t.Pid(), int(args.Args.R0)); err != nil {
		return errno(l, "remove-supervised", err)
	}

	return 0
}

func init() {
	Syscalls[SysChangePriority] = sysChangePriority
	Syscalls[SysProcessInfo] = sysProcessInfo
	Syscalls[SysAddSupervised] = sysAddSupervised
	Syscalls[SysRemoveSupervised] = sysRemoveSupervised
}
