package syscalls

import (
	"context"

	"github.com/evanphx/malta/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysExit(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	if err := t.Exit(args.Args.R0); err != nil {
		return errno(l, "exit", err)
	}

	return 0
}

func sysYield(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	next := t.Kernel.Yield()

	if next != nil {
		l.Trace("yield", "next", next.Pid())
	}

	return 0
}

func sysGetPid(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	return int32(t.Pid())
}

func init() {
	Syscalls[SysExit] = sysExit
	Syscalls[SysYield] = sysYield
	Syscalls[SysGetPid] = sysGetPid
}
