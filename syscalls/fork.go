package syscalls

import (
	"context"

	"github.com/evanphx/malta/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// sysCreate starts a program. The current process becomes the supervisor
// of the new one.
func sysCreate(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	var (
		name     = args.Args.Name
		priority = args.Args.R0
		params   = args.Args.Params
	)

	pid, err := t.Kernel.CreateProcess(name, int(priority), params)
	if err != nil {
		return errno(l, "create", err)
	}

	l.Trace("create-process", "child", pid, "name", name)

	return int32(pid)
}

// sysWait collects a supervised child, R0 naming it or -1 for any. When
// the child is still running the caller is suspended until it exits.
func sysWait(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	var (
		child = args.Args.R0
	)

	res, done, err := t.Wait(int(child))
	if err != nil {
		return errno(l, "wait", err)
	}

	if !done {
		l.Trace("wait-blocked", "child", child)
		return 0
	}

	t.Kernel.DeliverStatus(t.PCB, int32(res.Pid), res.Status)

	l.Trace("wait-found-child", "child", res.Pid, "status", res.Status)

	return int32(res.Pid)
}

func init() {
	Syscalls[SysCreate] = sysCreate
	Syscalls[SysWait] = sysWait
}
