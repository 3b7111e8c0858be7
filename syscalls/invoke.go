package syscalls

import (
	"context"

	"github.com/evanphx/malta/device"
	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/log"
)

type serialkey struct{}

// WithSerial makes s the line the I/O syscalls run against.
func WithSerial(ctx context.Context, s *device.Serial) context.Context {
	return context.WithValue(ctx, serialkey{}, s)
}

func getSerial(ctx context.Context) (*device.Serial, bool) {
	if v := ctx.Value(serialkey{}); v != nil {
		return v.(*device.Serial), true
	}

	return nil, false
}

type Invoker struct {
	Kernel *kernel.Kernel
	Serial *device.Serial
}

// InvokeSyscall runs the trap described by args for the task in ctx, or
// the current process when ctx carries none. A call that suspends its
// caller leaves the result registers alone; anything else is stored in
// the caller's first result register and returned.
func (i *Invoker) InvokeSyscall(ctx context.Context, args SysArgs) int32 {
	if args.Index < 0 || int(args.Index) >= len(Syscalls) || Syscalls[args.Index] == nil {
		log.L.Trace("syscall-unknown", "index", args.Index)
		return int32(kernel.ErrInvalidId)
	}

	f := Syscalls[args.Index]

	t, ok := kernel.GetTask(ctx)
	if !ok {
		cur := i.Kernel.Current()
		if cur == nil {
			log.L.Error("syscall with no running process", "index", args.Index)
			return int32(kernel.ErrGeneralFailure)
		}

		t = i.Kernel.Task(cur)
		ctx = kernel.SetTask(ctx, t)
	}

	if i.Serial != nil {
		ctx = WithSerial(ctx, i.Serial)
	}

	pid := t.Pid()

	ret := f(ctx, log.L.With("pid", pid), t, args)

	i.Kernel.Return(t.PCB, ret)

	return ret
}
