package syscalls

import (
	"context"

	"github.com/evanphx/malta/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysSend(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	s, ok := getSerial(ctx)
	if !ok {
		l.Error("send with no serial line attached")
		return int32(kernel.ErrGeneralFailure)
	}

	if err := s.Send(t.Pid(), args.Args.Buf); err != nil {
		return errno(l, "send", err)
	}

	return 0
}

// sysReceive reads a line into Buf. The byte count arrives once the line
// is complete or Buf is full.
func sysReceive(ctx context.Context, l hclog.Logger, t *kernel.Task, args SysArgs) int32 {
	s, ok := getSerial(ctx)
	if !ok {
		l.Error("receive with no serial line attached")
		return int32(kernel.ErrGeneralFailure)
	}

	if err := s.Receive(t.Pid(), args.Args.Buf); err != nil {
		return errno(l, "receive", err)
	}

	return 0
}

func init() {
	Syscalls[SysSend] = sysSend
	Syscalls[SysReceive] = sysReceive
}
