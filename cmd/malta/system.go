package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/malta/config"
	"github.com/evanphx/malta/device"
	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/syscalls"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type options struct {
	children int
	lives    int

	// dump, when set, receives the process table once the supervisor has
	// started its children.
	dump io.Writer
}

// system is a booted kernel with its serial line, and the programs
// standing in for the code of each live process.
type system struct {
	L hclog.Logger

	ctx    context.Context
	cfg    *config.Config
	opts   options
	k      *kernel.Kernel
	port   *device.SimPort
	serial *device.Serial
	inv    *syscalls.Invoker
}

func boot(ctx context.Context, cfg *config.Config, opts options, out io.Writer, l hclog.Logger) (*system, error) {
	programs, err := cfg.Registry(l)
	if err != nil {
		return nil, err
	}

	k, err := kernel.NewKernel(cfg.Kernel, programs, l)
	if err != nil {
		return nil, err
	}

	port := device.NewSimPort(out)

	serial, err := device.NewSerial(cfg.Serial, k, port, l)
	if err != nil {
		return nil, err
	}

	s := &system{
		L:      l,
		ctx:    ctx,
		cfg:    cfg,
		opts:   opts,
		k:      k,
		port:   port,
		serial: serial,
		inv:    &syscalls.Invoker{Kernel: k, Serial: serial},
	}

	return s, nil
}

func (s *system) call(idx int32, req syscalls.SyscallRequest) int32 {
	return s.inv.InvokeSyscall(s.ctx, syscalls.SysArgs{Index: idx, Args: req})
}

func (s *system) print(format string, args ...interface{}) int32 {
	return s.call(syscalls.SysSend, syscalls.SyscallRequest{
		Buf: []byte(fmt.Sprintf(format, args...)),
	})
}

func (s *system) dump() {
	if s.opts.dump != nil {
		spew.Fdump(s.opts.dump, s.k.Processes())
	}
}

// run starts init and steps whichever process the scheduler picks until
// no process is left. While every process is suspended it waits for one
// to be woken.
func (s *system) run() error {
	ctx, cancel := context.WithCancel(s.ctx)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		s.serial.Drive(ctx, s.port)
	}()

	defer wg.Wait()
	defer cancel()

	woken := make(chan struct{}, 1)
	ev := s.k.Events().RegisterChannel(kernel.ProcessWoken, woken)
	defer s.k.Events().Unregister(ev)

	if _, err := s.k.CreateProcess("init", s.cfg.Kernel.MaxPriority, []string{}); err != nil {
		return errors.Wrap(err, "starting init")
	}

	running := make(map[int]program)

	for s.k.Live() > 0 {
		p := s.k.Schedule()
		if p == nil {
			select {
			case <-woken:
			case <-s.ctx.Done():
				return errors.Wrapf(s.ctx.Err(), "stalled with %d processes", s.k.Live())
			}

			continue
		}

		pid := p.Pid()

		prog, ok := running[pid]
		if !ok {
			prog = newProgram(p.Name())
			if prog == nil {
				s.L.Error("no program to run", "pid", pid, "name", p.Name())
				s.k.Exit(pid, int32(kernel.ErrGeneralFailure))
				continue
			}

			running[pid] = prog
		}

		if prog.step(s, p) {
			delete(running, pid)
		}
	}

	return nil
}
