package main

import (
	"strconv"

	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/syscalls"
)

// program is the code of a process, run one syscall at a time. step
// reports whether the process has exited.
type program interface {
	step(s *system, p *kernel.PCB) bool
}

func newProgram(name string) program {
	switch name {
	case "init":
		return &initProgram{}
	case "supervisor":
		return &supervisorProgram{}
	case "inf":
		return &infProgram{}
	default:
		return nil
	}
}

func exit(s *system, status int32) bool {
	s.call(syscalls.SysExit, syscalls.SyscallRequest{R0: status})
	return true
}

// initProgram starts the supervisor and waits for it.
type initProgram struct {
	pc    int
	child int32
}

func (prog *initProgram) step(s *system, p *kernel.PCB) bool {
	switch prog.pc {
	case 0:
		kc := s.cfg.Kernel

		prog.child = s.call(syscalls.SysCreate, syscalls.SyscallRequest{
			Name: "supervisor",
			R0:   int32((kc.MinPriority + kc.MaxPriority) / 2),
			Params: []string{
				strconv.Itoa(s.opts.children),
				strconv.Itoa(s.opts.lives),
			},
		})

		if prog.child < 0 {
			s.L.Error("unable to start supervisor", "error", kernel.Errno(prog.child))
			return exit(s, 1)
		}

		prog.pc++
	case 1:
		if ret := s.call(syscalls.SysWait, syscalls.SyscallRequest{R0: prog.child}); ret < 0 {
			s.L.Error("unable to wait for supervisor", "error", kernel.Errno(ret))
			return exit(s, 1)
		}

		prog.pc++
	case 2:
		pid, status := s.k.Result(p)
		s.print("init: supervisor %d finished with %d\n", pid, status)
		prog.pc++
	default:
		return exit(s, 0)
	}

	return false
}

// supervisorProgram starts its children, then collects them as they die,
// restarting the ones that failed while it has lives left.
type supervisorProgram struct {
	pc       int
	children int
	lives    int
	started  int
}

const (
	superSpawn = iota
	superAnnounce
	superWait
	superCollect
	superRestart
	superDone
)

func childMode(i int) string {
	if i%2 == 1 {
		return "crash"
	}

	return "ok"
}

func (prog *supervisorProgram) spawn(s *system, mode string) int32 {
	return s.call(syscalls.SysCreate, syscalls.SyscallRequest{
		Name:   "inf",
		R0:     int32(s.cfg.Kernel.MinPriority),
		Params: []string{mode},
	})
}

func (prog *supervisorProgram) step(s *system, p *kernel.PCB) bool {
	switch prog.pc {
	case superSpawn:
		if prog.started == 0 {
			args := p.Context.Args
			if len(args) == 2 {
				prog.children, _ = strconv.Atoi(args[0])
				prog.lives, _ = strconv.Atoi(args[1])
			}
		}

		if prog.started >= prog.children {
			prog.pc = superAnnounce
			return prog.step(s, p)
		}

		if pid := prog.spawn(s, childMode(prog.started)); pid < 0 {
			s.L.Error("unable to start child", "error", kernel.Errno(pid))
		}

		prog.started++
	case superAnnounce:
		s.dump()
		s.print("supervisor: started %d children\n", prog.started)
		prog.pc = superWait
	case superWait:
		ret := s.call(syscalls.SysWait, syscalls.SyscallRequest{R0: kernel.AnyChild})
		if ret < 0 {
			if ret != int32(kernel.ErrNotFound) {
				s.L.Error("unable to wait for children", "error", kernel.Errno(ret))
			}

			prog.pc = superDone
			return prog.step(s, p)
		}

		prog.pc = superCollect
	case superCollect:
		pid, status := s.k.Result(p)

		if status != 0 && prog.lives > 0 {
			prog.lives--
			s.print("supervisor: child %d died with %d, restarting (%d lives left)\n", pid, status, prog.lives)
			prog.pc = superRestart
		} else {
			s.print("supervisor: child %d exited with %d\n", pid, status)
			prog.pc = superWait
		}
	case superRestart:
		prog.spawn(s, "crash")
		prog.pc = superWait
	default:
		return exit(s, 0)
	}

	return false
}

// infProgram counts a few lines out the serial line, then exits with a
// failure when started in crash mode.
type infProgram struct {
	n int
}

const infLines = 3

func (prog *infProgram) step(s *system, p *kernel.PCB) bool {
	if prog.n < infLines {
		prog.n++
		s.print("inf %d: %d\n", p.Pid(), prog.n)
		return false
	}

	if args := p.Context.Args; len(args) > 0 && args[0] == "crash" {
		return exit(s, -1)
	}

	return exit(s, 0)
}
