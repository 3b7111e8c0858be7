package kernel

import (
	"fmt"
	"sort"
)

type ProcessStatus int

const (
	Empty ProcessStatus = iota
	Ready
	Running
	WaitingIO
	Terminated
)

func (s ProcessStatus) String() string {
	switch s {
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case WaitingIO:
		return "waiting-io"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// WaitReason records why a process sits in the waiting list.
type WaitReason int

const (
	WaitNone WaitReason = iota
	WaitIO
	WaitChild
)

func (r WaitReason) String() string {
	switch r {
	case WaitNone:
		return "none"
	case WaitIO:
		return "io"
	case WaitChild:
		return "child"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// AnyChild asks Wait for whichever supervised child terminates first.
const AnyChild = -1

// NullPid is a pid that may be absent.
type NullPid struct {
	Pid   int
	Valid bool
}

func SomePid(pid int) NullPid {
	return NullPid{Pid: pid, Valid: true}
}

func (n NullPid) String() string {
	if !n.Valid {
		return "none"
	}

	return fmt.Sprint(n.Pid)
}

// Context is the saved register state of a process. The kernel only
// touches the entry point, the stack pointer, the argument registers and
// the two result registers.
type Context struct {
	EPC uint32
	SP  uint32
	RA  uint32
	GP  uint32
	FP  uint32

	V [2]int32
	A [4]uint32

	Args []string
}

// pidSet is a bounded set of pids kept in insertion order.
type pidSet struct {
	pids []int
	max  int
}

func (s *pidSet) contains(pid int) bool {
	for _, p := range s.pids {
		if p == pid {
			return true
		}
	}

	return false
}

func (s *pidSet) add(pid int) error {
	if s.contains(pid) {
		return nil
	}

	if len(s.pids) >= s.max {
		return ErrOutOfMemory
	}

	s.pids = append(s.pids, pid)
	return nil
}

func (s *pidSet) remove(pid int) bool {
	for i, p := range s.pids {
		if p == pid {
			s.pids = append(s.pids[:i], s.pids[i+1:]...)
			return true
		}
	}

	return false
}

func (s *pidSet) list() []int {
	out := make([]int, len(s.pids))
	copy(out, s.pids)
	return out
}

func (s *pidSet) clear() {
	s.pids = s.pids[:0]
}

// PCB is one entry of the process table. PCBs live in the kernel's table
// for their whole life; lists and devices only hold pointers to them.
// Fields are guarded by the kernel mutex.
type PCB struct {
	pid      int
	name     string
	priority int

	Context Context

	state      ProcessStatus
	supervisor NullPid
	supervised pidSet

	sleep   WaitReason
	waitFor NullPid

	lastError  Errno
	exitStatus int32
	empty      bool

	stackSlot int
}

func (p *PCB) reset() {
	max := p.supervised.max
	buf := p.supervised.pids[:0]

	*p = PCB{
		pid:       -1,
		empty:     true,
		lastError: Success,
		stackSlot: -1,
	}

	p.supervised = pidSet{pids: buf, max: max}
}

// Pid reads p's pid without the kernel lock. Only the goroutine that runs
// the scheduler and the syscalls may use it; everything else goes through
// a Task or addresses processes by pid.
func (p *PCB) Pid() int {
	return p.pid
}

func (p *PCB) Name() string {
	return p.name
}

func (p *PCB) String() string {
	return fmt.Sprintf("%s[%d]", p.name, p.pid)
}

// ProcessInfo is a copy of a PCB's bookkeeping. It never aliases kernel
// memory.
type ProcessInfo struct {
	Pid        int
	Name       string
	Priority   int
	Supervised []int
	Supervisor NullPid
	State      ProcessStatus
	Sleep      WaitReason
	WaitFor    NullPid
	LastError  Errno
	Empty      bool
}

func (p *PCB) snapshot() ProcessInfo {
	sup := p.supervised.list()
	sort.Ints(sup)

	return ProcessInfo{
		Pid:        p.pid,
		Name:       p.name,
		Priority:   p.priority,
		Supervised: sup,
		Supervisor: p.supervisor,
		State:      p.state,
		Sleep:      p.sleep,
		WaitFor:    p.waitFor,
		LastError:  p.lastError,
		Empty:      p.empty,
	}
}
