package device

import (
	"fmt"

	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/log"
	"github.com/evanphx/malta/pkg/fifo"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type Mode int

const (
	Unused Mode = iota
	Sending
	Receiving
)

func (m Mode) String() string {
	switch m {
	case Unused:
		return "unused"
	case Sending:
		return "sending"
	case Receiving:
		return "receiving"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Scheduler is the part of the kernel an arbiter needs to suspend and
// resume processes. Processes are named by pid; each call is one critical
// section of the kernel, so a device never reads process state itself.
type Scheduler interface {
	SuspendIO(pid int) error
	ResumeIO(pid int, code int32) error
	InIOWait(pid int) bool
}

// Arbiter hands a device to one process at a time. Processes asking while
// the device is taken are suspended and queued; Release passes the device
// to the oldest of them that is still waiting.
//
// Arbiter does no locking of its own. The driver embedding it serializes
// every call, the same way interrupts are masked around it on hardware.
type Arbiter struct {
	L hclog.Logger

	sched   Scheduler
	owner   kernel.NullPid
	waiters *fifo.Fifo[int]
	mode    Mode

	// Handoff, if set, is offered each queued pid in turn as Release
	// passes the device on. It returns true once it has put the pid's
	// request in progress, leaving the pid suspended as the new owner.
	// When it returns false the pid is skipped.
	Handoff func(pid int) bool
}

func NewArbiter(sched Scheduler, queue int, l hclog.Logger) *Arbiter {
	return &Arbiter{
		L:       log.Or(l),
		sched:   sched,
		waiters: fifo.New[int](queue),
	}
}

// Owner is the pid holding the device, if any.
func (a *Arbiter) Owner() kernel.NullPid {
	return a.owner
}

func (a *Arbiter) Mode() Mode {
	return a.mode
}

func (a *Arbiter) SetMode(m Mode) {
	a.mode = m
}

// Waiting is the number of queued processes.
func (a *Arbiter) Waiting() int {
	return a.waiters.Len()
}

// WaitingPids lists the queued processes, oldest first.
func (a *Arbiter) WaitingPids() []int {
	var out []int
	a.waiters.Each(func(pid int) {
		out = append(out, pid)
	})

	return out
}

func (a *Arbiter) queued(pid int) bool {
	found := false
	a.waiters.Each(func(q int) {
		if q == pid {
			found = true
		}
	})

	return found
}

// Request gives pid the device if nobody holds it or pid already does. If
// the device is taken, pid is suspended and queued and granted is false.
// A full queue leaves pid runnable and reports ErrOutOfCapacity.
func (a *Arbiter) Request(pid int) (granted bool, err error) {
	if !a.owner.Valid || a.owner.Pid == pid {
		a.owner = kernel.SomePid(pid)
		return true, nil
	}

	// a live pid can not ask twice while queued, so a queued entry for
	// pid was left by a process that exited; pid takes over that slot
	requeue := a.queued(pid)

	if !requeue && a.waiters.Full() {
		return false, errors.Wrapf(kernel.ErrOutOfCapacity, "device queue full (%d)", a.waiters.Cap())
	}

	if err := a.sched.SuspendIO(pid); err != nil {
		return false, err
	}

	if !requeue {
		a.waiters.Push(pid)
	}

	a.L.Trace("device-queued", "pid", pid, "owner", a.owner.Pid, "waiting", a.waiters.Len())

	return false, nil
}

// Release ends the current use of the device. code is delivered to the
// owner as its syscall result and the owner resumed. The device then
// passes to the oldest queued process that is still waiting for it.
func (a *Arbiter) Release(code int32) {
	if prev := a.owner; prev.Valid {
		if a.queued(prev.Pid) {
			// the owner exited and its pid went to a process now queued
			a.L.Warn("device owner pid reused, result dropped", "pid", prev.Pid)
		} else if err := a.sched.ResumeIO(prev.Pid, code); err != nil {
			a.L.Warn("unable to resume device owner", "pid", prev.Pid, "error", err)
		}

		a.L.Trace("device-released", "pid", prev.Pid, "code", code)
	}

	a.handoff()
}

// Abandon drops the owner without resuming it, for an owner that could
// not be suspended, and hands the device on.
func (a *Arbiter) Abandon() {
	if a.owner.Valid {
		a.L.Trace("device-abandoned", "pid", a.owner.Pid)
	}

	a.handoff()
}

func (a *Arbiter) handoff() {
	a.mode = Unused
	a.owner = kernel.NullPid{}

	for {
		next, ok := a.waiters.Pop()
		if !ok {
			return
		}

		if a.take(next) {
			a.owner = kernel.SomePid(next)
			a.L.Trace("device-handoff", "pid", next, "waiting", a.waiters.Len())
			return
		}

		a.L.Trace("device-skip-waiter", "pid", next)
	}
}

// take makes pid the owner-to-be. Without a Handoff hook the pid is
// simply resumed and expected to ask again.
func (a *Arbiter) take(pid int) bool {
	if a.Handoff != nil {
		return a.Handoff(pid)
	}

	return a.sched.ResumeIO(pid, int32(kernel.Success)) == nil
}
