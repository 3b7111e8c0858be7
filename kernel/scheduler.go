package kernel

import (
	"github.com/pkg/errors"
)

// Schedule picks the process to run. The highest priority Ready process
// wins, the earliest arrival among equals. A running process keeps the
// CPU unless a Ready process has a strictly higher priority, in which case
// it is preempted to the tail of Ready. Returns nil when nothing can run.
func (k *Kernel) Schedule() *PCB {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.schedule()
}

func (k *Kernel) schedule() *PCB {
	next := k.lists.Ready.highest()

	if cur := k.current; cur != nil && cur.state == Running {
		if next == nil || next.priority <= cur.priority {
			return cur
		}

		k.L.Trace("process-preempt", "pid", cur.pid, "by", next.pid)

		k.lists.Running.Remove(cur.pid)
		cur.state = Ready
		k.lists.Ready.Add(cur)
	}

	if next == nil {
		k.current = nil
		return nil
	}

	k.lists.Ready.Remove(next.pid)
	next.state = Running
	k.lists.Running.Add(next)
	k.current = next

	k.L.Trace("process-dispatch", "pid", next.pid, "priority", next.priority)

	return next
}

// Yield gives up the CPU: the current process goes to the tail of Ready
// and the scheduler runs. Equal priority processes then take turns.
func (k *Kernel) Yield() *PCB {
	k.mu.Lock()
	defer k.mu.Unlock()

	if cur := k.current; cur != nil && cur.state == Running {
		k.lists.Running.Remove(cur.pid)
		cur.state = Ready
		k.lists.Ready.Add(cur)
	}

	return k.schedule()
}

// Block moves p from Running or Ready onto the waiting list, recording
// why it waits.
func (k *Kernel) Block(p *PCB, reason WaitReason) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.block(p, reason, NullPid{})
}

func (k *Kernel) block(p *PCB, reason WaitReason, waitFor NullPid) error {
	switch p.state {
	case Running, Ready:
	default:
		return errors.Wrapf(ErrInvalidArgument, "cannot block pid %d in state %s", p.pid, p.state)
	}

	from := k.lists.listFor(p.state)

	if err := k.lists.Waiting.Add(p); err != nil {
		return err
	}

	from.Remove(p.pid)

	if k.current == p {
		k.current = nil
	}

	p.state = WaitingIO
	p.sleep = reason
	p.waitFor = waitFor

	k.L.Trace("process-block", "pid", p.pid, "reason", reason, "wait-for", waitFor)

	return nil
}

// Wake returns a waiting process to the tail of Ready. Waking a process
// that is not waiting changes nothing and reports ErrInvalidArgument.
func (k *Kernel) Wake(p *PCB) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.wake(p)
}

func (k *Kernel) wake(p *PCB) error {
	if p.state != WaitingIO {
		return errors.Wrapf(ErrInvalidArgument, "cannot wake pid %d in state %s", p.pid, p.state)
	}

	if err := k.lists.Ready.Add(p); err != nil {
		return err
	}

	k.lists.Waiting.Remove(p.pid)

	p.state = Ready
	p.sleep = WaitNone
	p.waitFor = NullPid{}

	k.L.Trace("process-wake", "pid", p.pid)

	k.events.Notify(ProcessWoken)

	return nil
}

// Deliver stores the result of a syscall that blocked into p's first
// result register. Failures are also recorded as p's last error.
func (k *Kernel) Deliver(p *PCB, code int32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.deliver(p, code)
}

func (k *Kernel) deliver(p *PCB, code int32) {
	p.Context.V[0] = code

	if code < 0 {
		p.lastError = Errno(code)
	} else {
		p.lastError = Success
	}
}

// Return stores code as the result of the syscall p just made, unless the
// syscall suspended p. It reports whether the result was stored.
func (k *Kernel) Return(p *PCB, code int32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch p.state {
	case Running, Ready:
		k.deliver(p, code)
		return true
	default:
		return false
	}
}

// Result reads the two result registers of p, used to collect the
// outcome of a syscall that blocked.
func (k *Kernel) Result(p *PCB) (int32, int32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return p.Context.V[0], p.Context.V[1]
}

// DeliverStatus stores a collected child in both result registers of p,
// pid first and exit status second.
func (k *Kernel) DeliverStatus(p *PCB, pid, status int32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p.Context.V[0] = pid
	p.Context.V[1] = status
	p.lastError = Success
}

// SuspendIO blocks pid waiting on a device. Devices address processes by
// pid only, so everything they learn about a process is read here under
// the kernel lock.
func (k *Kernel) SuspendIO(pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.lists.SearchAll(pid)
	if p == nil {
		return errors.Wrapf(ErrUnknownPid, "pid %d", pid)
	}

	return k.block(p, WaitIO, NullPid{})
}

// ResumeIO delivers code to pid and returns it to Ready in one step. pid
// must be suspended by SuspendIO; a process that exited meanwhile, or
// one suspended for another reason, is left alone and reported as
// ErrUnknownPid or ErrInvalidArgument.
func (k *Kernel) ResumeIO(pid int, code int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.ioWaiter(pid)
	if err != nil {
		return err
	}

	k.deliver(p, code)

	return k.wake(p)
}

// InIOWait reports whether pid is suspended by SuspendIO.
func (k *Kernel) InIOWait(pid int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.ioWaiter(pid)
	return err == nil
}

func (k *Kernel) ioWaiter(pid int) (*PCB, error) {
	p := k.lists.Waiting.Search(pid)
	if p == nil {
		return nil, errors.Wrapf(ErrUnknownPid, "pid %d is not waiting", pid)
	}

	if p.sleep != WaitIO {
		return nil, errors.Wrapf(ErrInvalidArgument, "pid %d waits on %s", pid, p.sleep)
	}

	return p, nil
}
