package kernel

import (
	"github.com/pkg/errors"
)

// WaitResult is what a supervisor learns about a terminated child.
type WaitResult struct {
	Pid    int
	Status int32
}

// AddSupervised makes parent the supervisor of child. A process has at
// most one supervisor, so this fails if child already has one.
func (k *Kernel) AddSupervised(parent, child int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	pp := k.lists.SearchAll(parent)
	if pp == nil {
		return errors.Wrapf(ErrUnknownPid, "supervisor %d", parent)
	}

	cp := k.lists.SearchAll(child)
	if cp == nil {
		return errors.Wrapf(ErrInvalidArgument, "no process %d to supervise", child)
	}

	if cp == pp {
		return errors.Wrapf(ErrInvalidArgument, "pid %d cannot supervise itself", parent)
	}

	if cp.supervisor.Valid {
		return errors.Wrapf(ErrInvalidArgument, "pid %d already supervised by %d", child, cp.supervisor.Pid)
	}

	if err := pp.supervised.add(child); err != nil {
		return err
	}

	cp.supervisor = SomePid(parent)

	k.L.Trace("process-supervise", "supervisor", parent, "child", child)

	return nil
}

// RemoveSupervised ends the supervision of child by parent. Both sides of
// the relationship are cleared; a child that already terminated has no
// one left to wait for it and is reaped.
func (k *Kernel) RemoveSupervised(parent, child int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	pp := k.lists.SearchAll(parent)
	if pp == nil {
		return errors.Wrapf(ErrUnknownPid, "supervisor %d", parent)
	}

	pp.supervised.remove(child)

	cp := k.lists.SearchAll(child)
	if cp == nil || cp.supervisor != SomePid(parent) {
		return nil
	}

	cp.supervisor = NullPid{}

	k.L.Trace("process-unsupervise", "supervisor", parent, "child", child)

	if cp.state == Terminated {
		k.reap(cp)
	}

	return nil
}

// Wait collects the exit status of child, a process parent supervises,
// or of any supervised child when child is AnyChild. If a matching child
// has already terminated it is reaped and done is true. Otherwise parent
// is blocked and the result arrives in its result registers (pid, status)
// once the child exits.
func (k *Kernel) Wait(parent, child int) (res WaitResult, done bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	pp := k.lists.SearchAll(parent)
	if pp == nil {
		return res, false, errors.Wrapf(ErrUnknownPid, "supervisor %d", parent)
	}

	var target *PCB

	if child == AnyChild {
		if len(pp.supervised.pids) == 0 {
			return res, false, errors.Wrapf(ErrNotFound, "pid %d supervises nothing", parent)
		}

		for _, pid := range pp.supervised.pids {
			if cp := k.lists.Terminated.Search(pid); cp != nil {
				target = cp
				break
			}
		}
	} else {
		if !pp.supervised.contains(child) {
			return res, false, errors.Wrapf(ErrNotFound, "pid %d does not supervise %d", parent, child)
		}

		cp := k.lists.SearchAll(child)
		if cp == nil {
			pp.supervised.remove(child)
			return res, false, errors.Wrapf(ErrNotFound, "pid %d is gone", child)
		}

		if cp.state == Terminated {
			target = cp
		}
	}

	if target != nil {
		res = WaitResult{Pid: target.pid, Status: target.exitStatus}

		pp.supervised.remove(target.pid)
		k.reap(target)

		return res, true, nil
	}

	waitFor := NullPid{}
	if child != AnyChild {
		waitFor = SomePid(child)
	}

	if err := k.block(pp, WaitChild, waitFor); err != nil {
		return res, false, err
	}

	return res, false, nil
}

// Exit terminates pid with status. Its own children lose their supervisor.
// If its supervisor is already waiting for it the status is handed over
// and the supervisor woken; a process nobody supervises is reaped at once.
func (k *Kernel) Exit(pid int, status int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.lists.SearchAll(pid)
	if p == nil {
		return errors.Wrapf(ErrUnknownPid, "pid %d", pid)
	}

	if p.state == Terminated {
		return errors.Wrapf(ErrInvalidArgument, "pid %d already terminated", pid)
	}

	if err := k.lists.Terminated.Add(p); err != nil {
		return err
	}

	k.lists.listFor(p.state).Remove(pid)

	if k.current == p {
		k.current = nil
	}

	p.state = Terminated
	p.exitStatus = status
	p.sleep = WaitNone
	p.waitFor = NullPid{}

	k.L.Trace("process-exit", "pid", pid, "status", status)

	k.orphan(p)

	defer k.events.Notify(ProcessExited)

	if !p.supervisor.Valid {
		k.reap(p)
		return nil
	}

	sup := k.lists.SearchAll(p.supervisor.Pid)
	if sup == nil {
		k.reap(p)
		return nil
	}

	if sup.state == WaitingIO && sup.sleep == WaitChild &&
		(!sup.waitFor.Valid || sup.waitFor.Pid == pid) {
		sup.Context.V[0] = int32(pid)
		sup.Context.V[1] = status
		sup.lastError = Success

		sup.supervised.remove(pid)
		k.reap(p)

		return k.wake(sup)
	}

	return nil
}

// orphan detaches the children of p, reaping those already terminated.
func (k *Kernel) orphan(p *PCB) {
	for _, pid := range p.supervised.list() {
		cp := k.lists.SearchAll(pid)
		if cp == nil || cp.supervisor != SomePid(p.pid) {
			continue
		}

		cp.supervisor = NullPid{}

		if cp.state == Terminated {
			k.reap(cp)
		}
	}

	p.supervised.clear()
}
