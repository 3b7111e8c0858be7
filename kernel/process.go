package kernel

import (
	"github.com/pkg/errors"
)

// CreateProcess starts the program called name as a new Ready process.
// The creating process, if any, becomes its supervisor. params is copied
// into the new process' argument registers; it must not be nil.
func (k *Kernel) CreateProcess(name string, priority int, params []string) (int, error) {
	if name == "" {
		return -1, errors.Wrap(ErrNullArgument, "process name")
	}

	if params == nil {
		return -1, errors.Wrap(ErrNullArgument, "process params")
	}

	if priority < k.cfg.MinPriority || priority > k.cfg.MaxPriority {
		return -1, errors.Wrapf(ErrInvalidArgument, "priority %d outside [%d, %d]",
			priority, k.cfg.MinPriority, k.cfg.MaxPriority)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.live >= k.cfg.Capacity {
		return -1, errors.Wrapf(ErrOutOfCapacity, "process table full (%d)", k.cfg.Capacity)
	}

	img, ok := k.programs.Lookup(name)
	if !ok {
		return -1, errors.Wrapf(ErrInvalidArgument, "unknown program %q", name)
	}

	p := k.freeEntry()
	if p == nil {
		return -1, errors.Wrap(ErrOutOfCapacity, "no empty process entry")
	}

	counter := k.pids.next

	pid, err := k.pids.allocate(&k.lists)
	if err != nil {
		return -1, err
	}

	p.pid = pid
	p.name = img.Name
	p.priority = priority
	p.Context.EPC = img.Entry

	if k.current != nil {
		p.supervisor = SomePid(k.current.pid)
	}

	p.Context.A[0] = uint32(len(params))
	p.Context.Args = append([]string(nil), params...)

	slot, top, err := k.stacks.Allocate(pid)
	if err != nil {
		k.pids.next = counter
		p.reset()
		return -1, errors.Wrapf(ErrOutOfCapacity, "stack for pid %d: %s", pid, err)
	}

	p.stackSlot = slot
	p.Context.SP = top

	p.state = Ready
	p.lastError = Success
	p.empty = false

	if err := k.lists.Ready.Add(p); err != nil {
		k.stacks.Deallocate(pid)
		k.pids.next = counter
		p.reset()
		return -1, errors.Wrapf(err, "queueing pid %d", pid)
	}

	if k.current != nil {
		if err := k.current.supervised.add(pid); err != nil {
			k.L.Error("unable to supervise new process", "pid", pid, "supervisor", k.current.pid, "error", err)

			k.lists.Ready.Remove(pid)
			k.stacks.Deallocate(pid)
			k.pids.next = counter
			p.reset()

			return -1, errors.Wrapf(err, "supervising pid %d", pid)
		}
	}

	k.live++

	k.L.Trace("process-create", "pid", pid, "name", p.name, "priority", priority, "supervisor", p.supervisor)

	k.events.Notify(ProcessCreated)

	return pid, nil
}

func (k *Kernel) freeEntry() *PCB {
	for i := range k.table {
		if k.table[i].empty {
			return &k.table[i]
		}
	}

	return nil
}

// reap returns a terminated process to the empty pool.
func (k *Kernel) reap(p *PCB) {
	k.L.Trace("process-reap", "pid", p.pid, "status", p.exitStatus)

	k.lists.Terminated.Remove(p.pid)

	if err := k.stacks.Deallocate(p.pid); err != nil {
		k.L.Error("stack missing on reap", "pid", p.pid, "error", err)
	}

	p.reset()
	k.live--
}

// ChangePriority sets the priority of pid. The process keeps its place in
// its current list; the new value counts from the next scheduling
// decision.
func (k *Kernel) ChangePriority(pid int, priority int) error {
	if priority < k.cfg.MinPriority || priority > k.cfg.MaxPriority {
		return errors.Wrapf(ErrInvalidArgument, "priority %d outside [%d, %d]",
			priority, k.cfg.MinPriority, k.cfg.MaxPriority)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.lists.SearchAll(pid)
	if p == nil {
		return errors.Wrapf(ErrUnknownPid, "pid %d", pid)
	}

	k.L.Trace("process-priority", "pid", pid, "from", p.priority, "to", priority)

	p.priority = priority

	return nil
}

// Snapshot copies the bookkeeping of pid.
func (k *Kernel) Snapshot(pid int) (ProcessInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.lists.SearchAll(pid)
	if p == nil {
		return ProcessInfo{}, errors.Wrapf(ErrUnknownPid, "pid %d", pid)
	}

	return p.snapshot(), nil
}

// Processes snapshots every live process in table order.
func (k *Kernel) Processes() []ProcessInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []ProcessInfo

	for i := range k.table {
		if !k.table[i].empty {
			out = append(out, k.table[i].snapshot())
		}
	}

	return out
}
