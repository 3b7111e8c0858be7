package kernel

// ProcessList is an ordered sequence of PCB references. It does not stop
// a PCB from being on two lists at once; the kernel keeps membership
// exclusive.
type ProcessList struct {
	name  string
	procs []*PCB
	max   int
}

func newProcessList(name string, max int) *ProcessList {
	return &ProcessList{
		name:  name,
		procs: make([]*PCB, 0, max),
		max:   max,
	}
}

func (l *ProcessList) Name() string {
	return l.name
}

func (l *ProcessList) Len() int {
	return len(l.procs)
}

// Add appends p to the tail of the list.
func (l *ProcessList) Add(p *PCB) error {
	if len(l.procs) >= l.max {
		return ErrOutOfMemory
	}

	l.procs = append(l.procs, p)
	return nil
}

// Remove drops the PCB with the given pid, keeping the order of the rest.
func (l *ProcessList) Remove(pid int) bool {
	for i, p := range l.procs {
		if p.pid == pid {
			copy(l.procs[i:], l.procs[i+1:])
			l.procs[len(l.procs)-1] = nil
			l.procs = l.procs[:len(l.procs)-1]
			return true
		}
	}

	return false
}

func (l *ProcessList) Search(pid int) *PCB {
	for _, p := range l.procs {
		if p.pid == pid {
			return p
		}
	}

	return nil
}

func (l *ProcessList) Pids() []int {
	out := make([]int, len(l.procs))
	for i, p := range l.procs {
		out[i] = p.pid
	}

	return out
}

// highest returns the member with the greatest priority, the earliest
// arrival among equals.
func (l *ProcessList) highest() *PCB {
	var best *PCB

	for _, p := range l.procs {
		if best == nil || p.priority > best.priority {
			best = p
		}
	}

	return best
}

func (l *ProcessList) clear() {
	for i := range l.procs {
		l.procs[i] = nil
	}

	l.procs = l.procs[:0]
}

// ListManager owns the four state lists.
type ListManager struct {
	Ready      *ProcessList
	Running    *ProcessList
	Waiting    *ProcessList
	Terminated *ProcessList
}

func newListManager(max int) ListManager {
	return ListManager{
		Ready:      newProcessList("ready", max),
		Running:    newProcessList("running", max),
		Waiting:    newProcessList("waiting", max),
		Terminated: newProcessList("terminated", max),
	}
}

// SearchAll resolves pid by probing Ready, Running, Waiting and
// Terminated in that order.
func (m *ListManager) SearchAll(pid int) *PCB {
	for _, l := range m.all() {
		if p := l.Search(pid); p != nil {
			return p
		}
	}

	return nil
}

func (m *ListManager) all() [4]*ProcessList {
	return [4]*ProcessList{m.Ready, m.Running, m.Waiting, m.Terminated}
}

// listFor maps a state to the list holding processes in it.
func (m *ListManager) listFor(s ProcessStatus) *ProcessList {
	switch s {
	case Ready:
		return m.Ready
	case Running:
		return m.Running
	case WaitingIO:
		return m.Waiting
	case Terminated:
		return m.Terminated
	default:
		return nil
	}
}
