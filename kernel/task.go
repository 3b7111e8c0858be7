package kernel

import "context"

type prockey struct{}

// Task is the process on whose behalf the kernel is running a trap.
type Task struct {
	*PCB

	Kernel *Kernel

	pid int
}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task wraps p for use as the subject of a trap.
func (k *Kernel) Task(p *PCB) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()

	return &Task{PCB: p, Kernel: k, pid: p.pid}
}

// Pid is the pid p had when the trap began. It stays valid after the
// process exits and its entry is reused.
func (t *Task) Pid() int {
	return t.pid
}

func (t *Task) Exit(status int32) error {
	return t.Kernel.Exit(t.Pid(), status)
}

func (t *Task) Wait(child int) (WaitResult, bool, error) {
	return t.Kernel.Wait(t.Pid(), child)
}
