package kernel

// pidAllocator hands out pids from [0, space). The counter only moves
// forward and wraps; a candidate is skipped while SearchAll still
// resolves it, so one allocation tries at most space pids.
type pidAllocator struct {
	next  int
	space int
}

func (a *pidAllocator) allocate(lists *ListManager) (int, error) {
	start := a.next

	for lists.SearchAll(a.next) != nil {
		a.next = (a.next + 1) % a.space
		if a.next == start {
			return -1, ErrOutOfPidSpace
		}
	}

	pid := a.next
	a.next = (a.next + 1) % a.space

	return pid, nil
}

func (a *pidAllocator) reset() {
	a.next = 0
}
