package kernel

import (
	"sync"

	"github.com/evanphx/malta/loader"
	"github.com/evanphx/malta/log"
	"github.com/evanphx/malta/memory"
	"github.com/evanphx/malta/pkg/waiter"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	_ waiter.EventType = 1 << iota
	ProcessCreated
	ProcessWoken
	ProcessExited
)

// Kernel holds the process table and everything that moves processes
// between states. All state is guarded by mu; holding it is the
// equivalent of running with interrupts masked.
type Kernel struct {
	L hclog.Logger

	mu sync.Mutex

	cfg      Config
	programs *loader.Registry

	table  []PCB
	stacks *memory.StackArena
	lists  ListManager
	pids   pidAllocator
	live   int

	current *PCB

	events waiter.Waiter
}

func NewKernel(cfg Config, programs *loader.Registry, l hclog.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if programs == nil {
		return nil, errors.Wrap(ErrNullArgument, "no program registry")
	}

	stacks, err := memory.NewStackArena(cfg.Capacity, cfg.StackWords)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		L:        log.Or(l),
		cfg:      cfg,
		programs: programs,
		table:    make([]PCB, cfg.Capacity),
		stacks:   stacks,
		lists:    newListManager(cfg.Capacity),
		pids:     pidAllocator{space: cfg.pidSpace()},
	}

	for i := range k.table {
		k.table[i].supervised = pidSet{
			pids: make([]int, 0, cfg.Capacity),
			max:  cfg.Capacity,
		}
		k.table[i].reset()
	}

	return k, nil
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) Programs() *loader.Registry {
	return k.programs
}

// Events is notified with ProcessCreated, ProcessWoken and
// ProcessExited as processes change state.
func (k *Kernel) Events() *waiter.Waiter {
	return &k.events
}

// Current is the process holding the CPU, nil when idle.
func (k *Kernel) Current() *PCB {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.current
}

// Live counts the table entries that are not empty.
func (k *Kernel) Live() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.live
}

// Lookup resolves pid to its PCB through the state lists.
func (k *Kernel) Lookup(pid int) (*PCB, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.lists.SearchAll(pid)
	return p, p != nil
}

// State reads the lifecycle state of p.
func (k *Kernel) State(p *PCB) ProcessStatus {
	k.mu.Lock()
	defer k.mu.Unlock()

	return p.state
}

// ListPids returns the pids on the list holding processes in state s,
// in list order.
func (k *Kernel) ListPids(s ProcessStatus) []int {
	k.mu.Lock()
	defer k.mu.Unlock()

	l := k.lists.listFor(s)
	if l == nil {
		return nil
	}

	return l.Pids()
}

// ResetPidCounter restarts pid allocation at 0.
func (k *Kernel) ResetPidCounter() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.pids.reset()
}

// ResetStackTable frees every stack slot regardless of owner.
func (k *Kernel) ResetStackTable() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stacks.Reset()
}

// Reinit empties the process table and every list, for restarting the
// system. It is not meant for steady state operation.
func (k *Kernel) Reinit() {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, l := range k.lists.all() {
		l.clear()
	}

	for i := range k.table {
		k.table[i].reset()
	}

	k.stacks.Reset()
	k.pids.reset()
	k.live = 0
	k.current = nil

	k.L.Debug("kernel-reinit")
}
