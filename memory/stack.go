package memory

import (
	"github.com/pkg/errors"
)

// WordSize is the width of one stack word in bytes.
const WordSize = 4

var (
	ErrArenaFull    = errors.New("no free stack slot")
	ErrSlotNotFound = errors.New("no stack slot owned by pid")
	ErrBadArena     = errors.New("bad stack arena geometry")
)

type slot struct {
	owner int
	used  bool
}

// StackArena is one contiguous block of stack memory cut into equally
// sized slots, one per process. Allocation and release are first-fit
// linear scans over the slot table, so both cost O(slots).
type StackArena struct {
	words     []uint32
	slots     []slot
	slotWords int
}

func NewStackArena(slots, slotWords int) (*StackArena, error) {
	if slots <= 0 || slotWords <= 0 {
		return nil, errors.Wrapf(ErrBadArena, "slots=%d, words=%d", slots, slotWords)
	}

	return &StackArena{
		words:     make([]uint32, slots*slotWords),
		slots:     make([]slot, slots),
		slotWords: slotWords,
	}, nil
}

func (a *StackArena) Slots() int {
	return len(a.slots)
}

func (a *StackArena) SlotWords() int {
	return a.slotWords
}

// Allocate claims the first free slot for pid and returns its index and
// the address of its top. Stacks grow downward, so the top is one past
// the last word of the slot.
func (a *StackArena) Allocate(pid int) (int, uint32, error) {
	for i := range a.slots {
		if a.slots[i].used {
			continue
		}

		a.slots[i] = slot{owner: pid, used: true}

		return i, a.Top(i), nil
	}

	return -1, 0, errors.Wrapf(ErrArenaFull, "allocating stack for pid %d", pid)
}

// Deallocate frees the slot owned by pid.
func (a *StackArena) Deallocate(pid int) error {
	for i := range a.slots {
		if a.slots[i].used && a.slots[i].owner == pid {
			a.slots[i] = slot{}
			a.clear(i)
			return nil
		}
	}

	return errors.Wrapf(ErrSlotNotFound, "pid %d", pid)
}

// Top is the byte address just above slot i.
func (a *StackArena) Top(i int) uint32 {
	return uint32((i + 1) * a.slotWords * WordSize)
}

// Owner reports which pid holds slot i.
func (a *StackArena) Owner(i int) (int, bool) {
	if i < 0 || i >= len(a.slots) || !a.slots[i].used {
		return 0, false
	}

	return a.slots[i].owner, true
}

// Stack projects the words backing slot i.
func (a *StackArena) Stack(i int) []uint32 {
	start := i * a.slotWords
	return a.words[start : start+a.slotWords]
}

func (a *StackArena) InUse() int {
	var n int

	for _, s := range a.slots {
		if s.used {
			n++
		}
	}

	return n
}

// Reset frees every slot.
func (a *StackArena) Reset() {
	for i := range a.slots {
		a.slots[i] = slot{}
	}

	for i := range a.words {
		a.words[i] = 0
	}
}

func (a *StackArena) clear(i int) {
	stk := a.Stack(i)
	for j := range stk {
		stk[j] = 0
	}
}
