package device

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/loader"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func newKernel(t *testing.T, procs int) (*kernel.Kernel, []*kernel.PCB) {
	var images []loader.Image
	for i := 0; i < procs; i++ {
		images = append(images, loader.Image{Name: fmt.Sprintf("p%d", i), Entry: uint32(0x1000 * (i + 1))})
	}

	reg, err := loader.NewRegistry(hclog.NewNullLogger(), images...)
	require.NoError(t, err)

	cfg := kernel.DefaultConfig()
	cfg.Capacity = procs
	cfg.StackWords = 16

	k, err := kernel.NewKernel(cfg, reg, hclog.NewNullLogger())
	require.NoError(t, err)

	var pcbs []*kernel.PCB

	for _, img := range images {
		pid, err := k.CreateProcess(img.Name, 1, []string{})
		require.NoError(t, err)

		p, ok := k.Lookup(pid)
		require.True(t, ok)

		pcbs = append(pcbs, p)
	}

	return k, pcbs
}

func pidsOf(procs []*kernel.PCB) []int {
	var pids []int
	for _, p := range procs {
		pids = append(pids, p.Pid())
	}

	return pids
}

func newSerial(t *testing.T, k *kernel.Kernel, cfg Config) (*Serial, *SimPort) {
	port := NewSimPort(nil)

	s, err := NewSerial(cfg, k, port, hclog.NewNullLogger())
	require.NoError(t, err)

	return s, port
}

func TestArbiter(t *testing.T) {
	n := neko.Modern(t)

	n.It("grants one owner and queues up to its capacity", func(t *testing.T) {
		const queue = 3

		k, procs := newKernel(t, queue+2)
		pids := pidsOf(procs)

		a := NewArbiter(k, queue, hclog.NewNullLogger())

		granted, err := a.Request(pids[0])
		require.NoError(t, err)
		require.True(t, granted)

		for i, pid := range pids[1 : queue+1] {
			granted, err := a.Request(pid)
			require.NoError(t, err)
			require.False(t, granted)
			require.Equal(t, kernel.WaitingIO, k.State(procs[i+1]))
		}

		granted, err = a.Request(pids[queue+1])
		require.Equal(t, kernel.ErrOutOfCapacity, errors.Cause(err))
		require.False(t, granted)

		require.Equal(t, kernel.SomePid(pids[0]), a.Owner())
		require.Equal(t, queue, a.Waiting())
		require.Equal(t, pids[1:queue+1], a.WaitingPids())

		// the refused process is left runnable
		require.Equal(t, kernel.Ready, k.State(procs[queue+1]))
	})

	n.It("keeps granting to the current owner", func(t *testing.T) {
		k, procs := newKernel(t, 2)

		a := NewArbiter(k, 1, hclog.NewNullLogger())

		granted, err := a.Request(procs[0].Pid())
		require.NoError(t, err)
		require.True(t, granted)

		granted, err = a.Request(procs[0].Pid())
		require.NoError(t, err)
		require.True(t, granted)
		require.Equal(t, 0, a.Waiting())
	})

	n.It("hands the device to the oldest waiter without waking it", func(t *testing.T) {
		k, procs := newKernel(t, 3)
		pids := pidsOf(procs)

		a := NewArbiter(k, 2, hclog.NewNullLogger())

		var handed []int
		a.Handoff = func(pid int) bool {
			handed = append(handed, pid)
			return true
		}

		a.Request(pids[0])
		require.NoError(t, k.SuspendIO(pids[0]))

		a.Request(pids[1])
		a.Request(pids[2])

		a.SetMode(Sending)

		a.Release(int32(kernel.Success))

		require.Equal(t, Unused, a.Mode())
		require.Equal(t, kernel.Ready, k.State(procs[0]))

		v0, _ := k.Result(procs[0])
		require.Equal(t, int32(0), v0)

		require.Equal(t, kernel.SomePid(pids[1]), a.Owner())
		require.Equal(t, kernel.WaitingIO, k.State(procs[1]))
		require.Equal(t, []int{pids[1]}, handed)
		require.Equal(t, []int{pids[2]}, a.WaitingPids())
	})

	n.It("resumes the next waiter when nothing restarts it", func(t *testing.T) {
		k, procs := newKernel(t, 2)
		pids := pidsOf(procs)

		a := NewArbiter(k, 1, hclog.NewNullLogger())

		a.Request(pids[0])
		a.Request(pids[1])
		require.Equal(t, kernel.WaitingIO, k.State(procs[1]))

		a.Release(int32(kernel.Success))

		require.Equal(t, kernel.SomePid(pids[1]), a.Owner())
		require.Equal(t, kernel.Ready, k.State(procs[1]))
	})

	n.It("skips waiters that exited", func(t *testing.T) {
		k, procs := newKernel(t, 3)
		pids := pidsOf(procs)

		a := NewArbiter(k, 2, hclog.NewNullLogger())
		a.Handoff = func(pid int) bool {
			return k.InIOWait(pid)
		}

		a.Request(pids[0])
		a.Request(pids[1])
		a.Request(pids[2])

		require.NoError(t, k.Exit(pids[1], 0))

		a.Release(int32(kernel.Success))

		require.Equal(t, kernel.SomePid(pids[2]), a.Owner())
		require.Equal(t, 0, a.Waiting())
	})

	n.It("releases to nobody when the queue is empty", func(t *testing.T) {
		k, procs := newKernel(t, 1)

		a := NewArbiter(k, 1, hclog.NewNullLogger())

		a.Request(procs[0].Pid())
		require.NoError(t, k.SuspendIO(procs[0].Pid()))

		a.Release(int32(kernel.ErrGeneralFailure))

		require.False(t, a.Owner().Valid)

		v0, _ := k.Result(procs[0])
		require.Equal(t, int32(kernel.ErrGeneralFailure), v0)
	})

	n.It("survives an owner that exited", func(t *testing.T) {
		k, procs := newKernel(t, 1)

		a := NewArbiter(k, 1, hclog.NewNullLogger())

		a.Request(procs[0].Pid())
		require.NoError(t, k.SuspendIO(procs[0].Pid()))
		require.NoError(t, k.Exit(procs[0].Pid(), 0))

		a.Release(int32(kernel.Success))

		require.False(t, a.Owner().Valid)
		require.Equal(t, 0, k.Live())
	})

	n.Meow()
}

func TestSerialSend(t *testing.T) {
	n := neko.Modern(t)

	n.It("turns a line feed into CR LF on the wire", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, port := newSerial(t, k, DefaultConfig())

		p := procs[0]

		require.NoError(t, s.Send(p.Pid(), []byte("ab\n")))
		require.Equal(t, kernel.WaitingIO, k.State(p))
		require.Equal(t, Sending, s.Mode())

		for i := 0; i < 3; i++ {
			s.Interrupt()
		}

		require.Equal(t, []byte("ab\r"), port.Sent())
		require.Equal(t, kernel.WaitingIO, k.State(p))

		s.Interrupt()

		require.Equal(t, []byte("ab\r\n"), port.Sent())
		require.Equal(t, Unused, s.Mode())
		require.False(t, s.Owner().Valid)
		require.Equal(t, kernel.Ready, k.State(p))

		v0, _ := k.Result(p)
		require.Equal(t, int32(kernel.Success), v0)
		require.False(t, port.Pending())
	})

	n.It("aborts when the line feed cannot be held back", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, port := newSerial(t, k, Config{BufferSize: 0, QueueSize: 1})

		p := procs[0]

		require.NoError(t, s.Send(p.Pid(), []byte("a\nb")))

		s.Interrupt()
		s.Interrupt()

		require.Equal(t, []byte("a"), port.Sent())
		require.Equal(t, Unused, s.Mode())
		require.Equal(t, kernel.Ready, k.State(p))

		v0, _ := k.Result(p)
		require.Equal(t, int32(kernel.ErrGeneralFailure), v0)

		info, err := k.Snapshot(p.Pid())
		require.NoError(t, err)
		require.Equal(t, kernel.ErrGeneralFailure, info.LastError)
	})

	n.It("restarts a queued send once the line is free", func(t *testing.T) {
		k, procs := newKernel(t, 2)
		s, port := newSerial(t, k, DefaultConfig())
		pids := pidsOf(procs)

		require.NoError(t, s.Send(pids[0], []byte("x")))
		require.NoError(t, s.Send(pids[1], []byte("y")))

		require.Equal(t, kernel.SomePid(pids[0]), s.Owner())
		require.Equal(t, []int{pids[1]}, s.WaitingPids())
		require.Equal(t, kernel.WaitingIO, k.State(procs[1]))

		s.Interrupt()

		require.Equal(t, []byte("x"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[0]))

		require.Equal(t, kernel.SomePid(pids[1]), s.Owner())
		require.Equal(t, Sending, s.Mode())
		require.Equal(t, kernel.WaitingIO, k.State(procs[1]))

		s.Interrupt()

		require.Equal(t, []byte("xy"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[1]))
		require.False(t, s.Owner().Valid)
	})

	n.It("never lets the next owner run while its send is queued", func(t *testing.T) {
		k, procs := newKernel(t, 2)
		s, port := newSerial(t, k, DefaultConfig())
		pids := pidsOf(procs)

		require.NoError(t, s.Send(pids[0], []byte("a")))
		require.NoError(t, s.Send(pids[1], []byte("b")))

		s.Interrupt()

		require.Equal(t, []byte("a"), port.Sent())

		// only the finished sender is runnable
		require.Equal(t, pids[0], k.Schedule().Pid())
		require.Equal(t, []int{pids[1]}, k.ListPids(kernel.WaitingIO))

		s.Interrupt()

		require.Equal(t, []byte("ab"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[1]))

		v0, _ := k.Result(procs[1])
		require.Equal(t, int32(kernel.Success), v0)
	})

	n.It("passes over a queued sender that exited", func(t *testing.T) {
		k, procs := newKernel(t, 3)
		s, port := newSerial(t, k, DefaultConfig())
		pids := pidsOf(procs)

		require.NoError(t, s.Send(pids[0], []byte("a")))
		require.NoError(t, s.Send(pids[1], []byte("b")))
		require.NoError(t, k.Exit(pids[1], 0))

		s.Interrupt()

		require.Equal(t, []byte("a"), port.Sent())
		require.False(t, s.Owner().Valid)
		require.Empty(t, s.WaitingPids())

		require.NoError(t, s.Send(pids[2], []byte("c")))
		require.Equal(t, kernel.SomePid(pids[2]), s.Owner())

		s.Interrupt()

		require.Equal(t, []byte("ac"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[2]))
	})

	n.It("finishes the transfer of an owner that exited", func(t *testing.T) {
		k, procs := newKernel(t, 2)
		s, port := newSerial(t, k, DefaultConfig())
		pids := pidsOf(procs)

		require.NoError(t, s.Send(pids[0], []byte("a")))
		require.NoError(t, s.Send(pids[1], []byte("b")))
		require.NoError(t, k.Exit(pids[0], 0))

		s.Interrupt()
		s.Interrupt()

		require.Equal(t, []byte("ab"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[1]))
		require.False(t, s.Owner().Valid)
	})

	n.It("refuses a second transfer from the owner", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, port := newSerial(t, k, DefaultConfig())

		pid := procs[0].Pid()

		require.NoError(t, s.Send(pid, []byte("x")))

		err := s.Send(pid, []byte("y"))
		require.Equal(t, kernel.ErrInvalidArgument, errors.Cause(err))
		require.Equal(t, Sending, s.Mode())

		s.Interrupt()

		require.Equal(t, []byte("x"), port.Sent())
		require.Equal(t, kernel.Ready, k.State(procs[0]))
	})

	n.It("refuses senders past the queue capacity", func(t *testing.T) {
		k, procs := newKernel(t, 3)
		s, _ := newSerial(t, k, Config{BufferSize: 30, QueueSize: 1})
		pids := pidsOf(procs)

		require.NoError(t, s.Send(pids[0], []byte("x")))
		require.NoError(t, s.Send(pids[1], []byte("y")))

		err := s.Send(pids[2], []byte("z"))
		require.Equal(t, kernel.ErrOutOfCapacity, errors.Cause(err))
		require.Equal(t, kernel.Ready, k.State(procs[2]))
	})

	n.It("completes empty sends without the line", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, _ := newSerial(t, k, DefaultConfig())

		require.NoError(t, s.Send(procs[0].Pid(), []byte{}))
		require.False(t, s.Owner().Valid)
		require.Equal(t, kernel.Ready, k.State(procs[0]))

		err := s.Send(procs[0].Pid(), nil)
		require.Equal(t, kernel.ErrNullArgument, errors.Cause(err))
	})

	n.It("gives the line back when the owner cannot be suspended", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, _ := newSerial(t, k, DefaultConfig())

		require.NoError(t, k.SuspendIO(procs[0].Pid()))

		err := s.Send(procs[0].Pid(), []byte("x"))
		require.Equal(t, kernel.ErrInvalidArgument, errors.Cause(err))
		require.False(t, s.Owner().Valid)
		require.Equal(t, Unused, s.Mode())
	})

	n.Meow()
}

func TestSerialReceive(t *testing.T) {
	n := neko.Modern(t)

	n.It("reads up to the line terminator", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, port := newSerial(t, k, DefaultConfig())

		port.Inject([]byte("stale"))

		buf := make([]byte, 8)
		require.NoError(t, s.Receive(procs[0].Pid(), buf))
		require.Equal(t, Receiving, s.Mode())

		port.Inject([]byte("hi\rmore"))
		s.Interrupt()

		require.Equal(t, kernel.Ready, k.State(procs[0]))

		v0, _ := k.Result(procs[0])
		require.Equal(t, int32(2), v0)
		require.Equal(t, "hi", string(buf[:v0]))
		require.Equal(t, Unused, s.Mode())
	})

	n.It("stops at the buffer length", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, port := newSerial(t, k, DefaultConfig())

		buf := make([]byte, 3)
		require.NoError(t, s.Receive(procs[0].Pid(), buf))

		port.Inject([]byte("ab"))
		s.Interrupt()
		require.Equal(t, kernel.WaitingIO, k.State(procs[0]))

		port.Inject([]byte("cdef"))
		s.Interrupt()

		v0, _ := k.Result(procs[0])
		require.Equal(t, int32(3), v0)
		require.Equal(t, "abc", string(buf))
	})

	n.It("rejects empty buffers", func(t *testing.T) {
		k, procs := newKernel(t, 1)
		s, _ := newSerial(t, k, DefaultConfig())

		err := s.Receive(procs[0].Pid(), []byte{})
		require.Equal(t, kernel.ErrInvalidArgument, errors.Cause(err))

		err = s.Receive(procs[0].Pid(), nil)
		require.Equal(t, kernel.ErrNullArgument, errors.Cause(err))
	})

	n.Meow()
}

func TestSerialDrive(t *testing.T) {
	k, procs := newKernel(t, 2)

	var out bytes.Buffer

	port := NewSimPort(&out)

	s, err := NewSerial(DefaultConfig(), k, port, hclog.NewNullLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{}, 2)
	ev := s.Events().RegisterChannel(TransferDone, done)
	defer s.Events().Unregister(ev)

	go s.Drive(ctx, port)

	require.NoError(t, s.Send(procs[0].Pid(), []byte("one\n")))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("transfer never finished")
	}

	require.Equal(t, kernel.Ready, k.State(procs[0]))

	buf := make([]byte, 16)
	require.NoError(t, s.Receive(procs[1].Pid(), buf))

	port.Inject([]byte("two\n"))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("read never finished")
	}

	v0, _ := k.Result(procs[1])
	require.Equal(t, "two", string(buf[:v0]))
	require.Equal(t, "one\r\n", out.String())
}

// TestSerialDriveScheduled runs the interrupt pump next to a scheduler
// loop, with processes sending, being handed the line and exiting while
// transfers are in flight.
func TestSerialDriveScheduled(t *testing.T) {
	const (
		procs = 4
		lines = 3
	)

	k, pcbs := newKernel(t, procs)

	port := NewSimPort(nil)

	s, err := NewSerial(Config{BufferSize: 4, QueueSize: procs}, k, port, hclog.NewNullLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	woken := make(chan struct{}, 1)
	ev := k.Events().RegisterChannel(kernel.ProcessWoken, woken)
	defer k.Events().Unregister(ev)

	drained := make(chan struct{})

	go func() {
		defer close(drained)
		s.Drive(ctx, port)
	}()

	sent := make(map[int]int)

	for k.Live() > 0 {
		p := k.Schedule()
		if p == nil {
			select {
			case <-woken:
			case <-ctx.Done():
				t.Fatalf("stalled with %d processes", k.Live())
			}

			continue
		}

		pid := p.Pid()

		if n := sent[pid]; n > 0 {
			v0, _ := k.Result(p)
			require.Equal(t, int32(kernel.Success), v0, "pid %d line %d", pid, n)
		}

		if sent[pid] == lines {
			require.NoError(t, k.Exit(pid, 0))
			continue
		}

		sent[pid]++
		require.NoError(t, s.Send(pid, []byte(fmt.Sprintf("p%d:%d\n", pid, sent[pid]))))
	}

	cancel()
	<-drained

	wire := string(port.Sent())

	for _, p := range pidsOf(pcbs) {
		for i := 1; i <= lines; i++ {
			require.Equal(t, 1, strings.Count(wire, fmt.Sprintf("p%d:%d\r\n", p, i)))
		}
	}

	require.False(t, s.Owner().Valid)
	require.Empty(t, s.WaitingPids())
}
