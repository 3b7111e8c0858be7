package device

import (
	"context"
	"sync"

	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/log"
	"github.com/evanphx/malta/pkg/fifo"
	"github.com/evanphx/malta/pkg/waiter"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	_ waiter.EventType = 1 << iota
	TransferStarted
	TransferDone
)

type Config struct {
	// BufferSize bounds the bytes held back between interrupts, such as
	// the line feed following a carriage return.
	BufferSize int `yaml:"buffer_size"`

	// QueueSize bounds the processes waiting for the line.
	QueueSize int `yaml:"queue_size"`
}

var ErrBadConfig = errors.New("bad serial config")

func DefaultConfig() Config {
	return Config{
		BufferSize: 30,
		QueueSize:  15,
	}
}

func (c Config) Validate() error {
	if c.BufferSize < 0 {
		return errors.Wrapf(ErrBadConfig, "buffer_size must not be negative, got %d", c.BufferSize)
	}

	if c.QueueSize < 0 {
		return errors.Wrapf(ErrBadConfig, "queue_size must not be negative, got %d", c.QueueSize)
	}

	return nil
}

type request struct {
	mode Mode
	data []byte
}

// Serial drives a UART on behalf of processes. One process owns the line
// per transfer; the calling process is suspended until its transfer ends
// and the result is delivered to its first result register.
type Serial struct {
	L hclog.Logger

	mu sync.Mutex

	sched Scheduler
	port  Port
	arb   *Arbiter
	buf   *fifo.Fifo[byte]

	out    []byte
	outIdx int

	in    []byte
	inLen int

	pending map[int]request

	events waiter.Waiter
}

func NewSerial(cfg Config, sched Scheduler, port Port, l hclog.Logger) (*Serial, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Serial{
		L:       log.Or(l),
		sched:   sched,
		port:    port,
		arb:     NewArbiter(sched, cfg.QueueSize, l),
		buf:     fifo.New[byte](cfg.BufferSize),
		pending: make(map[int]request),
	}

	s.arb.Handoff = s.reissue

	return s, nil
}

// Events is notified with TransferStarted and TransferDone.
func (s *Serial) Events() *waiter.Waiter {
	return &s.events
}

// Owner is the pid holding the line, if any.
func (s *Serial) Owner() kernel.NullPid {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.arb.Owner()
}

func (s *Serial) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.arb.Mode()
}

func (s *Serial) WaitingPids() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.arb.WaitingPids()
}

// Send transmits data for pid. On a nil error pid is suspended, either
// while its bytes go out or while it waits for the line; the outcome
// arrives as its syscall result. Empty data completes at once without
// suspending.
func (s *Serial) Send(pid int, data []byte) error {
	if data == nil {
		return errors.Wrap(kernel.ErrNullArgument, "send buffer")
	}

	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issue(pid, request{mode: Sending, data: data})
}

// Receive reads a line for pid into buf, up to len(buf) bytes. The line
// terminator is not stored. The byte count arrives as its syscall result.
func (s *Serial) Receive(pid int, buf []byte) error {
	if buf == nil {
		return errors.Wrap(kernel.ErrNullArgument, "receive buffer")
	}

	if len(buf) == 0 {
		return errors.Wrap(kernel.ErrInvalidArgument, "empty receive buffer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issue(pid, request{mode: Receiving, data: buf})
}

func (s *Serial) issue(pid int, req request) error {
	if s.arb.Owner() == kernel.SomePid(pid) && s.arb.Mode() != Unused {
		return errors.Wrapf(kernel.ErrInvalidArgument, "pid %d already has a transfer in progress", pid)
	}

	granted, err := s.arb.Request(pid)
	if err != nil {
		return err
	}

	if !granted {
		s.pending[pid] = req
		return nil
	}

	return s.start(pid, req)
}

// reissue starts the queued request of pid as the line is handed to it.
// pid stays suspended throughout, so it can not be scheduled between
// leaving the queue and owning the transfer. A pid that is no longer
// waiting, because it exited, is refused.
func (s *Serial) reissue(pid int) bool {
	req, ok := s.pending[pid]
	delete(s.pending, pid)

	if !s.sched.InIOWait(pid) {
		return false
	}

	if !ok {
		if err := s.sched.ResumeIO(pid, int32(kernel.Success)); err != nil {
			s.L.Warn("unable to resume serial waiter", "pid", pid, "error", err)
		}

		return false
	}

	s.begin(pid, req)

	return true
}

// start suspends pid, which was just granted the line, and puts req in
// progress.
func (s *Serial) start(pid int, req request) error {
	if err := s.sched.SuspendIO(pid); err != nil {
		s.arb.Abandon()
		return err
	}

	s.begin(pid, req)

	return nil
}

func (s *Serial) begin(pid int, req request) {
	s.arb.SetMode(req.mode)

	switch req.mode {
	case Sending:
		s.out = req.data
		s.outIdx = 0
		s.port.SetTxInterrupt(true)
	case Receiving:
		s.in = req.data
		s.inLen = 0
		s.clean()
		s.port.SetRxInterrupt(true)
	}

	s.L.Trace("serial-start", "pid", pid, "mode", req.mode, "len", len(req.data))

	s.events.Notify(TransferStarted)
}

// clean throws away input that arrived before the read began.
func (s *Serial) clean() {
	for {
		if _, ok := s.port.Receive(); !ok {
			return
		}
	}
}

// Interrupt is the UART interrupt handler.
func (s *Serial) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.arb.Mode() {
	case Sending:
		s.transmit()
	case Receiving:
		s.receive()
	default:
		s.port.SetTxInterrupt(false)
		s.port.SetRxInterrupt(false)
	}
}

func (s *Serial) transmit() {
	if s.port.TxReady() {
		c, ok := s.buf.Pop()
		if !ok && s.outIdx < len(s.out) {
			c = s.out[s.outIdx]
			s.outIdx++
			ok = true

			// the line wants CR LF; LF goes out on the next interrupt
			if c == '\n' {
				c = '\r'
				if !s.buf.Push('\n') {
					s.finish(int32(kernel.ErrGeneralFailure))
					return
				}
			}
		}

		if ok {
			s.port.Transmit(c)
		}
	}

	if s.outIdx >= len(s.out) && s.buf.Empty() {
		s.finish(int32(kernel.Success))
		return
	}

	s.port.SetTxInterrupt(true)
}

func (s *Serial) receive() {
	for {
		c, ok := s.port.Receive()
		if !ok {
			return
		}

		if c == '\n' || c == '\r' {
			s.finish(int32(s.inLen))
			return
		}

		s.in[s.inLen] = c
		s.inLen++

		if s.inLen >= len(s.in) {
			s.finish(int32(s.inLen))
			return
		}
	}
}

// finish ends the transfer in progress, delivering code to its owner and
// passing the line on.
func (s *Serial) finish(code int32) {
	s.port.SetTxInterrupt(false)
	s.port.SetRxInterrupt(false)
	s.buf.Reset()

	s.out, s.outIdx = nil, 0
	s.in, s.inLen = nil, 0

	s.L.Trace("serial-finish", "code", code)

	s.arb.Release(code)

	s.events.Notify(TransferDone)
}

// Line is a port that can tell when it would interrupt.
type Line interface {
	Port

	Pending() bool
	IRQ() <-chan struct{}
}

// Drive plays the interrupt controller for line: whenever the line has an
// interrupt pending the handler runs. It returns when ctx is done.
func (s *Serial) Drive(ctx context.Context, line Line) error {
	for {
		for line.Pending() {
			s.Interrupt()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-line.IRQ():
		}
	}
}
