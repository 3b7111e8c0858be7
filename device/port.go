package device

import (
	"io"
	"sync"
)

// Port is the register interface of a UART.
type Port interface {
	// TxReady reports whether the transmit holding register is empty.
	TxReady() bool
	Transmit(c byte)

	// Receive pops a received byte, ok is false when none is waiting.
	Receive() (c byte, ok bool)

	SetTxInterrupt(on bool)
	SetRxInterrupt(on bool)
}

// SimPort is an in-memory UART. Transmitted bytes go to an io.Writer and
// are recorded; received bytes are whatever was injected.
type SimPort struct {
	mu sync.Mutex

	out  io.Writer
	sent []byte
	in   []byte

	txIE bool
	rxIE bool

	irq chan struct{}
}

func NewSimPort(out io.Writer) *SimPort {
	return &SimPort{
		out: out,
		irq: make(chan struct{}, 1),
	}
}

func (s *SimPort) raise() {
	select {
	case s.irq <- struct{}{}:
	default:
	}
}

// IRQ is signalled whenever the port may have become ready to interrupt.
func (s *SimPort) IRQ() <-chan struct{} {
	return s.irq
}

func (s *SimPort) TxReady() bool {
	return true
}

func (s *SimPort) Transmit(c byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, c)

	if s.out != nil {
		s.out.Write([]byte{c})
	}
}

func (s *SimPort) Receive() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.in) == 0 {
		return 0, false
	}

	c := s.in[0]
	s.in = s.in[1:]

	return c, true
}

func (s *SimPort) SetTxInterrupt(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txIE = on

	if on {
		s.raise()
	}
}

func (s *SimPort) SetRxInterrupt(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rxIE = on

	if on {
		s.raise()
	}
}

// Inject queues bytes as if they arrived on the line.
func (s *SimPort) Inject(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.in = append(s.in, data...)

	s.raise()
}

// Sent returns a copy of every byte transmitted so far.
func (s *SimPort) Sent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.sent...)
}

// Pending reports whether the port would raise an interrupt now.
func (s *SimPort) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.txIE || (s.rxIE && len(s.in) > 0)
}
