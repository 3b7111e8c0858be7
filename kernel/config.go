package kernel

import (
	"github.com/pkg/errors"
)

// Config fixes the size of every kernel table. None of these change once
// the kernel is built.
type Config struct {
	// Capacity bounds the process table, the stack arena and every list.
	Capacity int `yaml:"capacity"`

	// StackWords is the size of one process stack in 32-bit words.
	StackWords int `yaml:"stack_words"`

	MinPriority int `yaml:"min_priority"`
	MaxPriority int `yaml:"max_priority"`

	// PidSpace is the number of distinct pids; 0 means Capacity.
	PidSpace int `yaml:"pid_space"`
}

var ErrBadConfig = errors.New("bad kernel config")

func DefaultConfig() Config {
	return Config{
		Capacity:    16,
		StackWords:  512,
		MinPriority: 1,
		MaxPriority: 10,
	}
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.Wrapf(ErrBadConfig, "capacity must be positive, got %d", c.Capacity)
	}

	if c.StackWords <= 0 {
		return errors.Wrapf(ErrBadConfig, "stack_words must be positive, got %d", c.StackWords)
	}

	if c.MinPriority > c.MaxPriority {
		return errors.Wrapf(ErrBadConfig, "min_priority %d above max_priority %d", c.MinPriority, c.MaxPriority)
	}

	if c.PidSpace != 0 && c.PidSpace < c.Capacity {
		return errors.Wrapf(ErrBadConfig, "pid_space %d smaller than capacity %d", c.PidSpace, c.Capacity)
	}

	return nil
}

func (c Config) pidSpace() int {
	if c.PidSpace == 0 {
		return c.Capacity
	}

	return c.PidSpace
}
