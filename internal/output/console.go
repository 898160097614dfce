package output

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type ConsoleOutput struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleOutput writes to out, or stdout when out is nil.
func NewConsoleOutput(out io.Writer) *ConsoleOutput {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleOutput{out: out}
}

func (c *ConsoleOutput) WriteMessage(topic string, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", topic, msg); err != nil {
		return fmt.Errorf("failed to write to console: %w", err)
	}
	return nil
}

func (c *ConsoleOutput) Close() error {
	return nil
}
