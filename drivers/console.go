package drivers

import (
	"bytes"
	"io"
	"sync"

	"github.com/mit-pdos/ezos/file"
)

var _ file.Console = (*BufConsole)(nil)

// BufConsole is a serial line: input fed by the host is buffered until
// read, output goes straight to w.
type BufConsole struct {
	mu   *sync.Mutex
	in   bytes.Buffer
	out  io.Writer
	plic *Plic
}

func NewBufConsole(w io.Writer, plic *Plic) *BufConsole {
	return &BufConsole{mu: new(sync.Mutex), out: w, plic: plic}
}

// Feed queues input and raises the console irq.
func (c *BufConsole) Feed(data []byte) {
	c.mu.Lock()
	c.in.Write(data)
	c.mu.Unlock()
	if c.plic != nil {
		c.plic.Raise(ConsoleIRQ)
	}
}

func (c *BufConsole) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.in.ReadByte()
}

func (c *BufConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}
