package drivers

import (
	"github.com/mit-pdos/ezos/file"
)

var _ file.GPU = (*MemGPU)(nil)

// MemGPU is a framebuffer in host memory. Flush copies the frame to the
// front buffer a viewer would scan out.
type MemGPU struct {
	width, height uint32
	back          []byte
	front         []byte
	flushes       int
}

func NewMemGPU(width, height uint32) *MemGPU {
	n := int(width) * int(height) * 4
	return &MemGPU{width: width, height: height, back: make([]byte, n), front: make([]byte, n)}
}

func (g *MemGPU) Resolution() (uint32, uint32) {
	return g.width, g.height
}

func (g *MemGPU) Framebuffer() []byte {
	return g.back
}

func (g *MemGPU) Flush() {
	copy(g.front, g.back)
	g.flushes++
}

// Front is the last flushed frame.
func (g *MemGPU) Front() []byte {
	return g.front
}

func (g *MemGPU) Flushes() int {
	return g.flushes
}
