package syscall

import (
	"github.com/mit-pdos/ezos/file"
)

// gpuRes packs the resolution as width<<32 | height.
func (d *Dispatcher) gpuRes() int64 {
	if d.gpu == nil {
		return EFail
	}
	x, y := d.gpu.Resolution()
	return int64(x)<<32 | int64(y)
}

func (d *Dispatcher) fbfd() int64 {
	if d.gpu == nil {
		return EFail
	}
	return int64(d.sys.CurrentProcess().AllocFd(file.NewFb(d.gpu)))
}

// inputEvent polls the input devices in order; 0 means no event.
func (d *Dispatcher) inputEvent() int64 {
	for _, dev := range d.inputs {
		if !dev.IsEmpty() {
			return int64(dev.ReadEvent())
		}
	}
	return 0
}
