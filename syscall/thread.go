package syscall

func (d *Dispatcher) threadCreate(entry uint64, arg uint64) int64 {
	return int64(d.sys.ThreadCreate(d.sys.CurrentProcess(), entry, arg))
}

func (d *Dispatcher) waittid(tid uint64) int64 {
	return int64(d.sys.WaitTid(d.sys.CurrentTask(), tid))
}
