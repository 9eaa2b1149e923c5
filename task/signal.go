package task

import "fmt"

type SignalFlags uint32

const (
	SIGINT  = 2
	SIGILL  = 4
	SIGABRT = 6
	SIGFPE  = 8
	SIGSEGV = 11
)

var signalNames = map[int]string{
	SIGINT:  "SIGINT",
	SIGILL:  "SIGILL",
	SIGABRT: "SIGABRT",
	SIGFPE:  "SIGFPE",
	SIGSEGV: "SIGSEGV",
}

// checked in this order
var fatalSignals = []int{SIGINT, SIGILL, SIGABRT, SIGFPE, SIGSEGV}

func ValidSignal(sig int) bool {
	_, ok := signalNames[sig]
	return ok
}

func signalBit(sig int) SignalFlags {
	return SignalFlags(1) << uint(sig)
}

func (f SignalFlags) Has(sig int) bool {
	return f&signalBit(sig) != 0
}

// Fatal returns the exit code and message for the first pending fatal
// signal.
func (f SignalFlags) Fatal() (int, string, bool) {
	for _, sig := range fatalSignals {
		if f.Has(sig) {
			return -sig, fmt.Sprintf("Killed, %s=%d", signalNames[sig], sig), true
		}
	}
	return 0, "", false
}
