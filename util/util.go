package util

import "log"

// Debug is the verbosity of DPrintf; 0 silences everything but level 0.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp returns the number of sz-sized units needed to hold n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}
