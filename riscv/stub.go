package riscv

const (
	StubSize    uint64 = 64
	StubNameMax        = StubSize - 5
)

var stubMagic = []byte("EZGO")

// EncodeStub builds the entry stub naming a hosted function. User text
// segments are arrays of stubs; the hart decodes the stub at pc to find the
// code to run.
func EncodeStub(name string) []byte {
	if uint64(len(name)) > StubNameMax {
		panic("EncodeStub: name too long")
	}
	b := make([]byte, StubSize)
	copy(b, stubMagic)
	b[4] = byte(len(name))
	copy(b[5:], name)
	return b
}

// DecodeStub returns the function name in stub b, or false if b is not a
// valid stub.
func DecodeStub(b []byte) (string, bool) {
	if uint64(len(b)) < StubSize {
		return "", false
	}
	for i, c := range stubMagic {
		if b[i] != c {
			return "", false
		}
	}
	n := uint64(b[4])
	if n == 0 || n > StubNameMax {
		return "", false
	}
	return string(b[5 : 5+n]), true
}
