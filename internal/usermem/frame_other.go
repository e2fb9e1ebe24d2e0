//go:build !unix

package usermem

import (
	"unsafe"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// frame is one page of user memory. Without mprotect the fault a revoked
// frame would raise is reported by load and store themselves.
type frame struct {
	mem     []byte
	revoked bool
}

func newFrame() (*frame, error) {
	return &frame{mem: make([]byte, abi.PageSize)}, nil
}

func (f *frame) revoke() error {
	f.revoked = true
	return nil
}

func (f *frame) release() error {
	f.mem = nil
	return nil
}

func (f *frame) load(off uint32) byte {
	if f.revoked {
		panic(&FaultError{Address: uintptr(unsafe.Pointer(&f.mem[off]))})
	}
	return f.mem[off]
}

func (f *frame) store(off uint32, b byte) {
	if f.revoked {
		panic(&FaultError{Address: uintptr(unsafe.Pointer(&f.mem[off]))})
	}
	f.mem[off] = b
}
