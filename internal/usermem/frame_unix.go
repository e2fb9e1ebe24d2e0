//go:build unix

package usermem

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// frame is one page of user memory backed by an anonymous mapping. A revoked
// frame is mprotected to PROT_NONE, so any touch raises a real fault.
type frame struct {
	mem []byte
}

func newFrame() (*frame, error) {
	mem, err := unix.Mmap(-1, 0, abi.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap user frame: %w", err)
	}
	return &frame{mem: mem}, nil
}

func (f *frame) revoke() error {
	if err := unix.Mprotect(f.mem, unix.PROT_NONE); err != nil {
		return fmt.Errorf("mprotect user frame: %w", err)
	}
	return nil
}

func (f *frame) release() error {
	if f.mem == nil {
		return nil
	}
	err := unix.Munmap(f.mem)
	f.mem = nil
	return err
}

func (f *frame) load(off uint32) byte {
	return f.mem[off]
}

func (f *frame) store(off uint32, b byte) {
	f.mem[off] = b
}
