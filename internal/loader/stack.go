package loader

import (
	"errors"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

// ErrArgsTooLong indicates arguments that do not fit on the initial stack.
var ErrArgsTooLong = errors.New("arguments do not fit on the stack")

// stack pushes words and bytes downward from the top of the user stack,
// never below limit.
type stack struct {
	as    *usermem.AddressSpace
	sp    uint32
	limit uint32
}

func (s *stack) reserve(n int) error {
	if uint64(s.sp) < uint64(s.limit)+uint64(n) {
		return ErrArgsTooLong
	}
	s.sp -= uint32(n)
	return nil
}

func (s *stack) pushBytes(p []byte) error {
	if err := s.reserve(len(p)); err != nil {
		return err
	}
	if !s.as.WriteUser(s.sp, p) {
		return errors.New("stack page not writable")
	}
	return nil
}

func (s *stack) pushWord(v uint32) error {
	if err := s.reserve(abi.WordSize); err != nil {
		return err
	}
	if !s.as.WriteWord(s.sp, v) {
		return errors.New("stack page not writable")
	}
	return nil
}

// setupStack lays out argv below top as main(argc, argv) expects to find
// it and returns the initial stack pointer:
//
//	top:   argument strings, last first, NUL terminated
//	       padding to a word boundary
//	       argv[argc] = NULL
//	       argv[argc-1] ... argv[0]
//	       argv
//	       argc
//	esp:   return address (0)
func setupStack(as *usermem.AddressSpace, args []string, top, limit uint32) (uint32, error) {
	s := &stack{as: as, sp: top, limit: limit}

	ptrs := make([]uint32, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		if err := s.pushBytes(append([]byte(args[i]), 0)); err != nil {
			return 0, err
		}
		ptrs[i] = s.sp
	}
	if err := s.reserve(int(s.sp % abi.WordSize)); err != nil {
		return 0, err
	}
	if err := s.pushWord(0); err != nil {
		return 0, err
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		if err := s.pushWord(ptrs[i]); err != nil {
			return 0, err
		}
	}
	argv := s.sp
	for _, w := range []uint32{argv, uint32(len(args)), 0} {
		if err := s.pushWord(w); err != nil {
			return 0, err
		}
	}
	return s.sp, nil
}
