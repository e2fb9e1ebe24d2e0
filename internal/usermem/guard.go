package usermem

import (
	"fmt"
	"runtime/debug"
)

// FaultError reports a hardware fault taken inside a supervised user access.
type FaultError struct {
	Address uintptr
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("fault during user access at %#x", e.Address)
}

// Addr matches the method the runtime attaches to memory-fault panics.
func (e *FaultError) Addr() uintptr {
	return e.Address
}

// guarded runs fn with faults converted into panics and recovers the ones
// that carry a fault address. Any other panic is re-raised. Only the byte
// accesses performed by fn are supervised; callers keep fn down to the copy
// itself.
func guarded(fn func()) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(interface{ Addr() uintptr })
		if !ok {
			panic(r)
		}
		err = &FaultError{Address: f.Addr()}
	}()
	fn()
	return nil
}
