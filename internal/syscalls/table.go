package syscalls

import (
	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// args are the raw argument words following the syscall number.
type args [abi.MaxSyscallArgs]uint32

// request is one decoded syscall. Each syscall has its own request type
// carrying exactly the arguments it takes, typed.
type request interface {
	run(c *call) int32
}

type (
	haltRequest     struct{}
	exitRequest     struct{ status int32 }
	execRequest     struct{ cmdline uint32 }
	waitRequest     struct{ pid int32 }
	createRequest   struct{ name, size uint32 }
	removeRequest   struct{ name uint32 }
	openRequest     struct{ name uint32 }
	filesizeRequest struct{ fd int32 }
	readRequest     struct{ fd int32; buf, size uint32 }
	writeRequest    struct{ fd int32; buf, size uint32 }
	seekRequest     struct{ fd int32; pos uint32 }
	tellRequest     struct{ fd int32 }
	closeRequest    struct{ fd int32 }
)

type sysentry struct {
	argc   int
	decode func(a args) request
}

// sysent is indexed by abi.Number. Dispatch bounds-checks before indexing.
var sysent = [abi.NumSyscalls]sysentry{
	abi.SysHalt:     {0, func(args) request { return haltRequest{} }},
	abi.SysExit:     {1, func(a args) request { return exitRequest{int32(a[0])} }},
	abi.SysExec:     {1, func(a args) request { return execRequest{a[0]} }},
	abi.SysWait:     {1, func(a args) request { return waitRequest{int32(a[0])} }},
	abi.SysCreate:   {2, func(a args) request { return createRequest{a[0], a[1]} }},
	abi.SysRemove:   {1, func(a args) request { return removeRequest{a[0]} }},
	abi.SysOpen:     {1, func(a args) request { return openRequest{a[0]} }},
	abi.SysFilesize: {1, func(a args) request { return filesizeRequest{int32(a[0])} }},
	abi.SysRead:     {3, func(a args) request { return readRequest{int32(a[0]), a[1], a[2]} }},
	abi.SysWrite:    {3, func(a args) request { return writeRequest{int32(a[0]), a[1], a[2]} }},
	abi.SysSeek:     {2, func(a args) request { return seekRequest{int32(a[0]), a[1]} }},
	abi.SysTell:     {1, func(a args) request { return tellRequest{int32(a[0])} }},
	abi.SysClose:    {1, func(a args) request { return closeRequest{int32(a[0])} }},
}

// Argc returns the number of argument words syscall n takes.
func Argc(n abi.Number) (int, bool) {
	if n >= abi.NumSyscalls {
		return 0, false
	}
	return sysent[n].argc, true
}
