// Package abi defines the calling convention shared by the trap entry and
// the user syscall library: syscall numbers, the trap frame, and the user
// address-space layout.
package abi

import "fmt"

const (
	// PageSize is the size of a user page and of a kernel staging buffer.
	PageSize = 4096

	// WordSize is the width of a syscall number or argument on the user stack.
	WordSize = 4

	// PhysBase is the kernel/user address split. Every user address is
	// strictly below it.
	PhysBase uint32 = 0xC0000000

	// CodeBase is where the loader maps the read-only image page. The data
	// segment follows it.
	CodeBase uint32 = 0x08048000

	// MaxSyscallArgs is the largest arity in the syscall table.
	MaxSyscallArgs = 3
)

// Console descriptors. They never appear in a process's descriptor table.
const (
	StdinFileno  = 0
	StdoutFileno = 1
)

// StatusFault is the exit status of a process killed by the kernel.
const StatusFault = -1

// Number is a syscall number as read from the user stack.
type Number uint32

const (
	SysHalt Number = iota
	SysExit
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose

	// NumSyscalls is the size of the syscall table.
	NumSyscalls
)

var names = [NumSyscalls]string{
	"halt", "exit", "exec", "wait", "create", "remove", "open",
	"filesize", "read", "write", "seek", "tell", "close",
}

func (n Number) String() string {
	if n < NumSyscalls {
		return names[n]
	}
	return fmt.Sprintf("syscall(%d)", uint32(n))
}

// Frame is the slice of the saved trap frame the syscall path uses.
type Frame struct {
	// ESP is the user stack pointer at the time of the trap.
	ESP uint32
	// EAX receives the syscall result.
	EAX uint32
}
