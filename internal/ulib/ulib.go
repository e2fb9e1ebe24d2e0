// Package ulib is the user side of the syscall interface. A Program gets a
// User and may only reach the kernel through it: every syscall pushes its
// number and arguments on the user stack and traps, exactly as a user binary
// linked against the C library stubs would.
package ulib

import (
	"encoding/binary"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

// Program is a user program's main. Returning from it is exit(status).
type Program func(u *User) int

// Trap enters the kernel with the frame; the kernel leaves its result in
// f.EAX.
type Trap func(f *abi.Frame)

// Fault is the kernel's page fault handler for a user-mode access to addr.
// It does not return.
type Fault func(addr uint32)

// stringChunk bounds how much of a string or buffer is staged on the user
// stack at a time.
const stringChunk = 512

// User is a running program's view of its own address space.
type User struct {
	mem   *usermem.AddressSpace
	trap  Trap
	fault Fault

	esp uint32
	sp  uint32

	brk     uint32
	dataEnd uint32
}

// Config describes the initial register and segment state of a process.
type Config struct {
	ESP       uint32
	DataStart uint32
	DataEnd   uint32
}

// New returns the user context for a freshly loaded image.
func New(mem *usermem.AddressSpace, trap Trap, fault Fault, cfg Config) *User {
	return &User{
		mem:     mem,
		trap:    trap,
		fault:   fault,
		esp:     cfg.ESP,
		sp:      cfg.ESP,
		brk:     cfg.DataStart,
		dataEnd: cfg.DataEnd,
	}
}

// ESP returns the stack pointer the program started with.
func (u *User) ESP() uint32 {
	return u.esp
}

// Memory returns the program's address space.
func (u *User) Memory() *usermem.AddressSpace {
	return u.mem
}

// Load reads n bytes at addr. A bad address faults.
func (u *User) Load(addr uint32, n int) []byte {
	buf := make([]byte, n)
	if !u.mem.ReadUser(buf, addr) {
		u.fault(addr)
	}
	return buf
}

// Store writes p at addr. A bad address faults.
func (u *User) Store(addr uint32, p []byte) {
	if !u.mem.WriteUser(addr, p) {
		u.fault(addr)
	}
}

// Word reads the 32-bit word at addr.
func (u *User) Word(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(u.Load(addr, abi.WordSize))
}

// StoreWord writes a 32-bit word at addr.
func (u *User) StoreWord(addr, v uint32) {
	u.Store(addr, binary.LittleEndian.AppendUint32(nil, v))
}

// String reads the NUL-terminated string at addr.
func (u *User) String(addr uint32) string {
	var s []byte
	for a := addr; ; a++ {
		c := u.Load(a, 1)[0]
		if c == 0 {
			return string(s)
		}
		s = append(s, c)
	}
}

// Args decodes argc and argv from the initial stack frame.
func (u *User) Args() []string {
	argc := u.Word(u.esp + abi.WordSize)
	argv := u.Word(u.esp + 2*abi.WordSize)
	args := make([]string, 0, min(argc, 64))
	for i := range argc {
		args = append(args, u.String(u.Word(argv+i*abi.WordSize)))
	}
	return args
}

// Alloc reserves n bytes in the data segment and returns their address.
// Running out of data segment faults at the first byte past it.
func (u *User) Alloc(n int) uint32 {
	addr := u.brk
	end := uint64(addr) + uint64(n)
	if end > uint64(u.dataEnd) {
		u.fault(u.dataEnd)
	}
	u.brk = uint32(end+abi.WordSize-1) &^ (abi.WordSize - 1)
	return addr
}

// PutString stores s NUL-terminated in the data segment.
func (u *User) PutString(s string) uint32 {
	addr := u.Alloc(len(s) + 1)
	u.Store(addr, append([]byte(s), 0))
	return addr
}

// push lowers the stack pointer by n bytes, word aligned, and returns the
// new top.
func (u *User) push(n int) uint32 {
	u.sp -= uint32(n+abi.WordSize-1) &^ (abi.WordSize - 1)
	return u.sp
}

// withStack runs fn with p copied onto the stack and pops it afterwards.
func (u *User) withStack(p []byte, fn func(addr uint32) int32) int32 {
	saved := u.sp
	defer func() { u.sp = saved }()
	addr := u.push(len(p))
	u.Store(addr, p)
	return fn(addr)
}

func (u *User) withString(s string, fn func(addr uint32) int32) int32 {
	return u.withStack(append([]byte(s), 0), fn)
}

// Syscall pushes n and args on the stack and traps. It returns the
// kernel's result register.
func (u *User) Syscall(n abi.Number, args ...uint32) int32 {
	saved := u.sp
	defer func() { u.sp = saved }()

	sp := u.push((len(args) + 1) * abi.WordSize)
	u.StoreWord(sp, uint32(n))
	for i, a := range args {
		u.StoreWord(sp+uint32(i+1)*abi.WordSize, a)
	}
	return u.TrapAt(sp)
}

// TrapAt traps with an arbitrary stack pointer, whatever it points at.
func (u *User) TrapAt(esp uint32) int32 {
	f := abi.Frame{ESP: esp}
	u.trap(&f)
	return int32(f.EAX)
}
