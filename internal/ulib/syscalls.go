package ulib

import (
	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// Halt powers the machine off.
func (u *User) Halt() {
	u.Syscall(abi.SysHalt)
	panic("ulib: halt returned")
}

// Exit ends the process with status.
func (u *User) Exit(status int) {
	u.Syscall(abi.SysExit, uint32(int32(status)))
	panic("ulib: exit returned")
}

// Exec starts cmdline and returns the child's pid, or -1.
func (u *User) Exec(cmdline string) int {
	return int(u.withString(cmdline, func(addr uint32) int32 {
		return u.Syscall(abi.SysExec, addr)
	}))
}

// Wait waits for child pid and returns its exit status, or -1.
func (u *User) Wait(pid int) int {
	return int(u.Syscall(abi.SysWait, uint32(int32(pid))))
}

// Create makes a file of size bytes.
func (u *User) Create(name string, size uint32) bool {
	return u.withString(name, func(addr uint32) int32 {
		return u.Syscall(abi.SysCreate, addr, size)
	}) != 0
}

// Remove deletes a file.
func (u *User) Remove(name string) bool {
	return u.withString(name, func(addr uint32) int32 {
		return u.Syscall(abi.SysRemove, addr)
	}) != 0
}

// Open returns a descriptor for name, or -1.
func (u *User) Open(name string) int {
	return int(u.withString(name, func(addr uint32) int32 {
		return u.Syscall(abi.SysOpen, addr)
	}))
}

// Filesize returns the size of the file open as fd, or -1.
func (u *User) Filesize(fd int) int {
	return int(u.Syscall(abi.SysFilesize, uint32(int32(fd))))
}

// Read reads up to n bytes from fd into user memory at buf.
func (u *User) Read(fd int, buf, n uint32) int {
	return int(u.Syscall(abi.SysRead, uint32(int32(fd)), buf, n))
}

// Write writes n bytes at buf to fd.
func (u *User) Write(fd int, buf, n uint32) int {
	return int(u.Syscall(abi.SysWrite, uint32(int32(fd)), buf, n))
}

// Seek sets fd's position.
func (u *User) Seek(fd int, pos uint32) {
	u.Syscall(abi.SysSeek, uint32(int32(fd)), pos)
}

// Tell returns fd's position, or -1.
func (u *User) Tell(fd int) int {
	return int(u.Syscall(abi.SysTell, uint32(int32(fd))))
}

// Close closes fd.
func (u *User) Close(fd int) {
	u.Syscall(abi.SysClose, uint32(int32(fd)))
}

// WriteString writes s to fd from the user stack and returns the number
// of bytes written. It stops at the first short write.
func (u *User) WriteString(fd int, s string) int {
	total := 0
	for len(s) > 0 {
		chunk := s[:min(len(s), stringChunk)]
		n := int(u.withStack([]byte(chunk), func(addr uint32) int32 {
			return int32(u.Write(fd, addr, uint32(len(chunk))))
		}))
		if n < 0 {
			return n
		}
		total += n
		if n < len(chunk) {
			break
		}
		s = s[n:]
	}
	return total
}

// Print writes s to the console.
func (u *User) Print(s string) {
	u.WriteString(abi.StdoutFileno, s)
}
