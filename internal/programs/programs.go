// Package programs holds the built-in user programs. Each one reaches the
// kernel only through its ulib.User.
package programs

import (
	"strings"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/loader"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/ulib"
)

const bufSize = 512

// All maps every built-in entry point to its program.
var All = map[string]ulib.Program{
	"echo": Echo,
	"cat":  Cat,
	"cp":   Copy,
	"rm":   Remove,
	"halt": Halt,
	"exec": Exec,
}

// Register adds every built-in program to reg.
func Register(reg *loader.Registry) {
	for entry, prog := range All {
		reg.Register(entry, prog)
	}
}

// Echo prints its arguments separated by spaces.
func Echo(u *ulib.User) int {
	args := u.Args()
	u.Print(strings.Join(args[1:], " ") + "\n")
	return 0
}

// Cat copies each named file to the console, or the console's input to its
// output up to the first newline when given no files.
func Cat(u *ulib.User) int {
	args := u.Args()
	buf := u.Alloc(bufSize)
	if len(args) == 1 {
		for {
			if u.Read(abi.StdinFileno, buf, 1) != 1 {
				return 1
			}
			c := u.Load(buf, 1)[0]
			if c == 0 {
				return 0
			}
			u.Write(abi.StdoutFileno, buf, 1)
			if c == '\n' {
				return 0
			}
		}
	}
	status := 0
	for _, name := range args[1:] {
		fd := u.Open(name)
		if fd < 0 {
			u.Print(args[0] + ": " + name + ": open failed\n")
			status = 1
			continue
		}
		if copyFD(u, fd, abi.StdoutFileno, buf) < 0 {
			status = 1
		}
		u.Close(fd)
	}
	return status
}

// Copy copies one file to another, creating the destination.
func Copy(u *ulib.User) int {
	args := u.Args()
	if len(args) != 3 {
		u.Print("usage: cp FROM TO\n")
		return 1
	}
	from, to := args[1], args[2]
	src := u.Open(from)
	if src < 0 {
		u.Print("cp: " + from + ": open failed\n")
		return 1
	}
	defer u.Close(src)
	if !u.Create(to, 0) {
		u.Print("cp: " + to + ": create failed\n")
		return 1
	}
	dst := u.Open(to)
	if dst < 0 {
		u.Print("cp: " + to + ": open failed\n")
		return 1
	}
	defer u.Close(dst)
	if copyFD(u, src, dst, u.Alloc(bufSize)) < 0 {
		u.Print("cp: " + to + ": write failed\n")
		return 1
	}
	return 0
}

// Remove deletes each named file.
func Remove(u *ulib.User) int {
	status := 0
	for _, name := range u.Args()[1:] {
		if !u.Remove(name) {
			u.Print("rm: " + name + ": remove failed\n")
			status = 1
		}
	}
	return status
}

// Halt powers the machine off.
func Halt(u *ulib.User) int {
	u.Halt()
	return 0
}

// Exec runs the rest of its command line as a child, waits for it and
// exits with the child's status.
func Exec(u *ulib.User) int {
	args := u.Args()
	if len(args) < 2 {
		u.Print("usage: exec PROGRAM [ARG...]\n")
		return -1
	}
	pid := u.Exec(strings.Join(args[1:], " "))
	if pid < 0 {
		u.Print("exec: " + args[1] + ": exec failed\n")
		return -1
	}
	return u.Wait(pid)
}

// copyFD copies src to dst through buf until src runs out. It returns the
// number of bytes copied, or -1 on a failed or short write.
func copyFD(u *ulib.User, src, dst int, buf uint32) int {
	total := 0
	for {
		n := u.Read(src, buf, bufSize)
		if n <= 0 {
			return total
		}
		if u.Write(dst, buf, uint32(n)) != n {
			return -1
		}
		total += n
	}
}
