// Package fdtable maps a process's descriptor numbers to open files.
//
// A Table belongs to one process and is only touched by that process's
// thread, so it has no lock of its own. Every filesystem call it makes runs
// under the shared fsys.Serializer with the owning pid as holder.
package fdtable

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
)

// DefaultMaxOpen bounds a table when the caller does not.
const DefaultMaxOpen = 128

// firstFD is the first number handed out; 0 and 1 are the console.
const firstFD = abi.StdoutFileno + 1

var (
	// ErrBadDescriptor is returned for numbers not open in the table.
	ErrBadDescriptor = fmt.Errorf("bad file descriptor: %w", errdefs.ErrNotFound)

	// ErrTooManyOpen is returned when the table is full.
	ErrTooManyOpen = fmt.Errorf("too many open files: %w", errdefs.ErrResourceExhausted)

	// errConsole is returned when a console number reaches the table.
	errConsole = errors.New("console descriptors are not in the table")
)

// Table is a per-process descriptor table.
type Table struct {
	owner int
	fs    fsys.FileSystem
	ser   *fsys.Serializer
	max   int

	next  int
	files map[int]fsys.File
}

// New returns an empty table for process owner.
func New(owner int, fs fsys.FileSystem, ser *fsys.Serializer, maxOpen int) *Table {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	return &Table{
		owner: owner,
		fs:    fs,
		ser:   ser,
		max:   maxOpen,
		next:  firstFD,
		files: make(map[int]fsys.File),
	}
}

// Open opens name and returns a fresh descriptor. Numbers are never
// reused within a table.
func (t *Table) Open(name string) (int, error) {
	if len(t.files) >= t.max {
		return -1, ErrTooManyOpen
	}
	var f fsys.File
	err := t.ser.Do(t.owner, func() (err error) {
		f, err = t.fs.Open(name)
		return err
	})
	if err != nil {
		return -1, err
	}
	fd := t.next
	t.next++
	t.files[fd] = f
	return fd, nil
}

// Lookup returns the file open as fd.
func (t *Table) Lookup(fd int) (fsys.File, error) {
	if fd == abi.StdinFileno || fd == abi.StdoutFileno {
		return nil, fmt.Errorf("fd %d: %w: %w", fd, errConsole, ErrBadDescriptor)
	}
	f, ok := t.files[fd]
	if !ok {
		return nil, fmt.Errorf("fd %d: %w", fd, ErrBadDescriptor)
	}
	return f, nil
}

// Close closes fd and removes it from the table.
func (t *Table) Close(fd int) error {
	f, err := t.Lookup(fd)
	if err != nil {
		return err
	}
	delete(t.files, fd)
	return t.ser.Do(t.owner, f.Close)
}

// CloseAll closes every open descriptor. It returns the first close error
// but always empties the table.
func (t *Table) CloseAll() error {
	var first error
	for fd, f := range t.files {
		delete(t.files, fd)
		if err := t.ser.Do(t.owner, f.Close); err != nil && first == nil {
			first = fmt.Errorf("fd %d: %w", fd, err)
		}
	}
	return first
}

// Read reads from fd into the kernel buffer p.
func (t *Table) Read(fd int, p []byte) (int, error) {
	f, err := t.Lookup(fd)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.ser.Do(t.owner, func() (err error) {
		n, err = f.Read(p)
		return err
	})
	return n, err
}

// Write writes the kernel buffer p to fd.
func (t *Table) Write(fd int, p []byte) (int, error) {
	f, err := t.Lookup(fd)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.ser.Do(t.owner, func() (err error) {
		n, err = f.Write(p)
		return err
	})
	return n, err
}

// Seek moves fd's position.
func (t *Table) Seek(fd int, pos int64) error {
	f, err := t.Lookup(fd)
	if err != nil {
		return err
	}
	return t.ser.Do(t.owner, func() error {
		f.Seek(pos)
		return nil
	})
}

// Tell returns fd's position.
func (t *Table) Tell(fd int) (int64, error) {
	f, err := t.Lookup(fd)
	if err != nil {
		return -1, err
	}
	var pos int64
	_ = t.ser.Do(t.owner, func() error {
		pos = f.Tell()
		return nil
	})
	return pos, nil
}

// Filesize returns the length of the file open as fd.
func (t *Table) Filesize(fd int) (int64, error) {
	f, err := t.Lookup(fd)
	if err != nil {
		return -1, err
	}
	var n int64
	_ = t.ser.Do(t.owner, func() error {
		n = f.Length()
		return nil
	})
	return n, nil
}

// Len returns the number of open descriptors.
func (t *Table) Len() int {
	return len(t.files)
}
