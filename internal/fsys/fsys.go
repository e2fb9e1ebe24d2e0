// Package fsys is the kernel's view of the filesystem collaborator: the
// FileSystem and File contracts the syscall layer consumes, the Serializer
// that guards them, and FS, the shared file semantics every storage Backend
// gets.
//
// Nothing in this package is safe for concurrent use except the Serializer.
// Every call into a FileSystem or File must be made while holding it.
package fsys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

const (
	// NameMax is the longest file name the flat root directory accepts.
	NameMax = 14

	// DefaultMaxSize bounds how large a file may be created or grown,
	// about the size of a whole Pintos disk.
	DefaultMaxSize int64 = 8 << 20
)

var (
	// ErrInvalidName indicates an empty name or one containing '/' or NUL.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNameTooLong indicates a name longer than the directory allows.
	ErrNameTooLong = errors.New("file name too long")

	// ErrClosed indicates use of a file after Close.
	ErrClosed = errors.New("file already closed")

	// ErrFileTooLarge indicates a create beyond the size limit.
	ErrFileTooLarge = fmt.Errorf("file too large: %w", errdefs.ErrResourceExhausted)
)

// FileSystem is the set of path operations the kernel performs.
type FileSystem interface {
	// Create makes a new file of the given length, zero filled.
	Create(name string, length int64) error
	// Remove unlinks name. Open files keep working until closed.
	Remove(name string) error
	// Open returns a new handle positioned at offset 0.
	Open(name string) (File, error)
}

// File is an open file handle with its own position.
type File interface {
	// Read reads from the current position and advances it by the number
	// of bytes read. At or past end of file it returns 0.
	Read(p []byte) (int, error)
	// Write writes at the current position, growing the file if the
	// write ends past it, and advances by the number of bytes written. A
	// write-denied file accepts 0 bytes, and a file never grows past the
	// filesystem's size limit: the write comes up short instead.
	Write(p []byte) (int, error)
	// Seek sets the position. Positions past the end are allowed.
	Seek(pos int64)
	// Tell returns the current position.
	Tell() int64
	// Length returns the file size in bytes.
	Length() int64
	// DenyWrite blocks writes through every handle on this file until
	// AllowWrite is called on the same handle or it is closed.
	DenyWrite()
	// AllowWrite undoes this handle's DenyWrite.
	AllowWrite()
	// Close releases the handle.
	Close() error
}

// ValidateName checks name against the root directory's rules.
func ValidateName(name string, max int) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if len(name) > max {
		return fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	return nil
}
