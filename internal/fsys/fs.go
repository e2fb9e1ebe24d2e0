package fsys

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// inode is the in-memory state of an inode with at least one open handle.
type inode struct {
	ino       Inum
	opens     int
	denyWrite int
	removed   bool
}

// FS implements FileSystem over a Backend.
type FS struct {
	backend Backend
	nameMax int
	maxSize int64
	open    map[Inum]*inode
}

// Option configures an FS.
type Option func(*FS)

// WithNameMax overrides NameMax.
func WithNameMax(n int) Option {
	return func(fs *FS) {
		fs.nameMax = n
	}
}

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(fs *FS) {
		fs.maxSize = n
	}
}

// New returns a FileSystem backed by b.
func New(b Backend, opts ...Option) *FS {
	fs := &FS{
		backend: b,
		nameMax: NameMax,
		maxSize: DefaultMaxSize,
		open:    make(map[Inum]*inode),
	}
	for _, o := range opts {
		o(fs)
	}
	return fs
}

// Create makes a zero-filled file of length bytes.
func (fs *FS) Create(name string, length int64) error {
	if err := ValidateName(name, fs.nameMax); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("create %q: negative length: %w", name, errdefs.ErrInvalidArgument)
	}
	if length > fs.maxSize {
		return fmt.Errorf("create %q: %d bytes, at most %d: %w", name, length, fs.maxSize, ErrFileTooLarge)
	}
	if _, err := fs.backend.Create(name, length); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	return nil
}

// Remove unlinks name. The inode is freed now if nothing has it open,
// otherwise when the last handle closes.
func (fs *FS) Remove(name string) error {
	if err := ValidateName(name, fs.nameMax); err != nil {
		return err
	}
	ino, err := fs.backend.Unlink(name)
	if err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	if in, ok := fs.open[ino]; ok {
		in.removed = true
		return nil
	}
	return fs.backend.Free(ino)
}

// Open returns a new handle on name.
func (fs *FS) Open(name string) (File, error) {
	if err := ValidateName(name, fs.nameMax); err != nil {
		return nil, err
	}
	ino, err := fs.backend.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	in, ok := fs.open[ino]
	if !ok {
		in = &inode{ino: ino}
		fs.open[ino] = in
	}
	in.opens++
	return &file{fs: fs, inode: in}, nil
}

// MaxSize returns the largest a file may grow.
func (fs *FS) MaxSize() int64 {
	return fs.maxSize
}

// OpenInodes returns the number of inodes with open handles.
func (fs *FS) OpenInodes() int {
	return len(fs.open)
}

// Close releases the backend.
func (fs *FS) Close() error {
	return fs.backend.Close()
}

func (fs *FS) release(in *inode) error {
	in.opens--
	if in.opens > 0 {
		return nil
	}
	delete(fs.open, in.ino)
	if !in.removed {
		return nil
	}
	if err := fs.backend.Free(in.ino); err != nil {
		log.L.WithError(err).WithField("inode", in.ino).Warn("failed to free removed inode")
		return err
	}
	return nil
}

type file struct {
	fs     *FS
	inode  *inode
	pos    int64
	denied bool
	closed bool
}

func (f *file) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	n, err := f.fs.backend.ReadAt(f.inode.ino, p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *file) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.inode.denyWrite > 0 {
		return 0, nil
	}
	// Writes stop at the size limit; a write starting there moves nothing.
	if room := f.fs.maxSize - f.pos; room <= 0 {
		return 0, nil
	} else if int64(len(p)) > room {
		p = p[:room]
	}
	n, err := f.fs.backend.WriteAt(f.inode.ino, p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *file) Seek(pos int64) {
	f.pos = max(pos, 0)
}

func (f *file) Tell() int64 {
	return f.pos
}

func (f *file) Length() int64 {
	n, err := f.fs.backend.Length(f.inode.ino)
	if err != nil {
		log.L.WithError(err).WithField("inode", f.inode.ino).Warn("failed to read inode length")
		return 0
	}
	return n
}

func (f *file) DenyWrite() {
	if f.denied || f.closed {
		return
	}
	f.denied = true
	f.inode.denyWrite++
}

func (f *file) AllowWrite() {
	if !f.denied {
		return
	}
	f.denied = false
	f.inode.denyWrite--
}

func (f *file) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.AllowWrite()
	f.closed = true
	return f.fs.release(f.inode)
}

// Clamp returns how many of n bytes at off can be read from a file of
// length bytes.
func Clamp(length, off int64, n int) int {
	if off >= length {
		return 0
	}
	return int(min(int64(n), length-off))
}
