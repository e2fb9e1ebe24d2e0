// Package memfs is an in-memory filesystem backend.
package memfs

import (
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
)

// Backend keeps inodes in maps. It is not safe for concurrent use; FS
// callers serialize through fsys.Serializer.
type Backend struct {
	next  fsys.Inum
	names map[string]fsys.Inum
	data  map[fsys.Inum][]byte
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		next:  1,
		names: make(map[string]fsys.Inum),
		data:  make(map[fsys.Inum][]byte),
	}
}

// New returns an empty in-memory filesystem.
func New(opts ...fsys.Option) *fsys.FS {
	return fsys.New(NewBackend(), opts...)
}

func (b *Backend) Lookup(name string) (fsys.Inum, error) {
	ino, ok := b.names[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, errdefs.ErrNotFound)
	}
	return ino, nil
}

func (b *Backend) Create(name string, length int64) (fsys.Inum, error) {
	if _, ok := b.names[name]; ok {
		return 0, fmt.Errorf("%q: %w", name, errdefs.ErrAlreadyExists)
	}
	ino := b.next
	b.next++
	b.names[name] = ino
	b.data[ino] = make([]byte, length)
	return ino, nil
}

func (b *Backend) Unlink(name string) (fsys.Inum, error) {
	ino, ok := b.names[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, errdefs.ErrNotFound)
	}
	delete(b.names, name)
	return ino, nil
}

func (b *Backend) inode(ino fsys.Inum) ([]byte, error) {
	d, ok := b.data[ino]
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", ino, errdefs.ErrNotFound)
	}
	return d, nil
}

func (b *Backend) Length(ino fsys.Inum) (int64, error) {
	d, err := b.inode(ino)
	if err != nil {
		return 0, err
	}
	return int64(len(d)), nil
}

func (b *Backend) ReadAt(ino fsys.Inum, p []byte, off int64) (int, error) {
	d, err := b.inode(ino)
	if err != nil {
		return 0, err
	}
	n := fsys.Clamp(int64(len(d)), off, len(p))
	if n == 0 {
		return 0, nil
	}
	return copy(p, d[off:off+int64(n)]), nil
}

func (b *Backend) WriteAt(ino fsys.Inum, p []byte, off int64) (int, error) {
	d, err := b.inode(ino)
	if err != nil {
		return 0, err
	}
	if end := off + int64(len(p)); end > int64(len(d)) {
		d = append(d, make([]byte, end-int64(len(d)))...)
		b.data[ino] = d
	}
	return copy(d[off:], p), nil
}

func (b *Backend) Free(ino fsys.Inum) error {
	if _, err := b.inode(ino); err != nil {
		return err
	}
	delete(b.data, ino)
	return nil
}

// Inodes returns the number of allocated inodes, linked or not.
func (b *Backend) Inodes() int {
	return len(b.data)
}

func (b *Backend) Close() error {
	return nil
}
