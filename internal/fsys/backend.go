package fsys

// Inum names an inode inside a Backend.
type Inum uint64

// Backend stores a flat directory and inode contents. FS layers open-file
// bookkeeping, deny-write and unlink-while-open semantics on top of it, so a
// Backend only has to persist bytes.
type Backend interface {
	// Lookup returns the inode linked under name, or errdefs.ErrNotFound.
	Lookup(name string) (Inum, error)
	// Create allocates a zero-filled inode of length bytes and links it
	// under name. An existing name fails with errdefs.ErrAlreadyExists.
	Create(name string, length int64) (Inum, error)
	// Unlink removes name from the directory; the inode stays until Free.
	Unlink(name string) (Inum, error)
	// Length returns the inode's size.
	Length(ino Inum) (int64, error)
	// ReadAt stops at Length.
	ReadAt(ino Inum, p []byte, off int64) (int, error)
	// WriteAt writes all of p, growing the inode and zero filling any gap
	// when the write ends past Length.
	WriteAt(ino Inum, p []byte, off int64) (int, error)
	// Free releases an unlinked inode's storage.
	Free(ino Inum) error
	// Close releases the backend.
	Close() error
}
