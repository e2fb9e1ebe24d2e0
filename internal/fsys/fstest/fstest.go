// Package fstest checks that a filesystem built on an fsys.Backend has the
// semantics the kernel relies on.
package fstest

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
)

// Run runs the conformance suite. newFS must return an empty filesystem
// built with opts.
func Run(t *testing.T, newFS func(t *testing.T, opts ...fsys.Option) *fsys.FS) {
	t.Run("create and open", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("a", 10))

		f, err := fs.Open("a")
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, int64(10), f.Length())
		assert.Equal(t, int64(0), f.Tell())

		buf := make([]byte, 16)
		n, err := f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
		assert.Equal(t, make([]byte, 10), buf[:n])
	})

	t.Run("create existing fails", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("a", 0))
		err := fs.Create("a", 0)
		assert.True(t, errdefs.IsAlreadyExists(err), "got %v", err)
	})

	t.Run("names", func(t *testing.T) {
		fs := newFS(t)
		assert.ErrorIs(t, fs.Create("", 0), fsys.ErrInvalidName)
		assert.ErrorIs(t, fs.Create("a/b", 0), fsys.ErrInvalidName)
		assert.ErrorIs(t, fs.Create("fifteen-letters", 0), fsys.ErrNameTooLong)
		assert.NoError(t, fs.Create("fourteen-chars", 0))
		assert.True(t, errdefs.IsInvalidArgument(fs.Create("neg", -1)))
	})

	t.Run("open missing", func(t *testing.T) {
		fs := newFS(t)
		_, err := fs.Open("nope")
		assert.True(t, errdefs.IsNotFound(err), "got %v", err)
		assert.True(t, errdefs.IsNotFound(fs.Remove("nope")))
	})

	t.Run("write extends", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 0))
		f, err := fs.Open("f")
		require.NoError(t, err)
		defer f.Close()

		n, err := f.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, int64(5), f.Tell())
		assert.Equal(t, int64(5), f.Length())

		f.Seek(0)
		buf := make([]byte, 8)
		n, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
		assert.Equal(t, int64(5), f.Tell())
	})

	t.Run("overwrite in place", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 6))
		f, err := fs.Open("f")
		require.NoError(t, err)
		defer f.Close()

		f.Seek(2)
		n, err := f.Write([]byte("ab"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, int64(6), f.Length())

		f.Seek(0)
		buf := make([]byte, 6)
		_, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 'a', 'b', 0, 0}, buf)
	})

	t.Run("seek past end", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 4))
		f, err := fs.Open("f")
		require.NoError(t, err)
		defer f.Close()

		f.Seek(10)
		assert.Equal(t, int64(10), f.Tell())
		n, err := f.Read(make([]byte, 4))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, int64(10), f.Tell())

		n, err = f.Write([]byte("xy"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, int64(12), f.Length())

		f.Seek(0)
		buf := make([]byte, 12)
		n, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 12, n)
		assert.Equal(t, append(make([]byte, 10), 'x', 'y'), buf)
	})

	t.Run("short read at end", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 3))
		f, err := fs.Open("f")
		require.NoError(t, err)
		defer f.Close()

		f.Seek(1)
		n, err := f.Read(make([]byte, 10))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, int64(3), f.Tell())
	})

	t.Run("independent positions", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 6))
		a, err := fs.Open("f")
		require.NoError(t, err)
		defer a.Close()
		b, err := fs.Open("f")
		require.NoError(t, err)
		defer b.Close()

		_, err = a.Write([]byte("abcdef"))
		require.NoError(t, err)
		buf := make([]byte, 3)
		n, err := b.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(buf[:n]))
		assert.Equal(t, int64(6), a.Tell())
		assert.Equal(t, int64(3), b.Tell())
	})

	t.Run("remove while open", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 3))
		f, err := fs.Open("f")
		require.NoError(t, err)

		require.NoError(t, fs.Remove("f"))
		_, err = fs.Open("f")
		assert.True(t, errdefs.IsNotFound(err))

		n, err := f.Write([]byte("xyz"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, int64(3), f.Length())
		f.Seek(0)
		buf := make([]byte, 3)
		_, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "xyz", string(buf))

		require.NoError(t, f.Close())
		assert.Equal(t, 0, fs.OpenInodes())

		// The name is free for reuse.
		require.NoError(t, fs.Create("f", 1))
	})

	t.Run("deny write", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("exe", 4))
		exe, err := fs.Open("exe")
		require.NoError(t, err)
		other, err := fs.Open("exe")
		require.NoError(t, err)
		defer other.Close()

		exe.DenyWrite()
		exe.DenyWrite()
		n, err := other.Write([]byte("ab"))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		require.NoError(t, exe.Close())
		n, err = other.Write([]byte("ab"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("allow write", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("exe", 4))
		exe, err := fs.Open("exe")
		require.NoError(t, err)
		defer exe.Close()

		exe.DenyWrite()
		n, _ := exe.Write([]byte("a"))
		assert.Equal(t, 0, n)
		exe.AllowWrite()
		n, _ = exe.Write([]byte("a"))
		assert.Equal(t, 1, n)
	})

	t.Run("size limit", func(t *testing.T) {
		fs := newFS(t, fsys.WithMaxSize(64))
		assert.Equal(t, int64(64), fs.MaxSize())

		err := fs.Create("big", 65)
		assert.ErrorIs(t, err, fsys.ErrFileTooLarge)
		assert.True(t, errdefs.IsResourceExhausted(err))
		_, err = fs.Open("big")
		assert.True(t, errdefs.IsNotFound(err), "failed create leaves nothing")

		require.NoError(t, fs.Create("f", 0))
		f, err := fs.Open("f")
		require.NoError(t, err)
		defer f.Close()

		f.Seek(60)
		n, err := f.Write([]byte("0123456789"))
		require.NoError(t, err)
		assert.Equal(t, 4, n, "write clamped at the limit")
		assert.Equal(t, int64(64), f.Length())
		assert.Equal(t, int64(64), f.Tell())

		n, err = f.Write([]byte("x"))
		require.NoError(t, err)
		assert.Zero(t, n)

		f.Seek(0xFFFFFFF0)
		n, err = f.Write([]byte("far away"))
		require.NoError(t, err)
		assert.Zero(t, n, "far seek cannot grow the file")
		assert.Equal(t, int64(64), f.Length())
	})

	t.Run("double close", func(t *testing.T) {
		fs := newFS(t)
		require.NoError(t, fs.Create("f", 1))
		f, err := fs.Open("f")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.ErrorIs(t, f.Close(), fsys.ErrClosed)
		_, err = f.Read(make([]byte, 1))
		assert.ErrorIs(t, err, fsys.ErrClosed)
	})
}
