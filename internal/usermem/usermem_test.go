package usermem

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

const base uint32 = 0x10000000

func newSpace(t *testing.T, pages int) *AddressSpace {
	t.Helper()
	as := New()
	t.Cleanup(as.Destroy)
	require.NoError(t, as.MapRange(base, pages*abi.PageSize, true))
	return as
}

func TestMap(t *testing.T) {
	as := New()
	defer as.Destroy()

	require.NoError(t, as.Map(base+12, true))
	assert.True(t, as.Mapped(base))
	assert.True(t, as.Mapped(base+abi.PageSize-1))
	assert.False(t, as.Mapped(base+abi.PageSize))

	err := as.Map(base, false)
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)

	err = as.Map(abi.PhysBase, true)
	assert.ErrorIs(t, err, ErrKernelAddress)

	require.NoError(t, as.Unmap(base))
	assert.False(t, as.Mapped(base))
	assert.ErrorIs(t, as.Unmap(base), errdefs.ErrNotFound)
}

func TestReadWriteRoundTrip(t *testing.T) {
	as := newSpace(t, 2)

	// straddles the page boundary
	addr := base + abi.PageSize - 3
	require.True(t, as.WriteUser(addr, []byte("hello")))

	got := make([]byte, 5)
	require.True(t, as.ReadUser(got, addr))
	assert.Equal(t, "hello", string(got))
}

func TestReadUserRejectsBadAddresses(t *testing.T) {
	as := newSpace(t, 1)

	tests := []struct {
		name string
		addr uint32
		n    int
	}{
		{"unmapped", base + 2*abi.PageSize, 1},
		{"runs off the mapping", base + abi.PageSize - 2, 4},
		{"kernel address", abi.PhysBase, 1},
		{"wraps past the split", abi.PhysBase - 2, 8},
		{"null", 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.n)
			assert.False(t, as.ReadUser(buf, tt.addr))
			assert.False(t, as.WriteUser(tt.addr, buf))
		})
	}
}

func TestWriteUserReadOnlyPage(t *testing.T) {
	as := New()
	defer as.Destroy()
	require.NoError(t, as.Map(base, false))

	assert.False(t, as.WriteUser(base, []byte{1}))
	assert.True(t, as.ReadUser(make([]byte, 1), base))
	assert.False(t, as.Check(base, 1, true))
	assert.True(t, as.Check(base, 1, false))
}

func TestProtect(t *testing.T) {
	as := newSpace(t, 1)
	require.True(t, as.WriteUser(base, []byte("text")))
	require.NoError(t, as.Protect(base, false))
	assert.False(t, as.WriteUser(base, []byte("x")))

	buf := make([]byte, 4)
	require.True(t, as.ReadUser(buf, base))
	assert.Equal(t, "text", string(buf))

	assert.True(t, errdefs.IsNotFound(as.Protect(base+abi.PageSize, true)))
}

func TestRevokedPageFaults(t *testing.T) {
	as := newSpace(t, 2)
	require.True(t, as.WriteUser(base, []byte("ok")))
	require.NoError(t, as.Revoke(base+abi.PageSize))

	// still present in the page table
	assert.True(t, as.Mapped(base+abi.PageSize))
	assert.True(t, as.Check(base, 2*abi.PageSize, true))

	buf := make([]byte, 8)
	assert.False(t, as.ReadUser(buf, base+abi.PageSize))
	assert.False(t, as.WriteUser(base+abi.PageSize+7, buf))

	// the first page is unaffected
	got := make([]byte, 2)
	require.True(t, as.ReadUser(got, base))
	assert.Equal(t, "ok", string(got))
}

func TestGuardedRepanicsOnOtherPanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		_ = guarded(func() { panic("boom") })
	})
}

func TestWords(t *testing.T) {
	as := newSpace(t, 1)
	require.True(t, as.WriteWord(base+8, 0xdeadbeef))

	v, ok := as.ReadWord(base + 8)
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), v)

	raw := make([]byte, 4)
	require.True(t, as.ReadUser(raw, base+8))
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, raw)

	_, ok = as.ReadWord(abi.PhysBase - 2)
	assert.False(t, ok)
}

func TestStrings(t *testing.T) {
	as := newSpace(t, 2)

	t.Run("within a page", func(t *testing.T) {
		require.True(t, as.WriteUser(base, []byte("args\x00")))
		assert.True(t, as.ValidateString(base))
		s, ok := as.ReadString(base, 64)
		require.True(t, ok)
		assert.Equal(t, "args", s)
	})

	t.Run("empty", func(t *testing.T) {
		require.True(t, as.WriteUser(base+100, []byte{0}))
		s, ok := as.ReadString(base+100, 64)
		require.True(t, ok)
		assert.Equal(t, "", s)
	})

	t.Run("across pages", func(t *testing.T) {
		addr := base + abi.PageSize - 2
		require.True(t, as.WriteUser(addr, []byte("abcd\x00")))
		s, ok := as.ReadString(addr, 64)
		require.True(t, ok)
		assert.Equal(t, "abcd", s)
	})

	t.Run("too long", func(t *testing.T) {
		require.True(t, as.WriteUser(base+200, []byte("abcdef\x00")))
		_, ok := as.ReadString(base+200, 5)
		assert.False(t, ok)
		_, ok = as.ReadString(base+200, 6)
		assert.True(t, ok)
	})

	t.Run("unterminated before unmapped page", func(t *testing.T) {
		end := base + 2*abi.PageSize
		fill := make([]byte, 16)
		for i := range fill {
			fill[i] = 'x'
		}
		require.True(t, as.WriteUser(end-16, fill))
		assert.False(t, as.ValidateString(end-16))
	})

	t.Run("unterminated before revoked page", func(t *testing.T) {
		other := newSpace(t, 2)
		fill := []byte("xxxx")
		require.True(t, other.WriteUser(base+abi.PageSize-4, fill))
		require.NoError(t, other.Revoke(base+abi.PageSize))
		assert.False(t, other.ValidateString(base+abi.PageSize-4))
	})

	t.Run("kernel address", func(t *testing.T) {
		assert.False(t, as.ValidateString(abi.PhysBase))
		assert.False(t, as.ValidateString(0xffffffff))
	})
}

func TestDestroy(t *testing.T) {
	as := New()
	require.NoError(t, as.MapRange(base, 3*abi.PageSize, true))
	assert.Equal(t, 3, as.Pages())

	as.Destroy()
	assert.Equal(t, 0, as.Pages())
	assert.False(t, as.ReadUser(make([]byte, 1), base))
	assert.ErrorIs(t, as.Map(base, true), ErrDestroyed)
}
