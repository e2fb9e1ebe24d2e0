package loader

import (
	"context"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys/memfs"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/ulib"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

const holder = 1

func setup(t *testing.T, opts Options) (*Loader, *fsys.FS, *fsys.Serializer) {
	t.Helper()
	fs := memfs.New()
	ser := fsys.NewSerializer()
	reg := NewRegistry()
	reg.Register("main", func(*ulib.User) int { return 0 })
	require.NoError(t, Install(fs, "prog", "main"))
	return New(fs, ser, reg, opts), fs, ser
}

func newSpace(t *testing.T) *usermem.AddressSpace {
	as := usermem.New()
	t.Cleanup(as.Destroy)
	return as
}

func word(t *testing.T, as *usermem.AddressSpace, addr uint32) uint32 {
	t.Helper()
	w, ok := as.ReadWord(addr)
	require.True(t, ok, "read word at %#x", addr)
	return w
}

func TestStackLayout(t *testing.T) {
	l, _, _ := setup(t, Options{StackPages: 1, DataPages: 1})
	as := newSpace(t)
	args := []string{"prog", "-l", "foo", "barbaz"}

	img, err := l.Load(context.Background(), holder, as, "prog", args)
	require.NoError(t, err)
	defer img.Executable.Close()

	assert.Zero(t, img.ESP%abi.WordSize, "esp is word aligned")
	assert.Equal(t, uint32(0), word(t, as, img.ESP), "fake return address")
	assert.Equal(t, uint32(len(args)), word(t, as, img.ESP+4))

	argv := word(t, as, img.ESP+8)
	assert.Equal(t, img.ESP+12, argv)
	for i, want := range args {
		got, ok := as.ReadString(word(t, as, argv+uint32(i)*4), 64)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint32(0), word(t, as, argv+uint32(len(args))*4), "argv[argc] is NULL")

	// The first string pushed is the last argument, ending just below
	// PhysBase.
	last := word(t, as, argv+uint32(len(args)-1)*4)
	assert.Equal(t, abi.PhysBase-uint32(len("barbaz")+1), last)
}

func TestSegments(t *testing.T) {
	l, _, _ := setup(t, Options{StackPages: 2, DataPages: 3})
	as := newSpace(t)

	img, err := l.Load(context.Background(), holder, as, "prog", []string{"prog"})
	require.NoError(t, err)
	defer img.Executable.Close()

	assert.Equal(t, "main", img.Entry)
	assert.NotNil(t, img.Program)
	assert.Equal(t, DataBase, img.DataStart)
	assert.Equal(t, DataBase+3*abi.PageSize, img.DataEnd)
	assert.Equal(t, 1+3+2, as.Pages())

	// Image page is readable but not writable from user mode.
	got, ok := as.ReadString(abi.CodeBase, 64)
	require.True(t, ok)
	assert.Equal(t, string(Header("main")), got)
	assert.False(t, as.Check(abi.CodeBase, 1, true))
	assert.True(t, as.Check(img.DataStart, int(img.DataEnd-img.DataStart), true))
	assert.True(t, as.Check(abi.PhysBase-2*abi.PageSize, 2*abi.PageSize, true))
	assert.False(t, as.Mapped(abi.PhysBase-3*abi.PageSize))
}

func TestExecutableDenyWrite(t *testing.T) {
	l, fs, _ := setup(t, Options{})
	as := newSpace(t)

	img, err := l.Load(context.Background(), holder, as, "prog", []string{"prog"})
	require.NoError(t, err)

	f, err := fs.Open("prog")
	require.NoError(t, err)
	defer f.Close()
	n, err := f.Write([]byte("xx"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, img.Executable.Close())
	n, err = f.Write([]byte("#!"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, fs fsys.FileSystem)
		image   string
		args    []string
		check   func(t *testing.T, err error)
		options Options
	}{
		{
			name:  "missing file",
			image: "nope",
			check: func(t *testing.T, err error) {
				assert.True(t, errdefs.IsNotFound(err))
			},
		},
		{
			name: "bad magic",
			setup: func(t *testing.T, fs fsys.FileSystem) {
				require.NoError(t, fs.Create("junk", 32))
			},
			image: "junk",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrBadImage)
			},
		},
		{
			name: "unterminated header",
			setup: func(t *testing.T, fs fsys.FileSystem) {
				require.NoError(t, fs.Create("half", 0))
				f, err := fs.Open("half")
				require.NoError(t, err)
				defer f.Close()
				_, err = f.Write([]byte(Magic + "main"))
				require.NoError(t, err)
			},
			image: "half",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrBadImage)
			},
		},
		{
			name: "unknown entry",
			setup: func(t *testing.T, fs fsys.FileSystem) {
				require.NoError(t, Install(fs, "other", "unregistered"))
			},
			image: "other",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnknownEntry)
			},
		},
		{
			name:  "arguments overflow stack",
			image: "prog",
			args:  []string{"prog", strings.Repeat("a", abi.PageSize)},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrArgsTooLong)
			},
			options: Options{StackPages: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, fs, ser := setup(t, tt.options)
			if tt.setup != nil {
				tt.setup(t, fs)
			}
			args := tt.args
			if args == nil {
				args = []string{tt.image}
			}

			img, err := l.Load(context.Background(), holder, newSpace(t), tt.image, args)
			require.Error(t, err)
			assert.Nil(t, img)
			tt.check(t, err)

			assert.False(t, ser.Held(holder))
			assert.Equal(t, 0, fs.OpenInodes(), "executable closed on failure")
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func(*ulib.User) int { return 2 })
	r.Register("a", func(*ulib.User) int { return 1 })
	assert.Equal(t, []string{"a", "b"}, r.Entries())

	p, ok := r.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 2, p(nil))
	_, ok = r.Lookup("c")
	assert.False(t, ok)
}
