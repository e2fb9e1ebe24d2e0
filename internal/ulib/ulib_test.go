package ulib

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

const (
	dataStart uint32 = 0x08049000
	stackTop         = abi.PhysBase
)

type faulted struct{ addr uint32 }

// trapped records what the kernel would see on each trap.
type trapped struct {
	number abi.Number
	args   []uint32
	esp    uint32
}

type fixture struct {
	u     *User
	mem   *usermem.AddressSpace
	traps []trapped
	// result is stored in EAX by the fake kernel.
	result uint32
	// strings captures the string argument of exec/create/remove/open.
	strings []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := usermem.New()
	t.Cleanup(mem.Destroy)
	require.NoError(t, mem.Map(dataStart, true))
	require.NoError(t, mem.Map(stackTop-abi.PageSize, true))

	fx := &fixture{mem: mem}
	trap := func(f *abi.Frame) {
		n, ok := mem.ReadWord(f.ESP)
		require.True(t, ok)
		tr := trapped{number: abi.Number(n), esp: f.ESP}
		for i := uint32(1); i <= abi.MaxSyscallArgs; i++ {
			w, ok := mem.ReadWord(f.ESP + i*abi.WordSize)
			if !ok {
				break
			}
			tr.args = append(tr.args, w)
		}
		switch tr.number {
		case abi.SysExec, abi.SysCreate, abi.SysRemove, abi.SysOpen:
			s, ok := mem.ReadString(tr.args[0], abi.PageSize)
			require.True(t, ok)
			fx.strings = append(fx.strings, s)
		}
		fx.traps = append(fx.traps, tr)
		f.EAX = fx.result
	}
	fault := func(addr uint32) {
		panic(faulted{addr})
	}

	// Initial frame: return address, argc, argv, argv[0], argv[1], NULL,
	// then the strings.
	esp := stackTop - 64
	strs := stackTop - 16
	require.True(t, mem.WriteUser(strs, []byte("prog\x00arg\x00")))
	for i, w := range []uint32{0, 2, esp + 12, strs, strs + 5, 0} {
		require.True(t, mem.WriteWord(esp+uint32(i)*abi.WordSize, w))
	}
	fx.u = New(mem, trap, fault, Config{
		ESP:       esp,
		DataStart: dataStart,
		DataEnd:   dataStart + abi.PageSize,
	})
	return fx
}

func expectFault(t *testing.T, addr uint32, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fault")
		assert.Equal(t, faulted{addr}, r)
	}()
	fn()
}

func TestArgs(t *testing.T) {
	fx := newFixture(t)
	assert.Equal(t, []string{"prog", "arg"}, fx.u.Args())
}

func TestSyscallFrame(t *testing.T) {
	fx := newFixture(t)
	fx.result = 7

	got := fx.u.Read(3, dataStart, 100)
	assert.Equal(t, 7, got)
	require.Len(t, fx.traps, 1)
	tr := fx.traps[0]
	assert.Equal(t, abi.SysRead, tr.number)
	assert.Equal(t, []uint32{3, dataStart, 100}, tr.args)
	assert.Less(t, tr.esp, fx.u.ESP(), "arguments are pushed below the initial stack")

	// The stack is popped after the call.
	fx.u.Filesize(3)
	assert.Equal(t, tr.esp+2*abi.WordSize, fx.traps[1].esp)
}

func TestNegativeResults(t *testing.T) {
	fx := newFixture(t)
	fx.result = 0xffffffff
	assert.Equal(t, -1, fx.u.Open("x"))
	assert.Equal(t, -1, fx.u.Wait(4))
	assert.Equal(t, []string{"x"}, fx.strings)
	assert.Equal(t, uint32(4), fx.traps[1].args[0])
}

func TestExitStatusSignExtends(t *testing.T) {
	fx := newFixture(t)
	assert.Panics(t, func() { fx.u.Exit(-1) }, "exit must not return")
	require.Len(t, fx.traps, 1)
	assert.Equal(t, abi.SysExit, fx.traps[0].number)
	assert.Equal(t, uint32(0xffffffff), fx.traps[0].args[0])
}

func TestStringArguments(t *testing.T) {
	fx := newFixture(t)
	fx.result = 1
	assert.True(t, fx.u.Create("file", 12))
	assert.True(t, fx.u.Remove("file"))
	assert.Equal(t, 1, fx.u.Exec("echo a b"))
	assert.Equal(t, []string{"file", "file", "echo a b"}, fx.strings)
	assert.Equal(t, uint32(12), fx.traps[0].args[1])
}

func TestWriteString(t *testing.T) {
	fx := newFixture(t)
	fx.result = stringChunk
	s := make([]byte, 2*stringChunk+10)
	for i := range s {
		s[i] = 'x'
	}
	fx.u.WriteString(5, string(s[:2*stringChunk]))
	require.Len(t, fx.traps, 2)
	for _, tr := range fx.traps {
		assert.Equal(t, abi.SysWrite, tr.number)
		assert.Equal(t, uint32(5), tr.args[0])
		assert.Equal(t, uint32(stringChunk), tr.args[2])
	}

	fx.traps = nil
	fx.result = 3
	assert.Equal(t, 3, fx.u.WriteString(5, string(s)), "stops at a short write")
	assert.Len(t, fx.traps, 1)
}

func TestAlloc(t *testing.T) {
	fx := newFixture(t)
	a := fx.u.Alloc(3)
	b := fx.u.Alloc(5)
	assert.Equal(t, dataStart, a)
	assert.Equal(t, dataStart+4, b, "allocations are word aligned")

	s := fx.u.PutString("hey")
	assert.Equal(t, "hey", fx.u.String(s))

	expectFault(t, dataStart+abi.PageSize, func() {
		fx.u.Alloc(abi.PageSize)
	})
}

func TestLoadStore(t *testing.T) {
	fx := newFixture(t)
	fx.u.StoreWord(dataStart, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), fx.u.Word(dataStart))
	assert.Equal(t, binary.LittleEndian.AppendUint32(nil, 0xdeadbeef), fx.u.Load(dataStart, 4))

	expectFault(t, 0x1000, func() { fx.u.Load(0x1000, 1) })
	expectFault(t, abi.PhysBase, func() { fx.u.Store(abi.PhysBase, []byte{1}) })
}

func TestTrapAt(t *testing.T) {
	fx := newFixture(t)
	require.True(t, fx.mem.WriteWord(dataStart, uint32(abi.SysTell)))
	require.True(t, fx.mem.WriteWord(dataStart+4, 9))
	fx.u.TrapAt(dataStart)
	require.Len(t, fx.traps, 1)
	assert.Equal(t, abi.SysTell, fx.traps[0].number)
	assert.Equal(t, uint32(9), fx.traps[0].args[0])
}
