package usermem

import (
	"encoding/binary"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// Check reports whether every byte of [addr, addr+n) is a mapped user byte,
// and writable when write is set. It does not touch the bytes.
func (as *AddressSpace) Check(addr uint32, n int, write bool) bool {
	if n <= 0 {
		return true
	}
	end := uint64(addr) + uint64(n)
	if end > uint64(abi.PhysBase) {
		return false
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	for page := uint64(PageOf(addr)); page < end; page += abi.PageSize {
		if as.lookup(uint32(page), write) == nil {
			return false
		}
	}
	return true
}

// ReadUser copies len(dst) bytes from user address src into dst. It fails
// without side effects on the kernel if any byte is out of range, unmapped,
// or faults.
func (as *AddressSpace) ReadUser(dst []byte, src uint32) bool {
	return as.transfer(dst, src, false)
}

// WriteUser copies src to user address dst. Bytes before a failing page may
// already have been stored.
func (as *AddressSpace) WriteUser(dst uint32, src []byte) bool {
	return as.transfer(src, dst, true)
}

// transfer moves buf to or from user memory one page at a time, validating
// each page before touching it.
func (as *AddressSpace) transfer(buf []byte, uva uint32, write bool) bool {
	if uint64(uva)+uint64(len(buf)) > uint64(abi.PhysBase) {
		return false
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	for len(buf) > 0 {
		p := as.lookup(uva, write)
		if p == nil {
			return false
		}
		off := uva % abi.PageSize
		n := min(len(buf), int(abi.PageSize-off))
		chunk := buf[:n]
		err := guarded(func() {
			if write {
				for i, b := range chunk {
					p.frame.store(off+uint32(i), b)
				}
				return
			}
			for i := range chunk {
				chunk[i] = p.frame.load(off + uint32(i))
			}
		})
		if err != nil {
			return false
		}
		buf = buf[n:]
		uva += uint32(n)
	}
	return true
}

// ReadWord reads a little-endian 32-bit word at addr.
func (as *AddressSpace) ReadWord(addr uint32) (uint32, bool) {
	var b [abi.WordSize]byte
	if !as.ReadUser(b[:], addr) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

// WriteWord stores a little-endian 32-bit word at addr.
func (as *AddressSpace) WriteWord(addr, v uint32) bool {
	var b [abi.WordSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return as.WriteUser(addr, b[:])
}

// ValidateString reports whether a NUL-terminated string starts at addr with
// every byte up to and including the terminator readable. It reads one byte
// at a time and never touches the byte after the first invalid one.
func (as *AddressSpace) ValidateString(addr uint32) bool {
	_, ok := as.scanString(addr, -1, false)
	return ok
}

// ReadString validates and copies the NUL-terminated string at addr. Strings
// longer than max bytes (terminator excluded) fail like a bad pointer.
func (as *AddressSpace) ReadString(addr uint32, max int) (string, bool) {
	b, ok := as.scanString(addr, max, true)
	if !ok {
		return "", false
	}
	return string(b), true
}

func (as *AddressSpace) scanString(addr uint32, max int, keep bool) ([]byte, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	var out []byte
	for n := 0; max < 0 || n <= max; n++ {
		p := as.lookup(addr, false)
		if p == nil {
			return nil, false
		}
		var c byte
		if err := guarded(func() { c = p.frame.load(addr % abi.PageSize) }); err != nil {
			return nil, false
		}
		if c == 0 {
			return out, true
		}
		if keep {
			out = append(out, c)
		}
		if addr == abi.PhysBase-1 {
			return nil, false
		}
		addr++
	}
	return nil, false
}
