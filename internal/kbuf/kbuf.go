// Package kbuf provides the page-sized kernel buffers that syscall data is
// staged through on its way between user memory and a device or file.
package kbuf

import (
	"sync"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

// Size is one user page, so a staged chunk never spans more than two user
// pages.
const Size = abi.PageSize

var pool = sync.Pool{
	New: func() any {
		buf := make([]byte, Size)
		return &buf
	},
}

// Get returns a pooled staging buffer of Size bytes.
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns a staging buffer to the pool. Buffers whose length was changed
// by the caller are dropped.
func Put(buf *[]byte) {
	if buf == nil || len(*buf) != Size {
		return
	}
	pool.Put(buf)
}

// Chunks calls fn for consecutive staged windows covering n bytes. fn gets
// the offset of the window and a buffer of at most Size bytes, and returns
// how many bytes it consumed and whether to continue. Chunks returns the
// total consumed.
func Chunks(n int, fn func(off int, buf []byte) (int, bool)) int {
	buf := Get()
	defer Put(buf)

	total := 0
	for total < n {
		want := min(n-total, Size)
		got, more := fn(total, (*buf)[:want])
		total += got
		if !more || got < want {
			break
		}
	}
	return total
}
