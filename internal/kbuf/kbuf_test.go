package kbuf

import (
	"sync"
	"testing"
)

func TestGet(t *testing.T) {
	t.Run("returns page sized buffer", func(t *testing.T) {
		buf := Get()
		defer Put(buf)

		if buf == nil || *buf == nil {
			t.Fatal("Get() returned nil")
		}
		if len(*buf) != Size {
			t.Errorf("buffer length = %d, want %d", len(*buf), Size)
		}
	})

	t.Run("buffers are independent", func(t *testing.T) {
		buf1 := Get()
		buf2 := Get()
		defer Put(buf1)
		defer Put(buf2)

		(*buf1)[0] = 0x11
		(*buf2)[0] = 0x22

		if (*buf1)[0] != 0x11 {
			t.Errorf("buf1[0] = %x, want 0x11", (*buf1)[0])
		}
		if (*buf2)[0] != 0x22 {
			t.Errorf("buf2[0] = %x, want 0x22", (*buf2)[0])
		}
	})
}

func TestPut(t *testing.T) {
	short := make([]byte, 10)
	tests := []struct {
		name string
		buf  *[]byte
	}{
		{"nil pointer", nil},
		{"resized buffer", &short},
		{"valid buffer", Get()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			Put(tt.buf)
		})
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		limit     int // consumer stops accepting after this many bytes
		wantTotal int
		wantCalls int
	}{
		{"empty", 0, 0, 0, 0},
		{"single chunk", 100, 1 << 20, 100, 1},
		{"exact page", Size, 1 << 20, Size, 1},
		{"three chunks", 2*Size + 1, 1 << 20, 2*Size + 1, 3},
		{"short consumer", 3 * Size, Size + 10, Size + 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			consumed := 0
			total := Chunks(tt.n, func(off int, buf []byte) (int, bool) {
				calls++
				if off != consumed {
					t.Errorf("offset = %d, want %d", off, consumed)
				}
				if len(buf) > Size {
					t.Errorf("window of %d bytes exceeds %d", len(buf), Size)
				}
				got := min(len(buf), tt.limit-consumed)
				consumed += got
				return got, true
			})
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestGet_Concurrent(t *testing.T) {
	const goroutines = 50
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				buf := Get()
				if len(*buf) != Size {
					t.Errorf("buffer length = %d, want %d", len(*buf), Size)
					return
				}
				(*buf)[0] = 0xFF
				Put(buf)
			}
		}()
	}

	wg.Wait()
}

func BenchmarkGet(b *testing.B) {
	for b.Loop() {
		buf := Get()
		Put(buf)
	}
}
