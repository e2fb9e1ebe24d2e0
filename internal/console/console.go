// Package console provides the kernel's character console.
package console

import (
	"bytes"
	"io"
	"sync"
)

// Console is what the kernel writes program output to and reads keyboard
// input from.
type Console interface {
	// PutBytes writes p as one unit; concurrent writers never interleave
	// within a call.
	PutBytes(p []byte)
	// GetChar blocks for one input byte. It returns 0 once input is
	// exhausted.
	GetChar() byte
}

// Buffer is a Console backed by memory: scripted input and captured
// output.
type Buffer struct {
	mu  sync.Mutex
	in  *bytes.Reader
	out bytes.Buffer
}

// NewBuffer returns a Buffer that will feed input to GetChar.
func NewBuffer(input string) *Buffer {
	return &Buffer{in: bytes.NewReader([]byte(input))}
}

func (b *Buffer) PutBytes(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.Write(p)
}

func (b *Buffer) GetChar() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.in.ReadByte()
	if err != nil {
		return 0
	}
	return c
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// Writer adapts a Console to io.Writer.
func Writer(c Console) io.Writer {
	return writer{c}
}

type writer struct{ c Console }

func (w writer) Write(p []byte) (int, error) {
	w.c.PutBytes(p)
	return len(p), nil
}
