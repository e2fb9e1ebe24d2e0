package console

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/containerd/console"
	"github.com/containerd/log"
)

// Host is a Console on the process's standard streams. When standard input
// is a terminal it is put in raw mode so GetChar sees single keystrokes.
type Host struct {
	mu  sync.Mutex
	out io.Writer

	inMu sync.Mutex
	in   *bufio.Reader
	tty  console.Console
}

// NewHost returns a Host on os.Stdin and os.Stdout.
func NewHost() *Host {
	h := &Host{
		out: os.Stdout,
		in:  bufio.NewReader(os.Stdin),
	}
	if c, err := console.ConsoleFromFile(os.Stdin); err == nil {
		h.tty = c
	}
	return h
}

func (h *Host) PutBytes(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.out.Write(p); err != nil {
		log.L.WithError(err).Debug("console write failed")
	}
}

func (h *Host) GetChar() byte {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	if h.tty != nil {
		if err := h.tty.SetRaw(); err != nil {
			log.L.WithError(err).Debug("failed to set console raw")
		} else {
			defer func() {
				if err := h.tty.Reset(); err != nil {
					log.L.WithError(err).Warn("failed to reset console")
				}
			}()
		}
	}
	c, err := h.in.ReadByte()
	if err != nil {
		return 0
	}
	return c
}

// Terminal reports whether standard input is a terminal.
func (h *Host) Terminal() bool {
	return h.tty != nil
}
