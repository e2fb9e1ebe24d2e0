// Package loader turns a program image file into a runnable user process:
// it maps the image, a data segment and a stack, and lays out argv.
package loader

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/kbuf"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/ulib"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

// ErrUnknownEntry indicates an image naming a program nobody registered.
var ErrUnknownEntry = fmt.Errorf("unknown entry point: %w", errdefs.ErrNotFound)

// DataBase is where the data segment starts, right after the image page.
const DataBase = abi.CodeBase + abi.PageSize

// Options sizes the segments of a new process.
type Options struct {
	StackPages int
	DataPages  int
}

// Image is a loaded program and its initial state.
type Image struct {
	Entry      string
	Program    ulib.Program
	ESP        uint32
	DataStart  uint32
	DataEnd    uint32
	Executable fsys.File
}

// Loader loads program images from a filesystem.
type Loader struct {
	fs   fsys.FileSystem
	ser  *fsys.Serializer
	reg  *Registry
	opts Options
}

// New returns a Loader.
func New(fs fsys.FileSystem, ser *fsys.Serializer, reg *Registry, opts Options) *Loader {
	opts.StackPages = max(opts.StackPages, 1)
	opts.DataPages = max(opts.DataPages, 1)
	return &Loader{fs: fs, ser: ser, reg: reg, opts: opts}
}

// Load opens image name on behalf of process holder and builds its address
// space in as. The returned executable is write-denied until closed. On
// error nothing stays open; pages already mapped into as are left for the
// caller to destroy.
func (l *Loader) Load(ctx context.Context, holder int, as *usermem.AddressSpace, name string, args []string) (*Image, error) {
	img, err := l.load(holder, as, name, args)
	if err != nil {
		log.G(ctx).WithError(err).WithField("image", name).Debug("load failed")
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	log.G(ctx).WithFields(log.Fields{
		"image": name,
		"entry": img.Entry,
		"esp":   fmt.Sprintf("%#x", img.ESP),
	}).Trace("image loaded")
	return img, nil
}

func (l *Loader) load(holder int, as *usermem.AddressSpace, name string, args []string) (_ *Image, retErr error) {
	var (
		exe  fsys.File
		text []byte
	)
	buf := kbuf.Get()
	defer kbuf.Put(buf)

	err := l.ser.Do(holder, func() error {
		f, err := l.fs.Open(name)
		if err != nil {
			return err
		}
		n, err := f.Read(*buf)
		if err != nil {
			f.Close()
			return err
		}
		f.DenyWrite()
		exe, text = f, (*buf)[:n]
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			if err := l.ser.Do(holder, exe.Close); err != nil {
				retErr = fmt.Errorf("%w (close: %v)", retErr, err)
			}
		}
	}()

	entry, err := parseHeader(text)
	if err != nil {
		return nil, err
	}
	prog, ok := l.reg.Lookup(entry)
	if !ok {
		return nil, fmt.Errorf("%q: %w", entry, ErrUnknownEntry)
	}

	if err := as.Map(abi.CodeBase, true); err != nil {
		return nil, err
	}
	if !as.WriteUser(abi.CodeBase, text) {
		return nil, fmt.Errorf("copy image to %#x failed", abi.CodeBase)
	}
	if err := as.Protect(abi.CodeBase, false); err != nil {
		return nil, err
	}

	dataEnd := DataBase + uint32(l.opts.DataPages)*abi.PageSize
	if err := as.MapRange(DataBase, l.opts.DataPages*abi.PageSize, true); err != nil {
		return nil, err
	}

	stackBottom := abi.PhysBase - uint32(l.opts.StackPages)*abi.PageSize
	if err := as.MapRange(stackBottom, l.opts.StackPages*abi.PageSize, true); err != nil {
		return nil, err
	}
	esp, err := setupStack(as, args, abi.PhysBase, stackBottom)
	if err != nil {
		return nil, err
	}

	return &Image{
		Entry:      entry,
		Program:    prog,
		ESP:        esp,
		DataStart:  DataBase,
		DataEnd:    dataEnd,
		Executable: exe,
	}, nil
}
