// Package kernel wires the user-program subsystem together: the filesystem
// and its serializer, the loader, the process manager and the syscall
// dispatcher. A Kernel runs one initial command line at a time on behalf of
// its main thread, the way a teaching kernel runs the task named on its
// boot command line.
package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/console"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/loader"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/proc"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/sched"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/syscalls"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/ulib"
)

// ErrHalted is returned by Run once the machine has been powered off.
var ErrHalted = errors.New("machine halted")

// Options sizes processes and their resources.
type Options struct {
	StackPages int
	DataPages  int
	MaxOpen    int
	MaxArgs    int
	CmdlineMax int
}

// Kernel is one booted machine.
type Kernel struct {
	fs       fsys.FileSystem
	ser      *fsys.Serializer
	console  console.Console
	registry *loader.Registry
	loader   *loader.Loader
	threads  *sched.Scheduler
	procs    *proc.Manager
	syscalls *syscalls.Dispatcher

	// life ends at power-off. Every process runs under it.
	life context.Context
	stop context.CancelCauseFunc
}

// New returns a kernel running programs from fs.
func New(fs fsys.FileSystem, cons console.Console, reg *loader.Registry, opts Options) *Kernel {
	k := &Kernel{
		fs:       fs,
		ser:      fsys.NewSerializer(),
		console:  cons,
		registry: reg,
		threads:  sched.New(),
	}
	k.life, k.stop = context.WithCancelCause(context.Background())
	k.loader = loader.New(fs, k.ser, reg, loader.Options{
		StackPages: opts.StackPages,
		DataPages:  opts.DataPages,
	})
	k.procs = proc.NewManager(fs, k.ser, cons, imageLoader{k}, k.threads, proc.Options{
		MaxArgs:    opts.MaxArgs,
		CmdlineMax: opts.CmdlineMax,
		MaxOpen:    opts.MaxOpen,
	})
	k.syscalls = syscalls.New(k.procs, k.PowerOff)
	return k
}

// Boot installs an image for every registered program that the filesystem
// does not already have.
func (k *Kernel) Boot(ctx context.Context) error {
	return k.ser.Do(proc.KernelPID, func() error {
		for _, entry := range k.registry.Entries() {
			err := loader.Install(k.fs, entry, entry)
			switch {
			case err == nil:
				log.G(ctx).WithField("program", entry).Debug("installed program")
			case errdefs.IsAlreadyExists(err):
			default:
				return fmt.Errorf("install %s: %w", entry, err)
			}
		}
		return nil
	})
}

// Put creates file name holding data, the way a disk image is populated
// before boot.
func (k *Kernel) Put(name string, data []byte) error {
	return k.ser.Do(proc.KernelPID, func() error {
		if err := k.fs.Create(name, 0); err != nil {
			return err
		}
		f, err := k.fs.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := f.Write(data)
		if err != nil {
			return fmt.Errorf("put %s: %w", name, err)
		}
		if n != len(data) {
			return fmt.Errorf("put %s: short write %d of %d", name, n, len(data))
		}
		return nil
	})
}

// Run launches cmdline from the main thread and waits for it. It returns
// the process's exit status, or ErrHalted if the machine was powered off
// first.
func (k *Kernel) Run(ctx context.Context, cmdline string) (int, error) {
	if k.Halted() {
		return -1, ErrHalted
	}
	// Processes outlive Run when they are orphaned, so they take only the
	// caller's values and stop with the machine.
	pctx := detached{Context: k.life, values: ctx}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(k.life, func() { cancel(ErrHalted) })
	defer stop()

	main := k.procs.Main()
	log.G(ctx).WithField("cmdline", cmdline).Info("running")
	pid, err := k.procs.Launch(pctx, main, cmdline)
	if err != nil {
		return -1, err
	}
	status, err := k.procs.Wait(ctx, main, pid)
	if err != nil {
		if k.Halted() {
			return -1, ErrHalted
		}
		return -1, err
	}
	return status, nil
}

// PowerOff stops the machine. Run returns ErrHalted and every thread stops
// at its next trap.
func (k *Kernel) PowerOff() {
	k.stop(ErrHalted)
}

// Halted reports whether PowerOff has been called.
func (k *Kernel) Halted() bool {
	return k.life.Err() != nil
}

// Done is closed by PowerOff.
func (k *Kernel) Done() <-chan struct{} {
	return k.life.Done()
}

// Wait blocks until every thread has ended.
func (k *Kernel) Wait() {
	k.threads.Wait()
}

// Trap is the syscall interrupt entry.
func (k *Kernel) Trap(ctx context.Context, p *proc.Process, f *abi.Frame) {
	k.syscalls.Dispatch(ctx, p, f)
}

// pageFault handles a fault taken by user code; the process is killed.
func (k *Kernel) pageFault(ctx context.Context, p *proc.Process, addr uint32) {
	log.G(ctx).WithFields(log.Fields{
		"addr": fmt.Sprintf("%#x", addr),
		"ppid": p.PPID(),
	}).Info("page fault in user mode")
	k.syscalls.Kill(ctx, p)
}

// Running returns the number of process threads still running.
func (k *Kernel) Running() int {
	return k.threads.Running()
}

// Processes returns the process manager.
func (k *Kernel) Processes() *proc.Manager {
	return k.procs
}

// detached carries the values of one context and the lifetime of another.
type detached struct {
	context.Context
	values context.Context
}

func (d detached) Value(key any) any {
	return d.values.Value(key)
}

// imageLoader loads images for the process manager and binds each one to
// this kernel's trap and fault entries.
type imageLoader struct {
	k *Kernel
}

func (l imageLoader) Load(ctx context.Context, p *proc.Process) (*proc.Image, error) {
	img, err := l.k.loader.Load(ctx, p.PID(), p.Space(), p.Name(), p.Args())
	if err != nil {
		return nil, err
	}
	return &proc.Image{
		Executable: img.Executable,
		Run: func(ctx context.Context) int {
			u := ulib.New(p.Space(),
				func(f *abi.Frame) { l.k.Trap(ctx, p, f) },
				func(addr uint32) { l.k.pageFault(ctx, p, addr) },
				ulib.Config{ESP: img.ESP, DataStart: img.DataStart, DataEnd: img.DataEnd},
			)
			status := img.Program(u)
			if l.k.Halted() {
				// main returned after power-off; there is nobody to
				// report to and nothing to print.
				sched.Exit()
			}
			return status
		},
	}, nil
}
