// Package proc implements the process lifecycle: launching a child and
// waiting for its load, exiting, waiting for a child's exit, and orphaning.
//
// Every child's exit status travels over a one-shot channel whose receive
// end lives in the parent's children table. The child only holds the send
// end. When the parent exits first it drops its records, nobody ever
// receives, and the channel is garbage collected: there is no shared
// descriptor whose freeing has to be negotiated between the two threads.
package proc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/containerd/log"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/console"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fdtable"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/sched"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

// KernelPID is the pid of the kernel's main thread, the parent of the
// first user process.
const KernelPID = 0

// Image is a loaded program ready to run.
type Image struct {
	// Executable is the open, write-denied program file. Exit closes it.
	Executable fsys.File

	// Run executes user code and returns main's return value. It may also
	// never return if the program exits through a syscall.
	Run func(ctx context.Context) int
}

// Loader loads a program into a fresh process. On error it must have
// released anything it acquired, the executable included.
type Loader interface {
	Load(ctx context.Context, p *Process) (*Image, error)
}

// Options bound what a process may ask for.
type Options struct {
	MaxArgs    int
	CmdlineMax int
	MaxOpen    int
}

// Manager owns process creation and teardown.
type Manager struct {
	fs      fsys.FileSystem
	ser     *fsys.Serializer
	console console.Console
	loader  Loader
	threads *sched.Scheduler
	opts    Options

	nextPID atomic.Int64
	main    *Process

	mu   sync.Mutex
	live map[int]*Process
}

// NewManager returns a Manager whose only process is the kernel's main
// thread.
func NewManager(fs fsys.FileSystem, ser *fsys.Serializer, cons console.Console, loader Loader, threads *sched.Scheduler, opts Options) *Manager {
	m := &Manager{
		fs:      fs,
		ser:     ser,
		console: cons,
		loader:  loader,
		threads: threads,
		opts:    opts,
		live:    make(map[int]*Process),
	}
	m.main = &Process{
		pid:      KernelPID,
		ppid:     KernelPID,
		name:     "main",
		children: make(map[int]*child),
	}
	m.main.state.set(StateRunning)
	return m
}

// Main returns the kernel's main thread.
func (m *Manager) Main() *Process {
	return m.main
}

// Launch starts cmdline as a child of parent and returns its pid once the
// child's image has loaded. A failed load returns an error wrapping
// ErrLoadFailed and leaves no trace of the child.
func (m *Manager) Launch(ctx context.Context, parent *Process, cmdline string) (int, error) {
	if m.opts.CmdlineMax > 0 && len(cmdline) > m.opts.CmdlineMax {
		return -1, fmt.Errorf("%d bytes, at most %d allowed: %w", len(cmdline), m.opts.CmdlineMax, ErrInvalidCommandLine)
	}
	name, args, err := ParseCommandLine(cmdline, m.opts.MaxArgs)
	if err != nil {
		return -1, err
	}

	pid := int(m.nextPID.Add(1))
	exit := make(chan int, 1)
	p := &Process{
		pid:      pid,
		ppid:     parent.pid,
		name:     name,
		args:     args,
		space:    usermem.New(),
		files:    fdtable.New(pid, m.fs, m.ser, m.opts.MaxOpen),
		report:   exit,
		children: make(map[int]*child),
	}
	p.parentAlive.Store(true)
	parent.addChild(&child{proc: p, exit: exit})

	m.mu.Lock()
	m.live[pid] = p
	m.mu.Unlock()

	loaded := make(chan error, 1)
	m.threads.Spawn(ctx, name, func(ctx context.Context) {
		m.start(ctx, p, loaded)
	})

	if err := <-loaded; err != nil {
		parent.takeChild(pid)
		return -1, fmt.Errorf("%s: %w: %w", name, ErrLoadFailed, err)
	}
	log.G(ctx).WithFields(log.Fields{"pid": pid, "ppid": parent.pid, "name": name}).Debug("process started")
	return pid, nil
}

// start is the body of a new process's thread.
func (m *Manager) start(ctx context.Context, p *Process, loaded chan<- error) {
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("pid", p.pid))

	img, err := m.loader.Load(ctx, p)
	if err != nil {
		log.G(ctx).WithError(err).Debug("load failed")
		p.state.transition(StateLoading, StateFailed)
		p.space.Destroy()
		m.forget(p)
		loaded <- err
		return
	}
	p.exe = img.Executable
	p.state.transition(StateLoading, StateRunning)
	loaded <- nil

	status := img.Run(ctx)
	m.Exit(ctx, p, status)
}

// Wait blocks until the child pid of parent exits and returns its status.
// A pid that is not an unreaped child of parent fails immediately with
// ErrNotChild. The child is reaped by the first call even if ctx ends
// before its exit.
func (m *Manager) Wait(ctx context.Context, parent *Process, pid int) (int, error) {
	c, ok := parent.takeChild(pid)
	if !ok {
		return -1, fmt.Errorf("wait %d: %w", pid, ErrNotChild)
	}
	select {
	case status := <-c.exit:
		log.G(ctx).WithFields(log.Fields{"pid": pid, "status": status}).Debug("child reaped")
		return status, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Exit tears p down and reports status to its parent. Only the first call
// has any effect. The caller is expected to end p's thread afterwards.
func (m *Manager) Exit(ctx context.Context, p *Process, status int) {
	p.exitOnce.Do(func() {
		m.exit(ctx, p, status)
	})
}

func (m *Manager) exit(ctx context.Context, p *Process, status int) {
	p.status = status
	p.state.set(StateExited)
	fmt.Fprintf(console.Writer(m.console), "%s: exit(%d)\n", p.name, status)

	if m.ser.ReleaseIfHeld(p.pid) {
		log.G(ctx).Warn("released filesystem serializer held at exit")
	}
	if err := p.files.CloseAll(); err != nil {
		log.G(ctx).WithError(err).Warn("failed to close descriptors at exit")
	}
	if orphans := p.disown(); len(orphans) > 0 {
		log.G(ctx).WithField("orphans", orphans).Debug("orphaned children")
	}
	if p.exe != nil {
		if err := m.ser.Do(p.pid, p.exe.Close); err != nil {
			log.G(ctx).WithError(err).Warn("failed to close executable")
		}
		p.exe = nil
	}
	p.space.Destroy()
	m.forget(p)

	// Capacity one and a single send, so this never blocks. An orphan's
	// status is simply never received.
	p.report <- status
	p.report = nil

	log.G(ctx).WithFields(log.Fields{
		"status":   status,
		"orphaned": p.Orphaned(),
	}).Debug("process exited")
}

// ExitStatus returns the status p exited with, and false if it has not
// exited.
func (p *Process) ExitStatus() (int, bool) {
	if p.State() != StateExited {
		return 0, false
	}
	return p.status, true
}

func (m *Manager) forget(p *Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, p.pid)
}

// Lookup returns the live process pid.
func (m *Manager) Lookup(pid int) (*Process, bool) {
	if pid == KernelPID {
		return m.main, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.live[pid]
	return p, ok
}

// Live returns the number of user processes that have not exited.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Console returns the console exit lines are written to.
func (m *Manager) Console() console.Console {
	return m.console
}

// Serializer returns the filesystem gate.
func (m *Manager) Serializer() *fsys.Serializer {
	return m.ser
}

// FileSystem returns the filesystem.
func (m *Manager) FileSystem() fsys.FileSystem {
	return m.fs
}
