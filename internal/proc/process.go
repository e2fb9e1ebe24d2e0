package proc

import (
	"sync"
	"sync/atomic"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/fdtable"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/usermem"
)

// Process is one user process: a single thread with its own address space
// and descriptor table.
type Process struct {
	pid   int
	ppid  int
	name  string
	args  []string
	space *usermem.AddressSpace
	files *fdtable.Table

	state stateMachine

	// Owned by the process's thread.
	exe      fsys.File
	exitOnce sync.Once
	status   int

	// The only link from child to parent. Sends never block and nothing
	// else about the parent is reachable from here.
	report      chan<- int
	parentAlive atomic.Bool

	mu       sync.Mutex
	children map[int]*child
}

// child is the parent's record of one unreaped child. The parent owns it.
type child struct {
	proc *Process
	exit <-chan int
}

func (p *Process) PID() int                     { return p.pid }
func (p *Process) PPID() int                    { return p.ppid }
func (p *Process) Name() string                 { return p.name }
func (p *Process) Space() *usermem.AddressSpace { return p.space }
func (p *Process) Files() *fdtable.Table        { return p.files }
func (p *Process) State() State                 { return p.state.load() }

// Args returns the process's argument vector, program name first.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Orphaned reports whether the parent has exited before this process.
func (p *Process) Orphaned() bool {
	return !p.parentAlive.Load()
}

// Children returns the pids of unreaped children.
func (p *Process) Children() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pids := make([]int, 0, len(p.children))
	for pid := range p.children {
		pids = append(pids, pid)
	}
	return pids
}

func (p *Process) addChild(c *child) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[c.proc.pid] = c
}

// takeChild removes and returns the child record for pid.
func (p *Process) takeChild(pid int) (*child, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[pid]
	if ok {
		delete(p.children, pid)
	}
	return c, ok
}

// disown orphans every unreaped child and forgets it.
func (p *Process) disown() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pids []int
	for pid, c := range p.children {
		c.proc.parentAlive.Store(false)
		delete(p.children, pid)
		pids = append(pids, pid)
	}
	return pids
}
