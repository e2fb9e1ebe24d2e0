// Package syscalls is the kernel side of the trap: it decodes a syscall
// from the user stack, runs it for the calling process, and stores the
// result in the trap frame.
//
// A process that hands the kernel a bad pointer, a bad stack, or an unknown
// syscall number is killed with exit status -1.
package syscalls

import (
	"context"

	"github.com/containerd/log"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/console"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/proc"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/sched"
)

// Dispatcher runs syscalls on behalf of user processes.
type Dispatcher struct {
	procs    *proc.Manager
	console  console.Console
	powerOff func()
}

// New returns a Dispatcher. powerOff is called by halt.
func New(procs *proc.Manager, powerOff func()) *Dispatcher {
	return &Dispatcher{
		procs:    procs,
		console:  procs.Console(),
		powerOff: powerOff,
	}
}

// call is one syscall in flight.
type call struct {
	ctx context.Context
	d   *Dispatcher
	p   *proc.Process
}

// Dispatch handles a trap from p. It returns only if p survives the call.
func (d *Dispatcher) Dispatch(ctx context.Context, p *proc.Process, f *abi.Frame) {
	if ctx.Err() != nil {
		// Powered off; nothing runs any more.
		sched.Exit()
	}
	mem := p.Space()
	raw, ok := mem.ReadWord(f.ESP)
	if !ok {
		log.G(ctx).WithField("esp", f.ESP).Debug("bad stack pointer")
		d.Kill(ctx, p)
	}
	n := abi.Number(raw)
	argc, ok := Argc(n)
	if !ok {
		log.G(ctx).WithField("syscall", uint32(n)).Debug("invalid syscall number")
		d.Kill(ctx, p)
	}

	var a args
	for i := range argc {
		w, ok := mem.ReadWord(f.ESP + uint32(i+1)*abi.WordSize)
		if !ok {
			log.G(ctx).WithFields(log.Fields{"syscall": n, "arg": i}).Debug("bad argument pointer")
			d.Kill(ctx, p)
		}
		a[i] = w
	}

	req := sysent[n].decode(a)
	log.G(ctx).WithField("syscall", n).Tracef("%+v", req)
	f.EAX = uint32(req.run(&call{ctx: ctx, d: d, p: p}))
}

// Kill ends p with status -1 and terminates the calling thread, which must
// be p's.
func (d *Dispatcher) Kill(ctx context.Context, p *proc.Process) {
	d.procs.Exit(ctx, p, abi.StatusFault)
	sched.Exit()
}

// kill is Kill for the process making the call.
func (c *call) kill() {
	c.d.Kill(c.ctx, c.p)
}

// string reads a user string argument, killing the caller if any byte of
// it is unreadable. Strings are bounded by one page.
func (c *call) string(addr uint32) string {
	s, ok := c.p.Space().ReadString(addr, abi.PageSize)
	if !ok {
		log.G(c.ctx).WithField("addr", addr).Debug("bad string pointer")
		c.kill()
	}
	return s
}

// buffer kills the caller unless [addr, addr+n) is mapped, and writable
// when write is set.
func (c *call) buffer(addr, n uint32, write bool) {
	if !c.p.Space().Check(addr, int(n), write) {
		log.G(c.ctx).WithFields(log.Fields{"addr": addr, "len": n}).Debug("bad buffer pointer")
		c.kill()
	}
}
