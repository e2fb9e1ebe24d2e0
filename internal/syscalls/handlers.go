package syscalls

import (
	"github.com/containerd/log"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/kbuf"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/sched"
)

func boolResult(ok bool) int32 {
	if ok {
		return 1
	}
	return 0
}

func (haltRequest) run(c *call) int32 {
	log.G(c.ctx).WithField("pid", c.p.PID()).Info("halt")
	c.d.powerOff()
	sched.Exit()
	return 0
}

func (r exitRequest) run(c *call) int32 {
	c.d.procs.Exit(c.ctx, c.p, int(r.status))
	sched.Exit()
	return 0
}

func (r execRequest) run(c *call) int32 {
	cmdline := c.string(r.cmdline)
	pid, err := c.d.procs.Launch(c.ctx, c.p, cmdline)
	if err != nil {
		log.G(c.ctx).WithError(err).Debug("exec failed")
		return -1
	}
	return int32(pid)
}

func (r waitRequest) run(c *call) int32 {
	status, err := c.d.procs.Wait(c.ctx, c.p, int(r.pid))
	if err != nil {
		return -1
	}
	return int32(status)
}

func (r createRequest) run(c *call) int32 {
	name := c.string(r.name)
	fs := c.d.procs.FileSystem()
	err := c.d.procs.Serializer().Do(c.p.PID(), func() error {
		return fs.Create(name, int64(r.size))
	})
	return boolResult(err == nil)
}

func (r removeRequest) run(c *call) int32 {
	name := c.string(r.name)
	fs := c.d.procs.FileSystem()
	err := c.d.procs.Serializer().Do(c.p.PID(), func() error {
		return fs.Remove(name)
	})
	return boolResult(err == nil)
}

func (r openRequest) run(c *call) int32 {
	name := c.string(r.name)
	fd, err := c.p.Files().Open(name)
	if err != nil {
		return -1
	}
	return int32(fd)
}

func (r filesizeRequest) run(c *call) int32 {
	n, err := c.p.Files().Filesize(int(r.fd))
	if err != nil {
		return -1
	}
	// Lengths are capped by the file system size limit, which config keeps
	// below 1 GiB.
	return int32(n)
}

func (r readRequest) run(c *call) int32 {
	c.buffer(r.buf, r.size, true)
	mem := c.p.Space()

	switch r.fd {
	case abi.StdinFileno:
		for i := range r.size {
			if !mem.WriteUser(r.buf+i, []byte{c.d.console.GetChar()}) {
				c.kill()
			}
		}
		return int32(r.size)
	case abi.StdoutFileno:
		return -1
	}

	files := c.p.Files()
	if _, err := files.Lookup(int(r.fd)); err != nil {
		return -1
	}
	failed := false
	total := kbuf.Chunks(int(r.size), func(off int, buf []byte) (int, bool) {
		got, err := files.Read(int(r.fd), buf)
		if err != nil {
			failed = true
			return 0, false
		}
		if !mem.WriteUser(r.buf+uint32(off), buf[:got]) {
			c.kill()
		}
		return got, true
	})
	if failed && total == 0 {
		return -1
	}
	return int32(total)
}

func (r writeRequest) run(c *call) int32 {
	c.buffer(r.buf, r.size, false)
	mem := c.p.Space()

	switch r.fd {
	case abi.StdoutFileno:
		return int32(kbuf.Chunks(int(r.size), func(off int, buf []byte) (int, bool) {
			if !mem.ReadUser(buf, r.buf+uint32(off)) {
				c.kill()
			}
			c.d.console.PutBytes(buf)
			return len(buf), true
		}))
	case abi.StdinFileno:
		return -1
	}

	files := c.p.Files()
	if _, err := files.Lookup(int(r.fd)); err != nil {
		return -1
	}
	failed := false
	total := kbuf.Chunks(int(r.size), func(off int, buf []byte) (int, bool) {
		if !mem.ReadUser(buf, r.buf+uint32(off)) {
			c.kill()
		}
		got, err := files.Write(int(r.fd), buf)
		if err != nil {
			failed = true
			return 0, false
		}
		return got, true
	})
	if failed && total == 0 {
		return -1
	}
	return int32(total)
}

func (r seekRequest) run(c *call) int32 {
	_ = c.p.Files().Seek(int(r.fd), int64(r.pos))
	return 0
}

func (r tellRequest) run(c *call) int32 {
	pos, err := c.p.Files().Tell(int(r.fd))
	if err != nil {
		return -1
	}
	// Positions come from 32-bit seek words; the register holds the same bits.
	return int32(uint32(pos))
}

func (r closeRequest) run(c *call) int32 {
	_ = c.p.Files().Close(int(r.fd))
	return 0
}
