package sim

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
)

// Op is the kind of a traced access.
type Op string

// Traced operations.
const (
	OpWrite Op = "write"
	OpSet   Op = "set"
	OpClear Op = "clear"
	OpStore Op = "store"
	OpCopy  Op = "copy"
	OpDelay Op = "delay"
)

// Access is one traced write to the controller.
type Access struct {
	Op     Op
	Target string
	Value  uint32
	Masked bool // interrupts were disabled
}

func (a Access) String() string {
	m := ""
	if a.Masked {
		m = " (masked)"
	}
	return fmt.Sprintf("%-5s %-18s 0x%08x%s", a.Op, a.Target, a.Value, m)
}

// EnableTrace starts or stops recording accesses.
func (c *Controller) EnableTrace(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracing = on
}

// Trace returns a copy of the recorded accesses.
func (c *Controller) Trace() []Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Access(nil), c.trace...)
}

// ResetTrace discards the recorded accesses.
func (c *Controller) ResetTrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = c.trace[:0]
}

func (c *Controller) record(op Op, target string, v uint32) {
	if !c.tracing {
		return
	}
	c.trace = append(c.trace, Access{Op: op, Target: target, Value: v, Masked: c.masked > 0})
}

func (c *Controller) ramName(off uint16) string {
	dir := func(o uint16) string {
		if o%8 == 0 {
			return "IN"
		}
		return "OUT"
	}
	switch {
	case off < hal.SetupPacketOffset+8:
		return "SETUP"
	case c.hostMode() && off == hal.HostEPXBufferControl:
		return "EPX_BUF_CTRL"
	case c.hostMode() && off == hal.HostEPXControl:
		return "EPX_CTRL"
	case c.hostMode() && off < hal.HostEPXBufferControl:
		return fmt.Sprintf("INT%d_CTRL", (off-0x08)/8+1)
	case c.hostMode() && off < hal.HostEPXControl:
		return fmt.Sprintf("INT%d_BUF_CTRL", (off-0x88)/8+1)
	case !c.hostMode() && off < 0x80:
		return fmt.Sprintf("EP%d_%s_CTRL", (off-0x08)/8+1, dir(off))
	case !c.hostMode() && off < hal.EP0BufferA:
		return fmt.Sprintf("EP%d_%s_BUF_CTRL", (off-0x80)/8, dir(off))
	}
	return fmt.Sprintf("DPRAM[0x%03x]", off)
}
