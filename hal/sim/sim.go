package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// Simulation errors.
var (
	// ErrNotAttached indicates the controller is not enabled in the role
	// the bus action requires.
	ErrNotAttached = errors.New("controller not attached")

	// ErrOverflow indicates a packet longer than the armed buffer.
	ErrOverflow = errors.New("packet exceeds armed buffer length")
)

const numRegs = int(hal.RegisterSpan) / 4

// Controller simulates the RP2040 USB controller register block and DPRAM.
// It implements [hal.Bus] and [hal.CPU], and is safe for concurrent use.
type Controller struct {
	mu   sync.Mutex
	regs [numRegs]uint32
	ram  [hal.DPRAMSize]byte

	// host mode
	speed    hal.Speed
	connDis  bool   // latched connect/disconnect interrupt
	pending  uint32 // SIE_CTRL of the started transaction, 0 when idle
	resetBus bool
	peer     Peer

	masked     int
	irqPending bool
	cycles     uint64

	tracing bool
	trace   []Access

	isrMu   sync.Mutex
	handler func()
}

// New returns a controller in its power-on state.
func New() *Controller {
	return &Controller{}
}

// SetInterruptHandler installs the function run when an enabled
// interrupt is pending, the equivalent of the USBCTRL_IRQ vector.
func (c *Controller) SetInterruptHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

func (c *Controller) reg(r hal.Register) *uint32 {
	i := int(r) / 4
	if r%4 != 0 || i >= numRegs {
		panic(fmt.Sprintf("sim: bad register offset 0x%x", uint16(r)))
	}
	return &c.regs[i]
}

func (c *Controller) hostMode() bool {
	return c.regs[hal.MainCtrl/4]&hal.MainCtrlHostNDevice != 0
}

func (c *Controller) enabled() bool {
	return c.regs[hal.MainCtrl/4]&hal.MainCtrlControllerEn != 0
}

// Get implements hal.Bus.
func (c *Controller) Get(r hal.Register) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(r)
}

func (c *Controller) read(r hal.Register) uint32 {
	switch r {
	case hal.Intr:
		return c.intr()
	case hal.Ints:
		return c.ints()
	case hal.SIEStatus:
		v := *c.reg(r)
		if c.hostMode() {
			v |= uint32(c.speed) << hal.SIEStatusSpeedLSB
		}
		return v
	}
	return *c.reg(r)
}

// Set implements hal.Bus. SIE_STATUS and BUFF_STATUS are write-1-to-clear.
func (c *Controller) Set(r hal.Register, v uint32) {
	c.mu.Lock()
	c.record(OpWrite, r.String(), v)
	switch r {
	case hal.SIEStatus, hal.BuffStatus:
		c.clear(r, v)
	case hal.SIECtrl:
		c.writeSIECtrl(v)
	case hal.Intr, hal.Ints:
	default:
		*c.reg(r) = v
	}
	c.mu.Unlock()
}

// SetBits implements hal.Bus through the set alias.
func (c *Controller) SetBits(r hal.Register, mask uint32) {
	c.mu.Lock()
	c.record(OpSet, r.String(), mask)
	switch r {
	case hal.SIEStatus, hal.BuffStatus, hal.Intr, hal.Ints:
	case hal.SIECtrl:
		c.writeSIECtrl(c.regs[hal.SIECtrl/4] | mask)
	default:
		*c.reg(r) |= mask
	}
	c.mu.Unlock()
}

// ClearBits implements hal.Bus through the clear alias.
func (c *Controller) ClearBits(r hal.Register, mask uint32) {
	c.mu.Lock()
	c.record(OpClear, r.String(), mask)
	switch r {
	case hal.SIEStatus, hal.BuffStatus:
		c.clear(r, mask)
	case hal.SIECtrl:
		c.writeSIECtrl(c.regs[hal.SIECtrl/4] &^ mask)
	case hal.Intr, hal.Ints:
	default:
		*c.reg(r) &^= mask
	}
	c.mu.Unlock()
}

func (c *Controller) clear(r hal.Register, mask uint32) {
	*c.reg(r) &^= mask
	if r == hal.SIEStatus && mask&hal.SIEStatusSpeed != 0 {
		c.connDis = false
	}
}

// writeSIECtrl applies the self-clearing action bits.
func (c *Controller) writeSIECtrl(v uint32) {
	if v&hal.SIECtrlStopTrans != 0 {
		c.pending = 0
		v &^= hal.SIECtrlStopTrans
	}
	if v&hal.SIECtrlStartTrans != 0 {
		c.pending = v
		v &^= hal.SIECtrlStartTrans
	}
	// RESET_BUS reads back set until Step has driven the reset.
	if v&hal.SIECtrlResetBus != 0 && c.regs[hal.SIECtrl/4]&hal.SIECtrlResetBus == 0 {
		c.resetBus = true
	}
	c.regs[hal.SIECtrl/4] = v
}

func (c *Controller) intr() uint32 {
	s := c.regs[hal.SIEStatus/4]
	var v uint32
	if c.regs[hal.BuffStatus/4] != 0 {
		v |= hal.IntBuffStatus
	}
	if s&hal.SIEStatusTransComplete != 0 {
		v |= hal.IntTransComplete
	}
	if s&hal.SIEStatusDataSeqError != 0 {
		v |= hal.IntErrorDataSeq
	}
	if s&hal.SIEStatusRxTimeout != 0 {
		v |= hal.IntErrorRxTimeout
	}
	if s&hal.SIEStatusRxOverflow != 0 {
		v |= hal.IntErrorRxOverflow
	}
	if s&hal.SIEStatusBitStuffError != 0 {
		v |= hal.IntErrorBitStuff
	}
	if s&hal.SIEStatusCRCError != 0 {
		v |= hal.IntErrorCRC
	}
	if s&hal.SIEStatusStallRec != 0 {
		v |= hal.IntStall
	}
	if c.hostMode() {
		if c.connDis {
			v |= hal.IntHostConnDis
		}
		if s&hal.SIEStatusResume != 0 {
			v |= hal.IntHostResume
		}
	} else {
		if s&hal.SIEStatusSetupRec != 0 {
			v |= hal.IntSetupReq
		}
		if s&hal.SIEStatusBusReset != 0 {
			v |= hal.IntBusReset
		}
		if s&hal.SIEStatusResume != 0 {
			v |= hal.IntDevResumeFromHost
		}
	}
	return v
}

func (c *Controller) ints() uint32 {
	return (c.intr() | c.regs[hal.Intf/4]) & c.regs[hal.Inte/4]
}

func (c *Controller) checkRAM(off uint16, n int) {
	if int(off)+n > hal.DPRAMSize {
		panic(fmt.Sprintf("sim: DPRAM access 0x%x+%d out of range", off, n))
	}
}

// Load implements hal.Bus.
func (c *Controller) Load(off uint16) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(off)
}

func (c *Controller) load(off uint16) uint32 {
	c.checkRAM(off, 4)
	return binary.LittleEndian.Uint32(c.ram[off:])
}

// Store implements hal.Bus.
func (c *Controller) Store(off uint16, v uint32) {
	c.mu.Lock()
	c.record(OpStore, c.ramName(off), v)
	c.store(off, v)
	c.mu.Unlock()
}

func (c *Controller) store(off uint16, v uint32) {
	c.checkRAM(off, 4)
	binary.LittleEndian.PutUint32(c.ram[off:], v)
}

// ReadRAM implements hal.Bus.
func (c *Controller) ReadRAM(off uint16, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkRAM(off, len(p))
	copy(p, c.ram[off:])
}

// WriteRAM implements hal.Bus.
func (c *Controller) WriteRAM(off uint16, p []byte) {
	c.mu.Lock()
	c.record(OpCopy, c.ramName(off), uint32(len(p)))
	c.checkRAM(off, len(p))
	copy(c.ram[off:], p)
	c.mu.Unlock()
}

// ClearRAM zeroes the DPRAM in one step.
func (c *Controller) ClearRAM() {
	c.mu.Lock()
	c.record(OpCopy, "DPRAM", hal.DPRAMSize)
	c.ram = [hal.DPRAMSize]byte{}
	c.mu.Unlock()
}

// DelayCycles implements hal.CPU by accounting the cycles.
func (c *Controller) DelayCycles(n uint32) {
	c.mu.Lock()
	c.cycles += uint64(n)
	c.record(OpDelay, "cycles", n)
	c.mu.Unlock()
}

// DisableInterrupts implements hal.CPU. Interrupts raised while masked are
// delivered when the mask is restored.
func (c *Controller) DisableInterrupts() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.masked
	c.masked++
	return uintptr(prev)
}

// RestoreInterrupts implements hal.CPU.
func (c *Controller) RestoreInterrupts(state uintptr) {
	c.mu.Lock()
	c.masked = int(state)
	deliver := c.masked == 0 && c.irqPending
	c.irqPending = false
	c.mu.Unlock()
	if deliver {
		c.raise()
	}
}

// Cycles returns the total of all DelayCycles calls.
func (c *Controller) Cycles() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// Pending returns the current INTS value.
func (c *Controller) Pending() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ints()
}

// Address returns the device address programmed in ADDR_ENDP.
func (c *Controller) Address() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint8(c.regs[hal.AddrEndp/4] & hal.AddrEndpAddressMask)
}

// Signal latches raw SIE_STATUS and BUFF_STATUS bits and raises the
// interrupt, as the serial interface engine would.
func (c *Controller) Signal(sieStatus, buffStatus uint32) {
	c.mu.Lock()
	c.regs[hal.SIEStatus/4] |= sieStatus
	c.regs[hal.BuffStatus/4] |= buffStatus
	c.mu.Unlock()
	c.raise()
}

// Interrupt runs the installed handler if an enabled interrupt is
// pending. Bus actions call it on their own.
func (c *Controller) Interrupt() { c.raise() }

func (c *Controller) raise() {
	c.mu.Lock()
	fn := c.handler
	if fn == nil || c.ints() == 0 {
		c.mu.Unlock()
		return
	}
	if c.masked > 0 {
		c.irqPending = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.isrMu.Lock()
	defer c.isrMu.Unlock()
	pkg.LogDebug(pkg.ComponentSim, "irq")
	fn()
}
