package sim

import (
	"context"
	"errors"
	"time"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// Peer is the device on the far end of the cable when the controller runs
// in host mode. Errors pkg.ErrNAK, pkg.ErrStall, pkg.ErrTimeout and
// pkg.ErrDataSequence map to the matching handshake or bus condition.
type Peer interface {
	Reset()
	Setup(address, endpoint uint8, setup [8]byte) error
	In(address, endpoint uint8) (pid uint8, data []byte, err error)
	Out(address, endpoint, pid uint8, data []byte) error
}

// Attach connects peer at the given speed and latches the connect
// interrupt.
func (c *Controller) Attach(peer Peer, speed hal.Speed) {
	c.mu.Lock()
	c.peer = peer
	c.speed = speed
	c.connDis = true
	c.mu.Unlock()
	c.raise()
}

// Detach disconnects the peer.
func (c *Controller) Detach() {
	c.mu.Lock()
	c.peer = nil
	c.speed = hal.SpeedDisconnected
	c.connDis = true
	c.pending = 0
	c.mu.Unlock()
	c.raise()
}

// Step executes at most one bus action on behalf of the host: a pending
// bus reset, the EPX transaction started through SIE_CTRL, or one poll of
// each armed interrupt endpoint. It reports whether anything happened. A
// NAKed transaction stays pending and is retried on the next Step.
func (c *Controller) Step() bool {
	c.mu.Lock()
	if !c.enabled() || !c.hostMode() {
		c.mu.Unlock()
		return false
	}
	peer := c.peer
	if c.resetBus {
		c.resetBus = false
		c.regs[hal.SIECtrl/4] &^= hal.SIECtrlResetBus
		c.mu.Unlock()
		if peer != nil {
			peer.Reset()
		}
		return true
	}
	if txn := c.pending; txn != 0 {
		addrEndp := c.regs[hal.AddrEndp/4]
		c.mu.Unlock()
		if c.runEPX(peer, txn, addrEndp) {
			c.raise()
			return true
		}
		return false
	}
	c.mu.Unlock()
	if c.pollInterrupt(peer) {
		c.raise()
		return true
	}
	return false
}

// Run calls Step until ctx is done, sleeping for idle between steps that
// did nothing.
func (c *Controller) Run(ctx context.Context, idle time.Duration) error {
	for {
		if !c.Step() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idle):
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// handshake maps a peer error onto SIE_STATUS. It returns false for a NAK.
func (c *Controller) handshake(err error) bool {
	switch {
	case err == nil:
		c.regs[hal.SIEStatus/4] |= hal.SIEStatusTransComplete | hal.SIEStatusACKRec
	case errors.Is(err, pkg.ErrNAK):
		return false
	case errors.Is(err, pkg.ErrStall):
		c.regs[hal.SIEStatus/4] |= hal.SIEStatusStallRec
	case errors.Is(err, pkg.ErrDataSequence):
		c.regs[hal.SIEStatus/4] |= hal.SIEStatusDataSeqError
	case errors.Is(err, ErrOverflow):
		c.regs[hal.SIEStatus/4] |= hal.SIEStatusRxOverflow | hal.SIEStatusRxTimeout
	default:
		c.regs[hal.SIEStatus/4] |= hal.SIEStatusRxTimeout
	}
	return true
}

func (c *Controller) runEPX(peer Peer, txn, addrEndp uint32) bool {
	addr := uint8(addrEndp & hal.AddrEndpAddressMask)
	ep := uint8((addrEndp & hal.AddrEndpEndpointMask) >> hal.AddrEndpEndpointLSB)

	switch {
	case txn&hal.SIECtrlSendSetup != 0:
		var setup [8]byte
		c.ReadRAM(hal.SetupPacketOffset, setup[:])
		err := pkg.ErrTimeout
		if peer != nil {
			err = peer.Setup(addr, ep, setup)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.handshake(err) {
			return false
		}
		c.pending = 0
		return true

	case txn&hal.SIECtrlReceiveData != 0:
		bcr := c.Load(hal.HostEPXBufferControl)
		var (
			pid  uint8
			data []byte
			err  = pkg.ErrTimeout
		)
		if bcr&hal.BufferAvailable == 0 {
			err = pkg.ErrNAK
		} else if peer != nil {
			pid, data, err = peer.In(addr, ep)
		}
		if err == nil && len(data) > int(bcr&hal.BufferLengthMask) {
			err = ErrOverflow
		}
		if err == nil && pid != hal.BufferPID(bcr) {
			err = pkg.ErrDataSequence
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.handshake(err) {
			return false
		}
		c.pending = 0
		if err == nil {
			c.fill(c.epxBuffer(), hal.HostEPXBufferControl, bcr, data)
			c.regs[hal.BuffStatus/4] |= 1
		}
		return true

	case txn&hal.SIECtrlSendData != 0:
		bcr := c.Load(hal.HostEPXBufferControl)
		err := pkg.ErrTimeout
		if bcr&hal.BufferAvailable == 0 || bcr&hal.BufferFull == 0 {
			err = pkg.ErrNAK
		} else if peer != nil {
			data := make([]byte, bcr&hal.BufferLengthMask)
			c.mu.Lock()
			copy(data, c.ram[c.epxBuffer():])
			c.mu.Unlock()
			err = peer.Out(addr, ep, hal.BufferPID(bcr), data)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.handshake(err) {
			return false
		}
		c.pending = 0
		if err == nil {
			c.store(hal.HostEPXBufferControl, bcr&^(hal.BufferAvailable|hal.BufferFull))
			c.regs[hal.BuffStatus/4] |= 1
		}
		return true
	}

	c.mu.Lock()
	c.pending = 0
	c.mu.Unlock()
	return false
}

// fill completes an IN buffer: data lands in DPRAM, the buffer-control word
// reports FULL with the received length.
func (c *Controller) fill(buf, bcrOff uint16, bcr uint32, data []byte) {
	copy(c.ram[buf:], data)
	bcr &^= hal.BufferAvailable | hal.BufferLengthMask
	c.store(bcrOff, bcr|hal.BufferFull|uint32(len(data)))
}

func (c *Controller) epxBuffer() uint16 {
	if ecr := c.load(hal.HostEPXControl); ecr&hal.EndpointEnable != 0 {
		return uint16(ecr & hal.EndpointBufferMask)
	}
	return hal.HostEPXData
}

// pollInterrupt services each active interrupt endpoint slot with an armed
// buffer once.
func (c *Controller) pollInterrupt(peer Peer) bool {
	if peer == nil {
		return false
	}
	progressed := false
	for slot := 1; slot <= hal.HostInterruptSlots; slot++ {
		c.mu.Lock()
		active := c.regs[hal.IntEPCtrl/4]&(1<<slot) != 0
		ecr := c.load(hal.HostEndpointControl(slot))
		bcrOff := hal.HostBufferControl(slot)
		bcr := c.load(bcrOff)
		addrEndp := c.regs[hal.AddrEndpN(slot)/4]
		c.mu.Unlock()
		if !active || ecr&hal.EndpointEnable == 0 || bcr&hal.BufferAvailable == 0 {
			continue
		}
		addr := uint8(addrEndp & hal.AddrEndpAddressMask)
		ep := uint8((addrEndp & hal.AddrEndpEndpointMask) >> hal.AddrEndpEndpointLSB)
		buf := uint16(ecr & hal.EndpointBufferMask)

		if addrEndp&hal.AddrEndpIntEPDir != 0 {
			data := make([]byte, bcr&hal.BufferLengthMask)
			c.ReadRAM(buf, data)
			err := peer.Out(addr, ep, hal.BufferPID(bcr), data)
			c.mu.Lock()
			if c.pollResult(err) {
				c.store(bcrOff, bcr&^(hal.BufferAvailable|hal.BufferFull))
				c.regs[hal.BuffStatus/4] |= 1 << (2*uint32(slot) + 1)
			}
			progressed = progressed || !errors.Is(err, pkg.ErrNAK)
			c.mu.Unlock()
			continue
		}

		pid, data, err := peer.In(addr, ep)
		if err == nil && len(data) > int(bcr&hal.BufferLengthMask) {
			err = ErrOverflow
		}
		if err == nil && pid != hal.BufferPID(bcr) {
			err = pkg.ErrDataSequence
		}
		c.mu.Lock()
		if c.pollResult(err) {
			c.fill(buf, bcrOff, bcr, data)
			c.regs[hal.BuffStatus/4] |= 1 << (2 * uint32(slot))
		}
		progressed = progressed || !errors.Is(err, pkg.ErrNAK)
		c.mu.Unlock()
	}
	return progressed
}

// pollResult records a failed interrupt poll; a NAK is silently retried on
// the next poll. It reports whether the buffer completed.
func (c *Controller) pollResult(err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, pkg.ErrNAK) {
		c.handshake(err)
	}
	return false
}
