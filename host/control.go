package host

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

type controlStage uint8

const (
	controlIdle controlStage = iota
	controlSetup
	controlData
	controlStatus
)

func (s controlStage) String() string {
	switch s {
	case controlIdle:
		return "idle"
	case controlSetup:
		return "setup"
	case controlData:
		return "data"
	case controlStatus:
		return "status"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// control is the endpoint 0 transfer in progress. Only one exists at a
// time and it owns EPX until it finishes.
type control struct {
	stage controlStage
	addr  uint8
	setup usb.SetupPacket
	buf   []byte
	n     int // data stage bytes moved so far
	pid   uint8
	done  func(Result)
}

// Control runs a control transfer on endpoint 0 of the device at addr.
// For a request with an IN data stage, data receives up to wLength bytes;
// for OUT, data[:wLength] is sent. done runs in task context and gets the
// bytes of the data stage that were transferred.
func (h *Host) Control(addr uint8, setup usb.SetupPacket, data []byte, done func(Result)) error {
	switch {
	case h.dev == nil:
		return pkg.ErrNoDevice
	case h.ctl.stage != controlIdle:
		return pkg.ErrControlBusy
	case h.epx != nil:
		return fmt.Errorf("%w: EPX", pkg.ErrBusy)
	case len(data) < int(setup.Length):
		return fmt.Errorf("%w: %d bytes for wLength %d", pkg.ErrBufferTooSmall, len(data), setup.Length)
	}
	h.ctl = control{
		stage: controlSetup,
		addr:  addr,
		setup: setup,
		buf:   data[:setup.Length],
		done:  done,
	}
	h.armSetup(addr, setup)
	return nil
}

// ClearHalt sends CLEAR_FEATURE(ENDPOINT_HALT) for ep and, once the device
// accepts it, restarts the endpoint at DATA0.
func (h *Host) ClearHalt(ep *Endpoint, done func(Result)) error {
	if h.dev == nil || ep.dev != h.dev {
		return pkg.ErrNoDevice
	}
	setup := usb.FeatureSetup(false, usb.RequestRecipientEndpoint,
		usb.FeatureEndpointHalt, uint16(ep.Address()))
	return h.Control(h.dev.Address, setup, nil, func(r Result) {
		if r.Status == pkg.TransferStatusSuccess {
			ep.pid = 0
		}
		if done != nil {
			done(r)
		}
	})
}

func (h *Host) maxPacket0() int {
	if h.dev == nil || h.dev.maxPacket0 == 0 {
		return 8
	}
	return int(h.dev.maxPacket0)
}

// controlDone advances the control transfer after one EPX transaction.
// n is the length the controller reported for a data packet.
func (h *Host) controlDone(status pkg.TransferStatus, n int) {
	c := &h.ctl
	if status != pkg.TransferStatusSuccess {
		h.finishControl(status)
		return
	}
	switch c.stage {
	case controlSetup:
		if c.setup.Length == 0 {
			h.controlStatusStage()
			return
		}
		c.stage = controlData
		c.pid = 1
		h.controlDataStage()

	case controlData:
		remaining := len(c.buf) - c.n
		if n > remaining {
			n = remaining
		}
		if c.setup.IsIn() {
			h.bus.ReadRAM(hal.HostEPXData, c.buf[c.n:c.n+n])
		}
		c.n += n
		c.pid ^= 1
		if c.n < len(c.buf) && n == h.maxPacket0() {
			h.controlDataStage()
			return
		}
		h.controlStatusStage()

	case controlStatus:
		h.finishControl(pkg.TransferStatusSuccess)

	default:
		pkg.LogWarn(pkg.ComponentControl, "completion while idle")
	}
}

func (h *Host) controlDataStage() {
	c := &h.ctl
	n := len(c.buf) - c.n
	if mps := h.maxPacket0(); n > mps {
		n = mps
	}
	h.armEPX(c.addr, 0, usb.TransferTypeControl, c.setup.IsIn(), c.pid, c.buf[c.n:], n)
}

// controlStatusStage sends or receives the zero-length DATA1 packet in the
// direction opposite the data stage. A request without data stage gets an
// IN status.
func (h *Host) controlStatusStage() {
	c := &h.ctl
	c.stage = controlStatus
	in := c.setup.Length == 0 || !c.setup.IsIn()
	h.armEPX(c.addr, 0, usb.TransferTypeControl, in, 1, nil, 0)
}

func (h *Host) finishControl(status pkg.TransferStatus) {
	c := h.ctl
	h.ctl = control{}
	n := c.n
	if status != pkg.TransferStatusSuccess {
		n = 0
		pkg.LogDebug(pkg.ComponentControl, "failed",
			"dev", c.addr, "request", c.setup.String(), "stage", c.stage, "status", status)
	}
	if c.done != nil {
		c.done(Result{Status: status, Data: c.buf[:n]})
	}
}
