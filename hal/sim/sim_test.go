package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// newDevice returns a controller configured the way a device reset leaves
// it, with EP1 OUT and EP2 IN enabled.
func newDevice(t *testing.T) *Controller {
	t.Helper()
	c := New()
	c.Set(hal.MainCtrl, hal.MainCtrlControllerEn)
	c.Set(hal.SIECtrl, hal.SIECtrlEP0Int1Buf|hal.SIECtrlPullupEn)
	c.Set(hal.Inte, hal.IntBusReset|hal.IntSetupReq|hal.IntBuffStatus)
	c.Store(hal.DeviceEndpointControl(1, false), hal.EndpointControl(usb.TransferTypeBulk, hal.DataBuffer(0)))
	c.Store(hal.DeviceEndpointControl(2, true), hal.EndpointControl(usb.TransferTypeBulk, hal.DataBuffer(1)))
	return c
}

func TestAliases(t *testing.T) {
	c := New()
	c.Set(hal.USBMuxing, hal.USBMuxingToPHY)
	c.SetBits(hal.USBMuxing, hal.USBMuxingSoftCon)
	assert.Equal(t, uint32(hal.USBMuxingToPHY|hal.USBMuxingSoftCon), c.Get(hal.USBMuxing))

	c.ClearBits(hal.USBMuxing, hal.USBMuxingToPHY)
	assert.Equal(t, uint32(hal.USBMuxingSoftCon), c.Get(hal.USBMuxing))
}

func TestWriteOneToClear(t *testing.T) {
	c := New()
	c.Signal(hal.SIEStatusSetupRec|hal.SIEStatusBusReset, 0x6)

	c.Set(hal.SIEStatus, hal.SIEStatusSetupRec)
	assert.Equal(t, uint32(hal.SIEStatusBusReset), c.Get(hal.SIEStatus))

	c.ClearBits(hal.BuffStatus, 0x2)
	assert.Equal(t, uint32(0x4), c.Get(hal.BuffStatus))

	c.SetBits(hal.BuffStatus, 0x1)
	assert.Equal(t, uint32(0x4), c.Get(hal.BuffStatus))
}

func TestInterruptStatus(t *testing.T) {
	c := New()
	c.Set(hal.MainCtrl, hal.MainCtrlControllerEn)
	c.Set(hal.Inte, hal.IntSetupReq|hal.IntBuffStatus)

	c.Signal(hal.SIEStatusSetupRec|hal.SIEStatusBusReset, 0)
	assert.Equal(t, uint32(hal.IntSetupReq|hal.IntBusReset), c.Get(hal.Intr))
	assert.Equal(t, uint32(hal.IntSetupReq), c.Get(hal.Ints))

	c.Set(hal.Intf, hal.IntBuffStatus)
	assert.Equal(t, uint32(hal.IntSetupReq|hal.IntBuffStatus), c.Get(hal.Ints))
}

func TestInterruptDelivery(t *testing.T) {
	c := newDevice(t)
	calls := 0
	c.SetInterruptHandler(func() {
		calls++
		c.ClearBits(hal.SIEStatus, hal.SIEStatusBusReset)
	})

	c.BusReset()
	assert.Equal(t, 1, calls)
	assert.Zero(t, c.Pending())

	state := c.DisableInterrupts()
	c.BusReset()
	assert.Equal(t, 1, calls, "masked interrupt delivered early")
	c.RestoreInterrupts(state)
	assert.Equal(t, 2, calls)
}

func TestSIECtrlSelfClearing(t *testing.T) {
	c := New()
	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlSendSetup|hal.SIECtrlStartTrans)
	assert.Equal(t, uint32(hal.SIECtrlHostBase|hal.SIECtrlSendSetup), c.Get(hal.SIECtrl))

	c.SetBits(hal.SIECtrl, hal.SIECtrlStopTrans)
	assert.Zero(t, c.Get(hal.SIECtrl)&hal.SIECtrlStopTrans)
}

func TestRAM(t *testing.T) {
	c := New()
	c.Store(0x80, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), c.Load(0x80))

	c.WriteRAM(0x180, []byte{1, 2, 3})
	p := make([]byte, 3)
	c.ReadRAM(0x180, p)
	assert.Equal(t, []byte{1, 2, 3}, p)

	c.ClearRAM()
	assert.Zero(t, c.Load(0x80))

	assert.Panics(t, func() { c.Load(hal.DPRAMSize - 2) })
}

func TestDeviceIn(t *testing.T) {
	c := newDevice(t)

	_, err := c.In(2)
	assert.ErrorIs(t, err, pkg.ErrNAK)

	c.WriteRAM(hal.DataBuffer(1), []byte("hello"))
	c.Store(hal.DeviceBufferControl(2, true), hal.BufferControl(5, true, 1)|hal.BufferAvailable)

	pkt, err := c.In(2)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), pkt.PID)
	assert.Equal(t, []byte("hello"), pkt.Data)
	assert.Equal(t, uint32(1<<4), c.Get(hal.BuffStatus))

	bcr := c.Load(hal.DeviceBufferControl(2, true))
	assert.Zero(t, bcr&(hal.BufferAvailable|hal.BufferFull))
	assert.Equal(t, uint32(5), bcr&hal.BufferLengthMask)
}

func TestDeviceOut(t *testing.T) {
	c := newDevice(t)
	c.Store(hal.DeviceBufferControl(1, false), hal.BufferControl(64, false, 0)|hal.BufferAvailable)

	assert.ErrorIs(t, c.Out(1, 1, []byte{1}), pkg.ErrDataSequence)
	assert.ErrorIs(t, c.Out(1, 0, make([]byte, 65)), ErrOverflow)
	require.NoError(t, c.Out(1, 0, []byte{9, 8, 7}))

	bcr := c.Load(hal.DeviceBufferControl(1, false))
	assert.Equal(t, uint32(3), bcr&hal.BufferLengthMask)
	assert.NotZero(t, bcr&hal.BufferFull)
	assert.Equal(t, uint32(1<<3), c.Get(hal.BuffStatus))

	assert.ErrorIs(t, c.Out(1, 0, nil), pkg.ErrNAK)
	assert.ErrorIs(t, c.Out(3, 0, nil), pkg.ErrTimeout)
}

func TestDeviceStall(t *testing.T) {
	c := newDevice(t)
	c.Store(hal.DeviceBufferControl(0, true), hal.BufferStall)
	c.SetBits(hal.EPStallArm, hal.EPStallArmEP0In)

	_, err := c.In(0)
	assert.ErrorIs(t, err, pkg.ErrStall)

	require.NoError(t, c.SendSetup(usb.GetConfigurationSetup()))
	_, err = c.In(0)
	assert.ErrorIs(t, err, pkg.ErrNAK, "setup must clear the EP0 stall")
}

func TestDeviceNotAttached(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.SendSetup(usb.SetAddressSetup(1)), ErrNotAttached)
	_, err := c.In(0)
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestTrace(t *testing.T) {
	c := New()
	c.EnableTrace(true)
	c.Set(hal.SIECtrl, hal.SIECtrlPullupEn)
	state := c.DisableInterrupts()
	c.Store(hal.DeviceBufferControl(0, true), 0x400)
	c.DelayCycles(3)
	c.RestoreInterrupts(state)

	tr := c.Trace()
	require.Len(t, tr, 3)
	assert.Equal(t, Access{Op: OpWrite, Target: "SIE_CTRL", Value: hal.SIECtrlPullupEn}, tr[0])
	assert.Equal(t, Access{Op: OpStore, Target: "EP0_IN_BUF_CTRL", Value: 0x400, Masked: true}, tr[1])
	assert.Equal(t, Access{Op: OpDelay, Target: "cycles", Value: 3, Masked: true}, tr[2])
	assert.Equal(t, uint64(3), c.Cycles())

	c.ResetTrace()
	assert.Empty(t, c.Trace())
}
