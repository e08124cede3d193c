package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

type scriptedPeer struct {
	resets int
	setups [][8]byte
	in     []Packet
	inErr  error
	outs   []Packet
}

func (p *scriptedPeer) Reset() { p.resets++ }

func (p *scriptedPeer) Setup(_, _ uint8, setup [8]byte) error {
	p.setups = append(p.setups, setup)
	return nil
}

func (p *scriptedPeer) In(_, _ uint8) (uint8, []byte, error) {
	if p.inErr != nil {
		return 0, nil, p.inErr
	}
	if len(p.in) == 0 {
		return 0, nil, pkg.ErrNAK
	}
	pkt := p.in[0]
	p.in = p.in[1:]
	return pkt.PID, pkt.Data, nil
}

func (p *scriptedPeer) Out(_, _, pid uint8, data []byte) error {
	p.outs = append(p.outs, Packet{PID: pid, Data: append([]byte(nil), data...)})
	return nil
}

func newHost(t *testing.T) *Controller {
	t.Helper()
	c := New()
	c.Set(hal.MainCtrl, hal.MainCtrlControllerEn|hal.MainCtrlHostNDevice)
	c.Set(hal.Inte, hal.IntHostConnDis|hal.IntStall|hal.IntBuffStatus|hal.IntTransComplete|
		hal.IntErrorDataSeq|hal.IntErrorRxTimeout|hal.IntHostResume)
	return c
}

func TestHostAttach(t *testing.T) {
	c := newHost(t)
	c.Attach(&scriptedPeer{}, hal.SpeedFull)

	assert.Equal(t, uint32(hal.IntHostConnDis), c.Pending())
	assert.Equal(t, hal.SpeedFull, hal.SpeedOf(c.Get(hal.SIEStatus)))

	c.ClearBits(hal.SIEStatus, hal.SIEStatusSpeed)
	assert.Zero(t, c.Pending())
	assert.Equal(t, hal.SpeedFull, hal.SpeedOf(c.Get(hal.SIEStatus)))
}

func TestHostSetupAndIn(t *testing.T) {
	c := newHost(t)
	peer := &scriptedPeer{in: []Packet{{PID: 1, Data: []byte{18, 1, 0x10, 0x01, 0, 0, 0, 64}}}}
	c.Attach(peer, hal.SpeedFull)
	c.ClearBits(hal.SIEStatus, hal.SIEStatusSpeed)

	setup := usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, 8)
	b := setup.Bytes()
	c.WriteRAM(hal.SetupPacketOffset, b[:])
	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlSendSetup|hal.SIECtrlStartTrans)

	require.True(t, c.Step())
	require.Len(t, peer.setups, 1)
	assert.Equal(t, b, peer.setups[0])
	assert.Equal(t, uint32(hal.IntTransComplete), c.Pending())
	c.ClearBits(hal.SIEStatus, hal.SIEStatusTransComplete|hal.SIEStatusACKRec)

	assert.False(t, c.Step(), "no transaction pending")

	c.Store(hal.HostEPXBufferControl, hal.BufferControl(64, false, 1)|hal.BufferAvailable)
	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlReceiveData|hal.SIECtrlStartTrans)
	require.True(t, c.Step())

	assert.Equal(t, uint32(hal.IntTransComplete|hal.IntBuffStatus), c.Pending())
	bcr := c.Load(hal.HostEPXBufferControl)
	assert.Equal(t, uint32(8), bcr&hal.BufferLengthMask)
	data := make([]byte, 8)
	c.ReadRAM(hal.HostEPXData, data)
	assert.Equal(t, byte(64), data[7])
}

func TestHostInNAKRetries(t *testing.T) {
	c := newHost(t)
	peer := &scriptedPeer{}
	c.Attach(peer, hal.SpeedFull)

	c.Store(hal.HostEPXBufferControl, hal.BufferControl(64, false, 0)|hal.BufferAvailable)
	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlReceiveData|hal.SIECtrlStartTrans)
	assert.False(t, c.Step())

	peer.in = append(peer.in, Packet{PID: 0, Data: []byte{1}})
	assert.True(t, c.Step())
}

func TestHostInErrors(t *testing.T) {
	tests := []struct {
		name   string
		peer   *scriptedPeer
		status uint32
	}{
		{"stall", &scriptedPeer{inErr: pkg.ErrStall}, hal.SIEStatusStallRec},
		{"timeout", &scriptedPeer{inErr: pkg.ErrTimeout}, hal.SIEStatusRxTimeout},
		{"data sequence", &scriptedPeer{in: []Packet{{PID: 1}}}, hal.SIEStatusDataSeqError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newHost(t)
			c.Attach(tt.peer, hal.SpeedFull)
			c.Store(hal.HostEPXBufferControl, hal.BufferControl(64, false, 0)|hal.BufferAvailable)
			c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlReceiveData|hal.SIECtrlStartTrans)

			require.True(t, c.Step())
			assert.Equal(t, tt.status, c.Get(hal.SIEStatus)&tt.status)
			assert.Zero(t, c.Get(hal.BuffStatus))
		})
	}
}

func TestHostOut(t *testing.T) {
	c := newHost(t)
	peer := &scriptedPeer{}
	c.Attach(peer, hal.SpeedFull)

	c.Set(hal.AddrEndp, hal.AddrEndpValue(1, 1))
	c.WriteRAM(hal.HostEPXData, []byte("abc"))
	c.Store(hal.HostEPXBufferControl, hal.BufferControl(3, true, 1)|hal.BufferAvailable)
	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlSendData|hal.SIECtrlStartTrans)

	require.True(t, c.Step())
	require.Len(t, peer.outs, 1)
	assert.Equal(t, Packet{PID: 1, Data: []byte("abc")}, peer.outs[0])
	assert.Equal(t, uint32(1), c.Get(hal.BuffStatus))
}

func TestHostResetAndStop(t *testing.T) {
	c := newHost(t)
	peer := &scriptedPeer{}
	c.Attach(peer, hal.SpeedFull)

	c.SetBits(hal.SIECtrl, hal.SIECtrlResetBus)
	assert.NotZero(t, c.Get(hal.SIECtrl)&hal.SIECtrlResetBus, "reset in progress")
	assert.Zero(t, peer.resets)
	require.True(t, c.Step())
	assert.Equal(t, 1, peer.resets)
	assert.Zero(t, c.Get(hal.SIECtrl)&hal.SIECtrlResetBus, "reset done")

	c.Set(hal.SIECtrl, hal.SIECtrlHostBase|hal.SIECtrlReceiveData|hal.SIECtrlStartTrans)
	c.SetBits(hal.SIECtrl, hal.SIECtrlStopTrans)
	assert.False(t, c.Step())
}

func TestHostInterruptEndpoint(t *testing.T) {
	c := newHost(t)
	peer := &scriptedPeer{in: []Packet{{PID: 0, Data: []byte{0x42}}}}
	c.Attach(peer, hal.SpeedFull)

	c.Set(hal.AddrEndpN(1), hal.AddrEndpValue(1, 3))
	c.Store(hal.HostEndpointControl(1), hal.EndpointControl(usb.TransferTypeInterrupt, hal.DataBuffer(1)))
	c.Store(hal.HostBufferControl(1), hal.BufferControl(8, false, 0)|hal.BufferAvailable)
	c.SetBits(hal.IntEPCtrl, 1<<1)

	require.True(t, c.Step())
	assert.Equal(t, uint32(1<<2), c.Get(hal.BuffStatus))
	assert.Equal(t, uint32(1), c.Load(hal.HostBufferControl(1))&hal.BufferLengthMask)
}

func TestDevicePeer(t *testing.T) {
	dev := newDevice(t)
	peer := DevicePeer{Device: dev}

	err := peer.Setup(3, 0, usb.SetAddressSetup(3).Bytes())
	assert.ErrorIs(t, err, pkg.ErrTimeout, "device still at address 0")

	require.NoError(t, peer.Setup(0, 0, usb.SetAddressSetup(3).Bytes()))
	assert.NotZero(t, dev.Get(hal.SIEStatus)&hal.SIEStatusSetupRec)

	_, _, err = peer.In(0, 0)
	assert.ErrorIs(t, err, pkg.ErrNAK)
}
