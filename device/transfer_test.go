package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/hal/sim"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
)

func TestStartTransfer(t *testing.T) {
	h := newHarness(t, DefaultTable())
	in, ok := h.dev.Endpoint(0x82)
	require.True(t, ok)

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, h.dev.StartTransfer(in, data, len(data)))
	assert.Equal(t, uint32(4|hal.BufferAvailable|hal.BufferFull), h.sim.Load(in.BufferControl()))
	assert.Equal(t, uint8(1), in.NextPID())

	pkt, err := h.sim.In(2)
	require.NoError(t, err)
	assert.Equal(t, data, pkt.Data)
	assert.Equal(t, uint8(0), pkt.PID)

	require.NoError(t, h.dev.StartTransfer(in, data, 2))
	assert.Equal(t, uint32(2|hal.BufferAvailable|hal.BufferFull|hal.BufferDataPID), h.sim.Load(in.BufferControl()))
	pkt, err = h.sim.In(2)
	require.NoError(t, err)
	assert.Equal(t, data[:2], pkt.Data)
	assert.Equal(t, uint8(1), pkt.PID)
}

func TestStartTransfer_SingleStore(t *testing.T) {
	h := newHarness(t, DefaultTable())
	in, ok := h.dev.Endpoint(0x82)
	require.True(t, ok)

	h.sim.EnableTrace(true)
	require.NoError(t, h.dev.StartTransfer(in, make([]byte, 64), 64))

	var stores []sim.Access
	for _, a := range h.sim.Trace() {
		if a.Target == "EP2_IN_BUF_CTRL" {
			stores = append(stores, a)
		}
	}
	require.Len(t, stores, 1, "buffer control written once")
	assert.Equal(t, sim.OpStore, stores[0].Op)
	assert.Equal(t, uint32(64|hal.BufferAvailable|hal.BufferFull), stores[0].Value)
}

func TestStartTransfer_Errors(t *testing.T) {
	cfg := config.Default().Device
	cfg.Endpoints = append(cfg.Endpoints, config.Endpoint{
		Address: 0x83, Type: "interrupt", MaxPacketSize: 8, Interval: 10,
	})
	table, err := TableFromConfig(cfg)
	require.NoError(t, err)

	c := sim.New()
	dev, err := New(c, table)
	require.NoError(t, err)

	in, ok := dev.Registry().Get(0x82)
	require.True(t, ok)
	assert.ErrorIs(t, dev.StartTransfer(in, nil, 0), pkg.ErrEndpointDisabled)

	dev.Reset()
	intr, ok := dev.Endpoint(0x83)
	require.True(t, ok)
	out, ok := dev.Endpoint(0x01)
	require.True(t, ok)

	tests := []struct {
		name string
		ep   *Endpoint
		buf  []byte
		n    int
		want error
	}{
		{"over 64 bytes", in, make([]byte, 65), 65, pkg.ErrTransferTooLarge},
		{"over max packet size", intr, make([]byte, 9), 9, pkg.ErrTransferTooLarge},
		{"negative", in, nil, -1, pkg.ErrTransferTooLarge},
		{"short buffer", in, make([]byte, 3), 4, pkg.ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, dev.StartTransfer(tt.ep, tt.buf, tt.n), tt.want)
			assert.Equal(t, uint8(0), tt.ep.NextPID(), "PID unchanged on error")
		})
	}

	assert.ErrorIs(t, dev.Receive(in), pkg.ErrInvalidEndpoint)
	assert.NoError(t, dev.Receive(out))
	assert.Equal(t, uint32(64|hal.BufferAvailable), c.Load(out.BufferControl()))
}

func TestSendZLP(t *testing.T) {
	h := newHarness(t, DefaultTable())
	in, ok := h.dev.Endpoint(0x82)
	require.True(t, ok)

	require.NoError(t, h.dev.SendZLP(in))
	pkt, err := h.sim.In(2)
	require.NoError(t, err)
	assert.Empty(t, pkt.Data)
	assert.Equal(t, 0, in.Len())
}
