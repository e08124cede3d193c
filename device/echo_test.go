package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

func TestEcho(t *testing.T) {
	h := newHarness(t, DefaultTable())
	h.configure()

	out, ok := h.dev.Endpoint(0x01)
	require.True(t, ok)

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(0xA0 + i)
	}

	for round := 0; round < 3; round++ {
		pid := uint8(round % 2)
		require.NoError(t, h.sim.Out(1, pid, payload))
		assert.Equal(t, 20, out.Len())

		// Not re-armed until the echo is collected.
		assert.ErrorIs(t, h.sim.Out(1, pid^1, payload), pkg.ErrNAK)

		pkt, err := h.sim.In(2)
		require.NoError(t, err)
		assert.Equal(t, payload, pkt.Data)
		assert.Equal(t, pid, pkt.PID)

		want := uint32(64 | hal.BufferAvailable)
		if pid == 0 {
			want |= hal.BufferDataPID
		}
		assert.Equal(t, want, h.sim.Load(out.BufferControl()), "OUT re-armed for 64 bytes")
	}
	assert.Empty(t, h.faults)
}

func TestEcho_DataToggleMismatch(t *testing.T) {
	h := newHarness(t, DefaultTable())
	h.configure()

	assert.ErrorIs(t, h.sim.Out(1, 1, []byte{1}), pkg.ErrDataSequence)
	assert.NoError(t, h.sim.Out(1, 0, []byte{1}))
}

func TestDiscard(t *testing.T) {
	h := newHarness(t, DefaultTable())
	require.NoError(t, h.dev.SetHandler(0x01, Discard{}))
	h.configure()

	for pid := uint8(0); pid < 4; pid++ {
		require.NoError(t, h.sim.Out(1, pid%2, []byte{pid}))
	}
	_, err := h.sim.In(2)
	assert.ErrorIs(t, err, pkg.ErrNAK)
}
