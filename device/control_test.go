package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

func tableWithProduct(t *testing.T, product string) Table {
	t.Helper()
	cfg := config.Default().Device
	cfg.Product = product
	table, err := TableFromConfig(cfg)
	require.NoError(t, err)
	return table
}

func TestGetConfigurationDescriptor(t *testing.T) {
	h := newHarness(t, DefaultTable())

	got := h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeConfiguration, 0, 0, 9))
	require.Len(t, got, usb.ConfigurationDescriptorSize)
	var cd usb.ConfigurationDescriptor
	require.NoError(t, usb.ParseConfigurationDescriptor(got, &cd))
	assert.Equal(t, uint16(32), cd.TotalLength)

	got = h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeConfiguration, 0, 0, 255))
	require.Len(t, got, 32)
	var types []uint8
	require.NoError(t, usb.WalkDescriptors(got, func(descType uint8, _ []byte) error {
		types = append(types, descType)
		return nil
	}))
	assert.Equal(t, []uint8{
		usb.DescriptorTypeConfiguration,
		usb.DescriptorTypeInterface,
		usb.DescriptorTypeEndpoint,
		usb.DescriptorTypeEndpoint,
	}, types)
}

func TestGetStringDescriptor(t *testing.T) {
	h := newHarness(t, DefaultTable())

	got := h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeString, 0, 0, 255))
	assert.Equal(t, []byte{4, usb.DescriptorTypeString, 0x09, 0x04}, got)

	tests := []struct {
		index uint8
		want  string
	}{
		{1, "PicoUSB"},
		{2, "Demo"},
		{3, "12345"},
		{4, "Simple"},
		{5, "Basic"},
	}
	for _, tt := range tests {
		got := h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeString, tt.index, usb.LangIDUSEnglish, 255))
		s, err := usb.ParseStringDescriptor(got)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s, "string %d", tt.index)
	}

	// Truncated to wLength.
	got = h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeString, 1, usb.LangIDUSEnglish, 2))
	assert.Equal(t, []byte{16, usb.DescriptorTypeString}, got)
}

func TestMultiPacketDataStage(t *testing.T) {
	tests := []struct {
		name    string
		product string
		length  uint16
		packets []int
	}{
		{"short", "Demo", 255, []int{10}},
		{"two packets", strings.Repeat("x", 40), 255, []int{64, 18}},
		{"exact multiple adds ZLP", strings.Repeat("x", 31), 255, []int{64, 0}},
		{"exact wLength has no ZLP", strings.Repeat("x", 31), 64, []int{64}},
		{"truncated", strings.Repeat("x", 40), 70, []int{64, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tableWithProduct(t, tt.product))
			require.NoError(t, h.sim.SendSetup(
				usb.GetDescriptorSetup(usb.DescriptorTypeString, 2, usb.LangIDUSEnglish, tt.length)))

			var sizes []int
			pid := uint8(1)
			for range tt.packets {
				pkt, err := h.sim.In(0)
				require.NoError(t, err)
				assert.Equal(t, pid, pkt.PID)
				pid ^= 1
				sizes = append(sizes, len(pkt.Data))
			}
			assert.Equal(t, tt.packets, sizes)

			_, err := h.sim.In(0)
			assert.ErrorIs(t, err, pkg.ErrNAK, "no packet after the data stage")
			require.NoError(t, h.sim.Out(0, 1, nil))
			assert.Equal(t, stageIdle, h.dev.ctl.stage)
		})
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t, DefaultTable())

	dev := h.controlRead(usb.GetStatusSetup(usb.RequestRecipientDevice, 0))
	assert.Equal(t, []byte{1, 0}, dev, "self-powered")

	h.controlWrite(usb.FeatureSetup(true, usb.RequestRecipientDevice, usb.FeatureDeviceRemoteWakeup, 0))
	dev = h.controlRead(usb.GetStatusSetup(usb.RequestRecipientDevice, 0))
	assert.Equal(t, []byte{3, 0}, dev)

	h.configure()
	itf := h.controlRead(usb.GetStatusSetup(usb.RequestRecipientInterface, 0))
	assert.Equal(t, []byte{0, 0}, itf)
	ep := h.controlRead(usb.GetStatusSetup(usb.RequestRecipientEndpoint, 0x82))
	assert.Equal(t, []byte{0, 0}, ep)
}

func TestEndpointHalt(t *testing.T) {
	h := newHarness(t, DefaultTable())
	h.configure()

	h.controlWrite(usb.FeatureSetup(true, usb.RequestRecipientEndpoint, usb.FeatureEndpointHalt, 0x82))
	assert.Equal(t, []byte{1, 0}, h.controlRead(usb.GetStatusSetup(usb.RequestRecipientEndpoint, 0x82)))
	_, err := h.sim.In(2)
	assert.ErrorIs(t, err, pkg.ErrStall)

	h.controlWrite(usb.FeatureSetup(false, usb.RequestRecipientEndpoint, usb.FeatureEndpointHalt, 0x82))
	assert.Equal(t, []byte{0, 0}, h.controlRead(usb.GetStatusSetup(usb.RequestRecipientEndpoint, 0x82)))
	_, err = h.sim.In(2)
	assert.ErrorIs(t, err, pkg.ErrNAK)

	// Halting the OUT endpoint and clearing it re-arms it at DATA0.
	h.controlWrite(usb.FeatureSetup(true, usb.RequestRecipientEndpoint, usb.FeatureEndpointHalt, 0x01))
	assert.ErrorIs(t, h.sim.Out(1, 0, []byte{1}), pkg.ErrStall)
	h.controlWrite(usb.FeatureSetup(false, usb.RequestRecipientEndpoint, usb.FeatureEndpointHalt, 0x01))
	assert.NoError(t, h.sim.Out(1, 0, []byte{1}))
}

func TestInterfaceRequests(t *testing.T) {
	h := newHarness(t, DefaultTable())
	h.configure()

	got := h.controlRead(usb.SetupPacket{
		RequestType: usb.RequestDirectionIn | usb.RequestRecipientInterface,
		Request:     usb.RequestGetInterface,
		Length:      1,
	})
	assert.Equal(t, []byte{0}, got)

	h.controlWrite(usb.SetupPacket{
		RequestType: usb.RequestRecipientInterface,
		Request:     usb.RequestSetInterface,
	})
}

func TestUnsupportedRequest(t *testing.T) {
	vendorIn := usb.SetupPacket{
		RequestType: usb.RequestDirectionIn | usb.RequestTypeVendor,
		Request:     0x42,
		Length:      4,
	}

	t.Run("acknowledged", func(t *testing.T) {
		h := newHarness(t, DefaultTable())
		got := h.controlRead(vendorIn)
		assert.Empty(t, got)
		assert.Empty(t, h.faults)
	})

	t.Run("strict stalls", func(t *testing.T) {
		h := newHarness(t, DefaultTable())
		h.dev.SetStrictRequests(true)

		require.NoError(t, h.sim.SendSetup(vendorIn))
		_, err := h.sim.In(0)
		assert.ErrorIs(t, err, pkg.ErrStall)
		assert.ErrorIs(t, h.sim.Out(0, 1, nil), pkg.ErrStall)

		// The next SETUP clears the stall.
		got := h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, 18))
		assert.Len(t, got, 18)
	})

	t.Run("strict rejects bad string index", func(t *testing.T) {
		h := newHarness(t, DefaultTable())
		h.dev.SetStrictRequests(true)
		require.NoError(t, h.sim.SendSetup(usb.GetDescriptorSetup(usb.DescriptorTypeString, 9, 0, 255)))
		_, err := h.sim.In(0)
		assert.ErrorIs(t, err, pkg.ErrStall)
	})

	t.Run("strict rejects unknown configuration", func(t *testing.T) {
		h := newHarness(t, DefaultTable())
		h.dev.SetStrictRequests(true)
		require.NoError(t, h.sim.SendSetup(usb.SetConfigurationSetup(2)))
		_, err := h.sim.In(0)
		assert.ErrorIs(t, err, pkg.ErrStall)
		assert.False(t, h.dev.Configured())
	})
}

func TestControlWriteDataStage(t *testing.T) {
	h := newHarness(t, DefaultTable())
	payload := make([]byte, 70)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, h.sim.SendSetup(usb.SetupPacket{
		RequestType: usb.RequestTypeVendor,
		Request:     0x01,
		Length:      uint16(len(payload)),
	}))
	require.NoError(t, h.sim.Out(0, 1, payload[:64]))
	require.NoError(t, h.sim.Out(0, 0, payload[64:]))

	pkt, err := h.sim.In(0)
	require.NoError(t, err)
	assert.Empty(t, pkt.Data)
	assert.Equal(t, uint8(1), pkt.PID)
	assert.Equal(t, payload, h.dev.ControlData())
}

func TestSetupAbortsTransfer(t *testing.T) {
	h := newHarness(t, tableWithProduct(t, strings.Repeat("x", 40)))

	require.NoError(t, h.sim.SendSetup(usb.GetDescriptorSetup(usb.DescriptorTypeString, 2, 0, 255)))
	pkt, err := h.sim.In(0)
	require.NoError(t, err)
	require.Len(t, pkt.Data, 64)

	// A new SETUP mid-transfer restarts at DATA1.
	got := h.controlRead(usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, 18))
	assert.Len(t, got, 18)
	assert.Empty(t, h.faults)
}
