package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, uint16(0x0110), table.Device.USBVersion)
	assert.Equal(t, uint8(64), table.Device.MaxPacketSize0)
	assert.Equal(t, uint8(1), table.Device.ManufacturerIndex)
	assert.Equal(t, uint8(2), table.Device.ProductIndex)
	assert.Equal(t, uint8(3), table.Device.SerialNumberIndex)
	assert.Equal(t, uint8(1), table.Device.NumConfigurations)

	assert.Equal(t, uint16(32), table.Configuration.TotalLength)
	assert.Equal(t, uint8(0xC0), table.Configuration.Attributes)
	assert.Equal(t, uint8(50), table.Configuration.MaxPower)
	assert.Equal(t, uint8(4), table.Configuration.ConfigurationIndex)

	assert.Equal(t, uint8(2), table.Interface.NumEndpoints)
	assert.Equal(t, uint8(usb.ClassVendor), table.Interface.InterfaceClass)
	assert.Equal(t, uint8(5), table.Interface.InterfaceIndex)

	addrs := make([]uint8, 0, len(table.Endpoints))
	for _, ep := range table.Endpoints {
		addrs = append(addrs, ep.EndpointAddress)
	}
	assert.Equal(t, []uint8{0x00, 0x80, 0x01, 0x82}, addrs)
}

func TestTableFromConfig_StringIndices(t *testing.T) {
	cfg := config.Default().Device
	cfg.Manufacturer = ""
	cfg.SerialNumber = ""
	cfg.SelfPowered = false

	table, err := TableFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), table.Device.ManufacturerIndex)
	assert.Equal(t, uint8(1), table.Device.ProductIndex)
	assert.Equal(t, uint8(0), table.Device.SerialNumberIndex)
	assert.Equal(t, uint8(2), table.Configuration.ConfigurationIndex)
	assert.Equal(t, uint8(3), table.Interface.InterfaceIndex)
	assert.Equal(t, []string{"Demo", "Simple", "Basic"}, table.Strings)
	assert.Equal(t, uint8(0x80), table.Configuration.Attributes)
}

func TestConfigurationBlob(t *testing.T) {
	table := DefaultTable()
	blob := table.ConfigurationBlob()
	require.Len(t, blob, int(table.Configuration.TotalLength))

	var eps []usb.EndpointDescriptor
	require.NoError(t, usb.WalkDescriptors(blob, func(descType uint8, desc []byte) error {
		if descType != usb.DescriptorTypeEndpoint {
			return nil
		}
		var ep usb.EndpointDescriptor
		if err := usb.ParseEndpointDescriptor(desc, &ep); err != nil {
			return err
		}
		eps = append(eps, ep)
		return nil
	}))
	assert.Equal(t, table.Endpoints[2:], eps)
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Table)
	}{
		{"total length", func(tb *Table) { tb.Configuration.TotalLength = 9 }},
		{"endpoint count", func(tb *Table) { tb.Interface.NumEndpoints = 3 }},
		{"packet size", func(tb *Table) { tb.Endpoints[2].MaxPacketSize = 128 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultTable()
			tt.modify(&table)
			assert.ErrorIs(t, table.Validate(), pkg.ErrInvalidParameter)
		})
	}
}

func TestStringDescriptors(t *testing.T) {
	table := DefaultTable()
	descs := table.stringDescriptors()
	require.Len(t, descs, 6)
	assert.Equal(t, []byte{4, 3, 0x09, 0x04}, descs[0])

	s, err := usb.ParseStringDescriptor(descs[1])
	require.NoError(t, err)
	assert.Equal(t, "PicoUSB", s)
}
