package device

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

// Table is the static descriptor table of a single-configuration,
// single-interface device. Endpoints lists every endpoint in table order,
// starting with the two halves of endpoint 0.
type Table struct {
	Device        usb.DeviceDescriptor
	Configuration usb.ConfigurationDescriptor
	Interface     usb.InterfaceDescriptor
	Endpoints     []usb.EndpointDescriptor
	Strings       []string // string descriptor 1 is Strings[0]
	LangID        uint16
}

// DefaultTable returns the table built from the default configuration.
func DefaultTable() Table {
	t, err := TableFromConfig(config.Default().Device)
	if err != nil {
		panic(err)
	}
	return t
}

// TableFromConfig builds a descriptor table from the [device] section.
// String indices are assigned in the order manufacturer, product, serial
// number, configuration, interface; an empty string gets index 0.
func TableFromConfig(cfg config.Device) (Table, error) {
	t := Table{LangID: usb.LangIDUSEnglish}
	index := func(s string) uint8 {
		if s == "" {
			return 0
		}
		t.Strings = append(t.Strings, s)
		return uint8(len(t.Strings))
	}

	t.Device = usb.DeviceDescriptor{
		USBVersion:        cfg.USBVersion,
		DeviceClass:       usb.ClassPerInterface,
		MaxPacketSize0:    cfg.MaxPacketSize0,
		VendorID:          cfg.VendorID,
		ProductID:         cfg.ProductID,
		DeviceVersion:     cfg.DeviceVersion,
		ManufacturerIndex: index(cfg.Manufacturer),
		ProductIndex:      index(cfg.Product),
		SerialNumberIndex: index(cfg.SerialNumber),
		NumConfigurations: 1,
	}

	attrs := uint8(usb.ConfigAttrReserved)
	if cfg.SelfPowered {
		attrs |= usb.ConfigAttrSelfPowered
	}
	t.Configuration = usb.ConfigurationDescriptor{
		TotalLength: uint16(usb.ConfigurationDescriptorSize + usb.InterfaceDescriptorSize +
			usb.EndpointDescriptorSize*len(cfg.Endpoints)),
		NumInterfaces:      1,
		ConfigurationValue: 1,
		ConfigurationIndex: index(cfg.Configuration),
		Attributes:         attrs,
		MaxPower:           uint8(cfg.MaxPowerMA / 2),
	}
	t.Interface = usb.InterfaceDescriptor{
		NumEndpoints:   uint8(len(cfg.Endpoints)),
		InterfaceClass: cfg.InterfaceClass,
		InterfaceIndex: index(cfg.Interface),
	}

	t.Endpoints = append(t.Endpoints,
		usb.EndpointDescriptor{EndpointAddress: 0x00, Attributes: usb.TransferTypeControl, MaxPacketSize: uint16(cfg.MaxPacketSize0)},
		usb.EndpointDescriptor{EndpointAddress: 0x80, Attributes: usb.TransferTypeControl, MaxPacketSize: uint16(cfg.MaxPacketSize0)},
	)
	for _, ep := range cfg.Endpoints {
		xfer, err := ep.TransferType()
		if err != nil {
			return Table{}, fmt.Errorf("endpoint 0x%02x: %w", ep.Address, err)
		}
		t.Endpoints = append(t.Endpoints, usb.EndpointDescriptor{
			EndpointAddress: ep.Address,
			Attributes:      xfer,
			MaxPacketSize:   ep.MaxPacketSize,
			Interval:        ep.Interval,
		})
	}
	return t, t.Validate()
}

// Validate checks that the declared lengths match the table contents.
func (t *Table) Validate() error {
	n := 0
	for i := range t.Endpoints {
		ep := &t.Endpoints[i]
		if ep.MaxPacketSize == 0 || ep.MaxPacketSize > hal.MaxPacketSize {
			return fmt.Errorf("%w: endpoint 0x%02x max packet size %d",
				pkg.ErrInvalidParameter, ep.EndpointAddress, ep.MaxPacketSize)
		}
		if ep.TransferType() != usb.TransferTypeControl {
			n++
		}
	}
	if int(t.Interface.NumEndpoints) != n {
		return fmt.Errorf("%w: interface declares %d endpoints, table has %d",
			pkg.ErrInvalidParameter, t.Interface.NumEndpoints, n)
	}
	want := usb.ConfigurationDescriptorSize + usb.InterfaceDescriptorSize + usb.EndpointDescriptorSize*n
	if int(t.Configuration.TotalLength) != want {
		return fmt.Errorf("%w: wTotalLength %d, descriptors total %d",
			pkg.ErrInvalidParameter, t.Configuration.TotalLength, want)
	}
	return nil
}

// ConfigurationBlob returns the configuration descriptor followed by the
// interface descriptor and every non-control endpoint descriptor, in
// table order. Its length equals wTotalLength.
func (t *Table) ConfigurationBlob() []byte {
	blob := make([]byte, t.Configuration.TotalLength)
	n := t.Configuration.MarshalTo(blob)
	n += t.Interface.MarshalTo(blob[n:])
	for i := range t.Endpoints {
		if t.Endpoints[i].TransferType() == usb.TransferTypeControl {
			continue
		}
		n += t.Endpoints[i].MarshalTo(blob[n:])
	}
	return blob[:n]
}

// stringDescriptors encodes the language descriptor at index 0 followed
// by every string.
func (t *Table) stringDescriptors() [][]byte {
	out := make([][]byte, 1+len(t.Strings))
	var buf [255]byte
	n := usb.LanguageDescriptorTo(buf[:], t.LangID)
	out[0] = append([]byte(nil), buf[:n]...)
	for i, s := range t.Strings {
		n := usb.StringDescriptorTo(buf[:], s)
		out[i+1] = append([]byte(nil), buf[:n]...)
	}
	return out
}
