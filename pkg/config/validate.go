package config

import (
	"errors"
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// maxStringChars is the longest ASCII string a descriptor can carry.
const maxStringChars = 126

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{pkg.ErrInvalidParameter}, args...)...))
	}

	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if err := c.HALClocks().Validate(); err != nil {
		add("%v", err)
	}

	d := c.Device
	switch d.MaxPacketSize0 {
	case 8, 16, 32, 64:
	default:
		add("device.max_packet_size0 %d not one of 8, 16, 32, 64", d.MaxPacketSize0)
	}
	for name, s := range map[string]string{
		"manufacturer":  d.Manufacturer,
		"product":       d.Product,
		"serial_number": d.SerialNumber,
		"configuration": d.Configuration,
		"interface":     d.Interface,
	} {
		if len(s) > maxStringChars {
			add("device.%s longer than %d characters", name, maxStringChars)
		}
	}
	if d.MaxPowerMA < 0 || d.MaxPowerMA > 500 {
		add("device.max_power_ma %d outside 0-500", d.MaxPowerMA)
	}
	seen := map[uint8]bool{}
	for i, ep := range d.Endpoints {
		if _, err := ep.TransferType(); err != nil {
			add("device.endpoint[%d]: %v", i, err)
		}
		num := ep.Address & usb.EndpointNumberMask
		if num == 0 || ep.Address&^(usb.EndpointDirIn|usb.EndpointNumberMask) != 0 {
			add("device.endpoint[%d]: bad address 0x%02x", i, ep.Address)
		}
		if seen[ep.Address] {
			add("device.endpoint[%d]: duplicate address 0x%02x", i, ep.Address)
		}
		seen[ep.Address] = true
		if ep.MaxPacketSize == 0 || ep.MaxPacketSize > hal.MaxPacketSize {
			add("device.endpoint[%d]: max_packet_size %d outside 1-%d", i, ep.MaxPacketSize, hal.MaxPacketSize)
		}
	}
	if len(d.Endpoints) > hal.DataBufferSlots {
		add("device: %d endpoints exceed %d buffers", len(d.Endpoints), hal.DataBufferSlots)
	}

	h := c.Host
	if h.Address == 0 || h.Address > 127 {
		add("host.address %d outside 1-127", h.Address)
	}
	if h.QueueDepth < 2 || h.QueueDepth&(h.QueueDepth-1) != 0 {
		add("host.queue_depth %d not a power of two >= 2", h.QueueDepth)
	}
	if h.TransferTimeout.Duration < 0 {
		add("host.transfer_timeout %s is negative", h.TransferTimeout)
	}
	return errors.Join(errs...)
}

// TransferType returns the bmAttributes transfer type of the endpoint.
func (e Endpoint) TransferType() (uint8, error) {
	switch e.Type {
	case "bulk":
		return usb.TransferTypeBulk, nil
	case "interrupt":
		return usb.TransferTypeInterrupt, nil
	}
	return 0, fmt.Errorf("%w: unsupported endpoint type %q", pkg.ErrInvalidParameter, e.Type)
}
