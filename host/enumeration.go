package host

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// maxStringDescriptor is the wLength used for string descriptors.
const maxStringDescriptor = 255

// attach records the newly connected device and resets the bus.
// Enumeration starts from the task loop once the reset has finished.
func (h *Host) attach(speed hal.Speed) {
	d := &Device{Speed: speed, maxPacket0: 8, state: EnumBusReset}
	h.dev = d
	pkg.LogInfo(pkg.ComponentHost, "connected", "speed", speed)
	h.bus.SetBits(hal.SIECtrl, hal.SIECtrlResetBus)
}

// checkBusReset starts enumeration when the controller has cleared
// SIE_CTRL.RESET_BUS. It reports whether enumeration was started.
func (h *Host) checkBusReset() bool {
	d := h.dev
	if d == nil || d.state != EnumBusReset {
		return false
	}
	if h.bus.Get(hal.SIECtrl)&hal.SIECtrlResetBus != 0 {
		return false
	}
	d.state = EnumDeviceHeader
	h.enumerate(d)
	return true
}

// enumerate issues the request for the current enumeration state.
func (h *Host) enumerate(d *Device) {
	var setup usb.SetupPacket
	switch d.state {
	case EnumDeviceHeader:
		setup = usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, 8)
	case EnumSetAddress:
		setup = usb.SetAddressSetup(h.opts.Address)
	case EnumDevice:
		setup = usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, usb.DeviceDescriptorSize)
	case EnumConfigHeader:
		setup = usb.GetDescriptorSetup(usb.DescriptorTypeConfiguration, 0, 0, usb.ConfigurationDescriptorSize)
	case EnumConfiguration:
		setup = usb.GetDescriptorSetup(usb.DescriptorTypeConfiguration, 0, 0, d.Configuration.TotalLength)
	case EnumStrings:
		index, ok := h.nextString(d)
		if !ok {
			d.state = EnumSetConfiguration
			h.enumerate(d)
			return
		}
		setup = usb.GetDescriptorSetup(usb.DescriptorTypeString, index, d.LangID, maxStringDescriptor)
	case EnumSetConfiguration:
		setup = usb.SetConfigurationSetup(d.Configuration.ConfigurationValue)
	default:
		return
	}
	pkg.LogDebug(pkg.ComponentHost, "enumerate", "state", d.state, "request", setup.String())
	err := h.Control(d.Address, setup, d.buf[:setup.Length], func(r Result) {
		h.enumerated(d, r)
	})
	if err != nil {
		h.enumFailed(d, err)
	}
}

// nextString returns the index of the next string descriptor to read,
// skipping strings the device does not have.
func (h *Host) nextString(d *Device) (uint8, bool) {
	for ; d.strStep <= 3; d.strStep++ {
		var index uint8
		switch d.strStep {
		case 0:
			return 0, true
		case 1:
			index = d.Descriptor.ManufacturerIndex
		case 2:
			index = d.Descriptor.ProductIndex
		case 3:
			index = d.Descriptor.SerialNumberIndex
		}
		if index != 0 && d.LangID != 0 {
			return index, true
		}
	}
	return 0, false
}

// enumerated handles the completion of one enumeration request.
func (h *Host) enumerated(d *Device, r Result) {
	if h.dev != d {
		return
	}
	if r.Status != pkg.TransferStatusSuccess {
		if r.Status == pkg.TransferStatusCancelled {
			return
		}
		if d.state == EnumStrings {
			pkg.LogWarn(pkg.ComponentHost, "string descriptor", "step", d.strStep, "status", r.Status)
			d.strStep++
			h.enumerate(d)
			return
		}
		h.enumFailed(d, r.Err())
		return
	}

	var err error
	switch d.state {
	case EnumDeviceHeader:
		if r.Len() < 8 {
			err = pkg.ErrDescriptorTooShort
			break
		}
		switch mps := r.Data[7]; mps {
		case 8, 16, 32, 64:
			d.maxPacket0 = mps
		default:
			err = fmt.Errorf("%w: bMaxPacketSize0 %d", pkg.ErrInvalidParameter, mps)
		}

	case EnumSetAddress:
		d.Address = h.opts.Address

	case EnumDevice:
		err = usb.ParseDeviceDescriptor(r.Data, &d.Descriptor)

	case EnumConfigHeader:
		err = usb.ParseConfigurationDescriptor(r.Data, &d.Configuration)
		if err == nil && (d.Configuration.TotalLength < usb.ConfigurationDescriptorSize ||
			d.Configuration.TotalLength > MaxConfigurationSize) {
			err = fmt.Errorf("%w: wTotalLength %d", pkg.ErrInvalidParameter, d.Configuration.TotalLength)
		}

	case EnumConfiguration:
		if r.Len() < int(d.Configuration.TotalLength) {
			err = pkg.ErrDescriptorTooShort
			break
		}
		err = h.parseConfiguration(d, r.Data)

	case EnumStrings:
		h.storeString(d, r.Data)
		d.strStep++
		h.enumerate(d)
		return

	case EnumSetConfiguration:
		for _, ep := range d.endpoints {
			ep.pid = 0
		}
		d.state = EnumConfigured
		pkg.LogInfo(pkg.ComponentHost, "configured", "device", d.String(), "product", d.Product)
		if h.onConfigured != nil {
			h.onConfigured(d)
		}
		return
	}
	if err != nil {
		h.enumFailed(d, err)
		return
	}
	d.state++
	h.enumerate(d)
}

// parseConfiguration records the interfaces of the configuration and
// allocates host endpoints for the default alternate setting.
func (h *Host) parseConfiguration(d *Device, blob []byte) error {
	var alt uint8
	return usb.WalkDescriptors(blob, func(descType uint8, desc []byte) error {
		switch descType {
		case usb.DescriptorTypeInterface:
			var i usb.InterfaceDescriptor
			if err := usb.ParseInterfaceDescriptor(desc, &i); err != nil {
				return err
			}
			alt = i.AlternateSetting
			d.Interfaces = append(d.Interfaces, i)
		case usb.DescriptorTypeEndpoint:
			var e usb.EndpointDescriptor
			if err := usb.ParseEndpointDescriptor(desc, &e); err != nil {
				return err
			}
			if alt != 0 {
				return nil
			}
			if e.TransferType() == usb.TransferTypeIsochronous {
				pkg.LogWarn(pkg.ComponentHost, "isochronous endpoint ignored", "address", e.EndpointAddress)
				return nil
			}
			if _, err := h.addEndpoint(d, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *Host) storeString(d *Device, data []byte) {
	if d.strStep == 0 {
		ids, err := usb.ParseLanguageDescriptor(data)
		if err != nil || len(ids) == 0 {
			pkg.LogWarn(pkg.ComponentHost, "no language IDs", "error", err)
			d.strStep = 3
			return
		}
		d.LangID = ids[0]
		for _, id := range ids {
			if id == usb.LangIDUSEnglish {
				d.LangID = id
			}
		}
		return
	}
	s, err := usb.ParseStringDescriptor(data)
	if err != nil {
		pkg.LogWarn(pkg.ComponentHost, "string descriptor", "step", d.strStep, "error", err)
		return
	}
	switch d.strStep {
	case 1:
		d.Manufacturer = s
	case 2:
		d.Product = s
	case 3:
		d.SerialNumber = s
	}
}

func (h *Host) enumFailed(d *Device, err error) {
	prev := d.state
	d.state = EnumFailed
	err = fmt.Errorf("%w: %s: %w", pkg.ErrEnumerationFailed, prev, err)
	pkg.LogError(pkg.ComponentHost, "enumeration", "device", d.String(), "error", err)
	if h.onError != nil {
		h.onError(err)
	}
}

