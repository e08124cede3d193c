// Package device implements the device role of the RP2040 USB transfer
// engine: a single-configuration device that answers the standard
// control requests on endpoint 0 and moves data on bulk and interrupt
// endpoints through the controller's single-buffered DPRAM buffers.
//
// The engine is interrupt driven. Install [Device.HandleInterrupt] as the
// USBCTRL_IRQ handler and call [Device.Reset] to connect:
//
//	dev, err := device.New(bus, device.DefaultTable())
//	if err != nil {
//		return err
//	}
//	dev.Echo(0x01, 0x82)
//	bus.SetInterruptHandler(dev.HandleInterrupt)
//	dev.Reset()
//	dev.WaitConfigured(ctx)
//
// Each data endpoint is served by a [Handler]. [Echo] returns every packet
// received on an OUT endpoint through an IN endpoint; [Discard] drains an
// OUT endpoint. Endpoints start with Discard.
//
// Descriptor tables are built from the [device] section of the
// configuration file by [TableFromConfig]; [DefaultTable] describes a
// vendor-class device with one bulk OUT and one bulk IN endpoint.
package device
