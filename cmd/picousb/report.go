package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/ardnew/picousb/hal/sim"
	"github.com/ardnew/picousb/host"
	"github.com/ardnew/picousb/pkg/usb"
	"github.com/ardnew/picousb/pkg/usbid"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(false)
	return t
}

func transferTypeName(t uint8) string {
	switch t {
	case usb.TransferTypeControl:
		return "control"
	case usb.TransferTypeIsochronous:
		return "isochronous"
	case usb.TransferTypeBulk:
		return "bulk"
	case usb.TransferTypeInterrupt:
		return "interrupt"
	}
	return strconv.Itoa(int(t))
}

func bcd(v uint16) string {
	return fmt.Sprintf("%x.%02x", v>>8, v&0xFF)
}

// named appends the database name of an identifier, if there is one.
func named(id, name string) string {
	if name == "" {
		return id
	}
	return id + " (" + name + ")"
}

// printDevice renders what the host learned during enumeration. ids may
// be nil.
func printDevice(w io.Writer, d *host.Device, ids *usbid.Database) {
	vid, pid := d.Descriptor.VendorID, d.Descriptor.ProductID
	class := uint8(0)
	if len(d.Interfaces) > 0 {
		class = d.Interfaces[0].InterfaceClass
	}
	t := newTable(w, "Field", "Value")
	t.AppendBulk([][]string{
		{"Address", strconv.Itoa(int(d.Address))},
		{"Speed", d.Speed.String()},
		{"State", d.State().String()},
		{"USB", bcd(d.Descriptor.USBVersion)},
		{"Vendor", named(fmt.Sprintf("%04x", vid), ids.Vendor(vid))},
		{"Product ID", named(fmt.Sprintf("%04x", pid), ids.Product(vid, pid))},
		{"Device version", bcd(d.Descriptor.DeviceVersion)},
		{"Max packet (EP0)", strconv.Itoa(int(d.MaxPacketSize0()))},
		{"Manufacturer", d.Manufacturer},
		{"Product", d.Product},
		{"Serial number", d.SerialNumber},
		{"Language", fmt.Sprintf("0x%04x", d.LangID)},
		{"Configuration", strconv.Itoa(int(d.Configuration.ConfigurationValue))},
		{"Total length", strconv.Itoa(int(d.Configuration.TotalLength))},
		{"Interfaces", strconv.Itoa(len(d.Interfaces))},
		{"Interface class", named(fmt.Sprintf("0x%02x", class), ids.Class(class))},
	})
	t.Render()

	if eps := d.Endpoints(); len(eps) > 0 {
		fmt.Fprintln(w)
		printEndpoints(w, eps)
	}
}

func printEndpoints(w io.Writer, eps []*host.Endpoint) {
	t := newTable(w, "Endpoint", "Type", "Max packet", "Interval", "Slot")
	for _, ep := range eps {
		desc := ep.Descriptor()
		slot := "EPX"
		if ep.Slot() > 0 {
			slot = strconv.Itoa(ep.Slot())
		}
		t.Append([]string{
			fmt.Sprintf("0x%02x", ep.Address()),
			transferTypeName(ep.TransferType()),
			strconv.Itoa(int(ep.MaxPacketSize())),
			strconv.Itoa(int(desc.Interval)),
			slot,
		})
	}
	t.Render()
}

// printTrace renders the recorded controller accesses.
func printTrace(w io.Writer, title string, trace []sim.Access) {
	fmt.Fprintf(w, "\n%s: %d accesses\n", title, len(trace))
	t := newTable(w, "#", "Op", "Target", "Value", "Masked")
	for i, a := range trace {
		masked := ""
		if a.Masked {
			masked = "yes"
		}
		t.Append([]string{
			strconv.Itoa(i),
			string(a.Op),
			a.Target,
			fmt.Sprintf("0x%08x", a.Value),
			masked,
		})
	}
	t.Render()
}
