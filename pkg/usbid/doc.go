// Package usbid looks up vendor, product and class names in the usb.ids
// database distributed with most Linux systems.
//
// The host role only sees numbers on the bus; the command-line tool uses
// this package to annotate an enumerated device:
//
//	db, err := usbid.Open(usbid.DefaultPaths...)
//	if err == nil {
//		fmt.Println(db.Vendor(0x2e8a), db.Product(0x2e8a, 0x000a))
//	}
//
// Lookups on a nil *Database return empty strings, so callers can carry
// on without a database.
package usbid
