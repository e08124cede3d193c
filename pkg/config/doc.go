// Package config loads the picousb configuration from TOML.
//
// A file only needs the keys it changes; everything else comes from
// [Default]. Frequencies are written with units and durations in Go
// syntax:
//
//	[clocks]
//	sys = "125MHz"
//
//	[device]
//	vendor_id = 0xcafe
//	strict_requests = true
//
//	[[device.endpoint]]
//	address = 0x81
//	type = "interrupt"
//	max_packet_size = 8
//	interval = 10
//
//	[host]
//	transfer_timeout = "250ms"
package config
