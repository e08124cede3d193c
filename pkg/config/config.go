package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// Config is the complete runtime configuration.
type Config struct {
	Log    Log    `toml:"log"`
	Clocks Clocks `toml:"clocks"`
	Device Device `toml:"device"`
	Host   Host   `toml:"host"`
}

// Log configures the shared logger.
type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Clocks are the two clock domains crossed by staged register writes.
type Clocks struct {
	Sys Frequency `toml:"sys"`
	USB Frequency `toml:"usb"`
}

// Device describes the descriptor table served in the device role.
type Device struct {
	USBVersion     uint16 `toml:"usb_version"`
	VendorID       uint16 `toml:"vendor_id"`
	ProductID      uint16 `toml:"product_id"`
	DeviceVersion  uint16 `toml:"device_version"`
	MaxPacketSize0 uint8  `toml:"max_packet_size0"`

	Manufacturer  string `toml:"manufacturer"`
	Product       string `toml:"product"`
	SerialNumber  string `toml:"serial_number"`
	Configuration string `toml:"configuration"`
	Interface     string `toml:"interface"`

	InterfaceClass uint8 `toml:"interface_class"`
	SelfPowered    bool  `toml:"self_powered"`
	MaxPowerMA     int   `toml:"max_power_ma"`

	// StrictRequests stalls endpoint 0 on unsupported requests instead of
	// acknowledging them with a zero-length packet.
	StrictRequests bool `toml:"strict_requests"`

	Endpoints []Endpoint `toml:"endpoint"`
}

// Endpoint is one data endpoint of the device role.
type Endpoint struct {
	Address       uint8  `toml:"address"` // bit 7 set for IN
	Type          string `toml:"type"`    // bulk, interrupt
	MaxPacketSize uint16 `toml:"max_packet_size"`
	Interval      uint8  `toml:"interval"`
}

// Host configures the host role.
type Host struct {
	Address         uint8    `toml:"address"`
	QueueDepth      int      `toml:"queue_depth"`
	TransferTimeout Duration `toml:"transfer_timeout"`
}

// Frequency is a physic.Frequency that reads and writes as text such as
// "133MHz".
type Frequency physic.Frequency

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frequency) UnmarshalText(b []byte) error {
	var v physic.Frequency
	if err := v.Set(string(b)); err != nil {
		return fmt.Errorf("frequency %q: %w", b, err)
	}
	*f = Frequency(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(physic.Frequency(f).String()), nil
}

// Duration is a time.Duration that reads and writes as text such as "1s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration: a vendor-class device with
// one bulk OUT and one bulk IN endpoint, and a host that assigns address 1.
func Default() Config {
	return Config{
		Log: Log{Level: "warn", Format: "text"},
		Clocks: Clocks{
			Sys: Frequency(hal.DefaultClocks.Sys),
			USB: Frequency(hal.DefaultClocks.USB),
		},
		Device: Device{
			USBVersion:     0x0110,
			VendorID:       0x0000,
			ProductID:      0x0001,
			DeviceVersion:  0x0001,
			MaxPacketSize0: 64,
			Manufacturer:   "PicoUSB",
			Product:        "Demo",
			SerialNumber:   "12345",
			Configuration:  "Simple",
			Interface:      "Basic",
			InterfaceClass: 0xFF,
			SelfPowered:    true,
			MaxPowerMA:     100,
			Endpoints: []Endpoint{
				{Address: 0x01, Type: "bulk", MaxPacketSize: 64},
				{Address: 0x82, Type: "bulk", MaxPacketSize: 64},
			},
		},
		Host: Host{
			Address:         1,
			QueueDepth:      64,
			TransferTimeout: Duration{time.Second},
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys the file sets
// override the defaults; an endpoint list replaces the default list.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes TOML from r on top of the defaults and validates the result.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", pkg.ErrInvalidParameter, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	pkg.LogDebug(pkg.ComponentConfig, "config loaded", "keys", len(md.Keys()))
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// HALClocks returns the clock configuration in the form hal uses.
func (c Config) HALClocks() hal.Clocks {
	return hal.Clocks{Sys: physic.Frequency(c.Clocks.Sys), USB: physic.Frequency(c.Clocks.USB)}
}

// ApplyLogging configures the shared logger from the [log] section.
func (c Config) ApplyLogging(w io.Writer) error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	pkg.SetLogOutput(w, format)
	return nil
}
