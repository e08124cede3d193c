package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/picousb/pkg"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint16(0x0110), cfg.Device.USBVersion)
	assert.Equal(t, "PicoUSB", cfg.Device.Manufacturer)
	assert.Len(t, cfg.Device.Endpoints, 2)
	assert.Equal(t, uint32(3), cfg.HALClocks().AvailableDelay())
	assert.Equal(t, uint32(6), cfg.HALClocks().StartDelay())
}

func TestRead_Overrides(t *testing.T) {
	src := `
[log]
level = "debug"

[clocks]
sys = "125MHz"

[device]
vendor_id = 0xcafe
product = "Widget"
strict_requests = true

[[device.endpoint]]
address = 0x81
type = "interrupt"
max_packet_size = 8
interval = 10

[host]
address = 9
transfer_timeout = "250ms"
`
	cfg, err := Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, Frequency(125*physic.MegaHertz), cfg.Clocks.Sys)
	assert.Equal(t, Frequency(48*physic.MegaHertz), cfg.Clocks.USB)
	assert.Equal(t, uint16(0xCAFE), cfg.Device.VendorID)
	assert.Equal(t, "Widget", cfg.Device.Product)
	assert.Equal(t, "PicoUSB", cfg.Device.Manufacturer)
	assert.True(t, cfg.Device.StrictRequests)
	require.Len(t, cfg.Device.Endpoints, 1)
	assert.Equal(t, Endpoint{Address: 0x81, Type: "interrupt", MaxPacketSize: 8, Interval: 10}, cfg.Device.Endpoints[0])
	assert.Equal(t, uint8(9), cfg.Host.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Host.TransferTimeout.Duration)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown key", "[device]\ncolour = 1\n", "unknown keys device.colour"},
		{"bad frequency", "[clocks]\nsys = \"fast\"\n", "frequency"},
		{"bad duration", "[host]\ntransfer_timeout = \"soon\"\n", "soon"},
		{"bad address", "[host]\naddress = 0\n", "host.address"},
		{"queue depth", "[host]\nqueue_depth = 48\n", "queue_depth"},
		{"ep0 packet size", "[device]\nmax_packet_size0 = 12\n", "max_packet_size0"},
		{"endpoint type", "[[device.endpoint]]\naddress = 1\ntype = \"iso\"\nmax_packet_size = 64\n", "unsupported endpoint type"},
		{"endpoint zero", "[[device.endpoint]]\naddress = 0x80\ntype = \"bulk\"\nmax_packet_size = 64\n", "bad address"},
		{"endpoint size", "[[device.endpoint]]\naddress = 1\ntype = \"bulk\"\nmax_packet_size = 512\n", "max_packet_size 512"},
		{"slow clock", "[clocks]\nsys = \"12MHz\"\n", "slower than"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_Duplicates(t *testing.T) {
	cfg := Default()
	cfg.Device.Endpoints = append(cfg.Device.Endpoints, cfg.Device.Endpoints[0])

	err := cfg.Validate()
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "duplicate address 0x01")
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Default()))

	out := buf.String()
	assert.Contains(t, out, `sys = "133MHz"`)
	assert.Contains(t, out, `transfer_timeout = "1s"`)
	assert.Contains(t, out, "[[device.endpoint]]")

	cfg, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyLogging(t *testing.T) {
	original := pkg.GetLogLevel()
	defer pkg.SetLogLevel(original)

	cfg := Default()
	cfg.Log = Log{Level: "info", Format: "json"}

	var buf bytes.Buffer
	require.NoError(t, cfg.ApplyLogging(&buf))
	defer pkg.SetLogOutput(&bytes.Buffer{}, pkg.LogFormatText)

	assert.Equal(t, slog.LevelInfo, pkg.GetLogLevel())
	pkg.LogInfo(pkg.ComponentConfig, "applied")
	assert.Contains(t, buf.String(), `"component":"config"`)
}
