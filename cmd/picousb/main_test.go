package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
)

func TestEchoPair(t *testing.T) {
	tests := []struct {
		name    string
		eps     []config.Endpoint
		out, in uint8
		wantErr bool
	}{
		{
			name: "default",
			eps:  config.Default().Device.Endpoints,
			out:  0x01, in: 0x82,
		},
		{
			name: "skips interrupt endpoints",
			eps: []config.Endpoint{
				{Address: 0x81, Type: "interrupt", MaxPacketSize: 8, Interval: 10},
				{Address: 0x03, Type: "bulk", MaxPacketSize: 64},
				{Address: 0x84, Type: "bulk", MaxPacketSize: 64},
			},
			out: 0x03, in: 0x84,
		},
		{
			name:    "no IN endpoint",
			eps:     []config.Endpoint{{Address: 0x01, Type: "bulk", MaxPacketSize: 64}},
			wantErr: true,
		},
		{
			name:    "bad type",
			eps:     []config.Endpoint{{Address: 0x01, Type: "isochronous", MaxPacketSize: 64}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, in, err := echoPair(config.Device{Endpoints: tt.eps})
			if tt.wantErr {
				assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.in, in)
		})
	}
}

func TestRig(t *testing.T) {
	for _, async := range []bool{false, true} {
		name := "sync"
		if async {
			name = "async"
		}
		t.Run(name, func(t *testing.T) {
			r, err := newRig(config.Default(), false)
			require.NoError(t, err)

			d, err := r.enumerate(context.Background(), async)
			require.NoError(t, err)
			require.True(t, d.Configured())
			assert.Equal(t, "Demo", d.Product)
			assert.True(t, r.dev.Configured())

			out, ok := d.Endpoint(0x01)
			require.True(t, ok)
			in, ok := d.Endpoint(0x82)
			require.True(t, ok)

			for _, msg := range []string{"ping", "pong", ""} {
				got, err := r.echo(context.Background(), async, out, in, []byte(msg))
				require.NoError(t, err)
				assert.Equal(t, msg, string(got))
			}
			assert.Equal(t, uint8(1), out.NextPID())
			assert.Equal(t, uint8(1), in.NextPID())
		})
	}
}

func TestRig_Trace(t *testing.T) {
	r, err := newRig(config.Default(), true)
	require.NoError(t, err)
	_, err = r.enumerate(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, r.hostSim.Trace())
}

func TestRig_Cancelled(t *testing.T) {
	r, err := newRig(config.Default(), false)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.enumerate(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetup(t *testing.T) {
	require.NoError(t, newApp().Run([]string{"picousb",
		"--verbose", "--json", "--sys-clock", "133MHz", "--usb-clock", "48MHz", "config"}))
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, config.Frequency(133*physic.MegaHertz), cfg.Clocks.Sys)
	assert.Equal(t, config.Frequency(48*physic.MegaHertz), cfg.Clocks.USB)

	// Restore the quiet default for the tests that follow.
	require.NoError(t, newApp().Run([]string{"picousb", "config"}))
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestSetup_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[host]\naddress = 0\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"--config", filepath.Join(dir, "missing.toml")}},
		{"invalid file", []string{"--config", bad}},
		{"bad clock", []string{"--sys-clock", "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"picousb"}, tt.args...)
			assert.Error(t, newApp().Run(append(args, "config")))
		})
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "picousb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[device]
product = "Loopback"
max_packet_size0 = 8

[host]
address = 7
`), 0o600))
	ids := filepath.Join(dir, "usb.ids")
	require.NoError(t, os.WriteFile(ids, []byte("0000  Unknown\n\t0001  Demo\nC ff  Vendor Specific Class\n"), 0o600))
	cpu := filepath.Join(dir, "cpu.prof")

	tests := [][]string{
		{"device"},
		{"device", "--count", "1", "--payload", ""},
		{"--trace", "device"},
		{"host"},
		{"--cpuprofile", cpu, "host", "--usb-ids", ids},
		{"host", "--usb-ids", filepath.Join(dir, "missing.ids")},
		{"--config", path, "host", "--async"},
		{"loopback"},
		{"--config", path, "loopback", "--count", "3"},
		{"loopback", "--async", "--payload", strings.Repeat("x", 100)},
		{"--trace", "loopback"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			assert.NoError(t, newApp().Run(append([]string{"picousb"}, args...)))
		})
	}
	fi, err := os.Stat(cpu)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())
}

func TestOpenUSBIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usb.ids")
	require.NoError(t, os.WriteFile(path, []byte("2e8a  Raspberry Pi\n\t000a  Pico\n"), 0o600))

	db := openUSBIDs(path)
	require.NotNil(t, db)
	assert.Equal(t, "Pico", db.Product(0x2e8a, 0x000a))
	assert.Nil(t, openUSBIDs(path+".missing"))
	assert.Equal(t, "2e8a (Raspberry Pi)", named("2e8a", db.Vendor(0x2e8a)))
	assert.Equal(t, "ffff", named("ffff", db.Vendor(0xffff)))
}
