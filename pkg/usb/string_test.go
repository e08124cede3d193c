package usb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/picousb/pkg"
)

func TestStringDescriptorTo_ASCII(t *testing.T) {
	for _, s := range []string{"", "P", "PicoUSB", "Demo", "12345", "Simple", "Basic"} {
		t.Run(s, func(t *testing.T) {
			var buf [255]byte
			n := StringDescriptorTo(buf[:], s)

			require.Equal(t, 2+2*len(s), n)
			assert.Equal(t, StringDescriptorSize(s), n)
			assert.Equal(t, uint8(n), buf[0])
			assert.Equal(t, uint8(DescriptorTypeString), buf[1])
			for i := 0; i < len(s); i++ {
				assert.Equal(t, s[i], buf[2+2*i])
				assert.Zero(t, buf[3+2*i])
			}
		})
	}
}

func TestStringDescriptorTo_BufferTooSmall(t *testing.T) {
	assert.Zero(t, StringDescriptorTo(make([]byte, 4), "Demo"))
}

func TestStringDescriptorTo_Clamp(t *testing.T) {
	var buf [255]byte
	n := StringDescriptorTo(buf[:], strings.Repeat("x", 300))
	assert.Equal(t, 2+maxStringBody, n)
	assert.Equal(t, uint8(n), buf[0])
}

func TestParseStringDescriptor(t *testing.T) {
	var buf [64]byte
	n := StringDescriptorTo(buf[:], "Grüße")

	s, err := ParseStringDescriptor(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "Grüße", s)

	_, err = ParseStringDescriptor([]byte{4, DescriptorTypeDevice, 'a', 0})
	assert.ErrorIs(t, err, pkg.ErrDescriptorTypeMismatch)

	_, err = ParseStringDescriptor([]byte{8, DescriptorTypeString, 'a', 0})
	assert.ErrorIs(t, err, pkg.ErrDescriptorTooShort)
}

func TestLanguageDescriptor(t *testing.T) {
	var buf [8]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{4, 3, 0x09, 0x04}, buf[:n])

	ids, err := ParseLanguageDescriptor(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, []uint16{LangIDUSEnglish}, ids)
}
