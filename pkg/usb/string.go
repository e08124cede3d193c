package usb

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/ardnew/picousb/pkg"
)

// utf16le is the string descriptor body encoding. Descriptors carry no BOM.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// maxStringBody is the largest even body that fits the one-byte bLength.
const maxStringBody = 252

// StringDescriptorSize returns the encoded size of s as a string
// descriptor: 2 + 2 bytes per UTF-16 code unit, clamped to 254.
func StringDescriptorSize(s string) int {
	body, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0
	}
	return 2 + len(clampUTF16(body))
}

// StringDescriptorTo writes s as a string descriptor into buf. The body is
// UTF-16LE, so ASCII input of N characters yields 2 + 2N bytes with each
// character followed by a zero byte. Returns 0 if buf is too small.
func StringDescriptorTo(buf []byte, s string) int {
	body, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0
	}
	body = clampUTF16(body)
	n := 2 + len(body)
	if len(buf) < n {
		return 0
	}
	buf[0] = uint8(n)
	buf[1] = DescriptorTypeString
	copy(buf[2:], body)
	return n
}

// clampUTF16 truncates an encoded body to maxStringBody without leaving a
// dangling high surrogate.
func clampUTF16(body []byte) []byte {
	if len(body) <= maxStringBody {
		return body
	}
	body = body[:maxStringBody]
	last := binary.LittleEndian.Uint16(body[len(body)-2:])
	if last >= 0xD800 && last < 0xDC00 {
		body = body[:len(body)-2]
	}
	return body
}

// ParseStringDescriptor decodes the UTF-16LE body of a string descriptor.
func ParseStringDescriptor(data []byte) (string, error) {
	if len(data) < 2 {
		return "", pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeString {
		return "", pkg.ErrDescriptorTypeMismatch
	}
	n := int(data[0])
	if n < 2 || n > len(data) {
		return "", pkg.ErrDescriptorTooShort
	}
	body := data[2:n]
	body = body[:len(body)&^1]
	s, err := utf16le.NewDecoder().Bytes(body)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// LanguageDescriptorTo writes the string descriptor at index 0, the list of
// supported language IDs. Returns 0 if buf is too small.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	n := 2 + len(langIDs)*2
	if len(buf) < n || n > 255 {
		return 0
	}
	buf[0] = uint8(n)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return n
}

// ParseLanguageDescriptor decodes the language IDs of string descriptor 0.
func ParseLanguageDescriptor(data []byte) ([]uint16, error) {
	if len(data) < 2 {
		return nil, pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeString {
		return nil, pkg.ErrDescriptorTypeMismatch
	}
	n := int(data[0])
	if n < 2 || n > len(data) {
		return nil, pkg.ErrDescriptorTooShort
	}
	ids := make([]uint16, 0, (n-2)/2)
	for i := 2; i+1 < n; i += 2 {
		ids = append(ids, binary.LittleEndian.Uint16(data[i:]))
	}
	return ids, nil
}
