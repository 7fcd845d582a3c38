package ddc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const edidLen = 128

var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDID holds the identity fields of an EDID base block.
type EDID struct {
	Manufacturer string
	ProductCode  uint16
	Serial       uint32
	SerialText   string
	Name         string
}

// ID returns a stable identifier such as "DEL-A0F3-12345678". The textual
// serial is preferred when the numeric one is zero.
func (e EDID) ID() string {
	serial := fmt.Sprintf("%08X", e.Serial)
	if e.Serial == 0 && e.SerialText != "" {
		serial = e.SerialText
	}
	return fmt.Sprintf("%s-%04X-%s", e.Manufacturer, e.ProductCode, serial)
}

// ParseEDID decodes the first 128 bytes of an EDID blob.
func ParseEDID(raw []byte) (EDID, error) {
	if len(raw) < edidLen {
		return EDID{}, fmt.Errorf("%w: %d bytes", ErrInvalidEDID, len(raw))
	}
	block := raw[:edidLen]
	if !bytes.Equal(block[:8], edidHeader) {
		return EDID{}, fmt.Errorf("%w: bad header", ErrInvalidEDID)
	}
	var sum byte
	for _, b := range block {
		sum += b
	}
	if sum != 0 {
		return EDID{}, fmt.Errorf("%w: checksum", ErrInvalidEDID)
	}

	id := binary.BigEndian.Uint16(block[8:10])
	e := EDID{
		Manufacturer: string([]byte{
			byte('A' - 1 + (id>>10)&0x1F),
			byte('A' - 1 + (id>>5)&0x1F),
			byte('A' - 1 + id&0x1F),
		}),
		ProductCode: binary.LittleEndian.Uint16(block[10:12]),
		Serial:      binary.LittleEndian.Uint32(block[12:16]),
	}
	for off := 54; off <= 108; off += 18 {
		d := block[off : off+18]
		if d[0] != 0 || d[1] != 0 || d[2] != 0 {
			continue
		}
		text := descriptorText(d[5:])
		switch d[3] {
		case 0xFC:
			e.Name = text
		case 0xFF:
			e.SerialText = text
		}
	}
	return e, nil
}

func descriptorText(b []byte) string {
	if i := bytes.IndexByte(b, 0x0A); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
