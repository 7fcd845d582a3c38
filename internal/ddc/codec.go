package ddc

import (
	"fmt"
)

// VCP feature codes brightd manages.
const (
	VCPBrightness byte = 0x10
	VCPContrast   byte = 0x12
)

const (
	// SlaveAddress is the DDC/CI 7-bit I2C address.
	SlaveAddress = 0x37
	// EDIDAddress is the 7-bit I2C address of the EDID EEPROM.
	EDIDAddress = 0x50

	hostAddress    byte = 0x51
	displayAddress byte = 0x6E
	// replyChecksumSeed is the virtual host address used in reply checksums.
	replyChecksumSeed byte = 0x50

	opGetVCP            byte = 0x01
	opGetVCPReply       byte = 0x02
	opSetVCP            byte = 0x03
	opCapabilities      byte = 0xF3
	opCapabilitiesReply byte = 0xE3

	lengthFlag byte = 0x80

	vcpReplyLen = 11
	// maxFragmentData is the largest capabilities payload a display returns per fragment.
	maxFragmentData = 32
)

// VCPValue is a decoded Get VCP reply.
type VCPValue struct {
	Code    byte
	Type    byte
	Max     uint16
	Current uint16
}

func checksum(seed byte, data []byte) byte {
	sum := seed
	for _, b := range data {
		sum ^= b
	}
	return sum
}

func frame(payload ...byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, hostAddress, lengthFlag|byte(len(payload)))
	out = append(out, payload...)
	return append(out, checksum(displayAddress, out))
}

// EncodeGetVCP builds a Get VCP Feature request.
func EncodeGetVCP(code byte) []byte {
	return frame(opGetVCP, code)
}

// EncodeSetVCP builds a Set VCP Feature request.
func EncodeSetVCP(code byte, value uint16) []byte {
	return frame(opSetVCP, code, byte(value>>8), byte(value))
}

// EncodeCapabilitiesRequest builds a Capabilities request for the given string offset.
func EncodeCapabilitiesRequest(offset uint16) []byte {
	return frame(opCapabilities, byte(offset>>8), byte(offset))
}

// verifyReply checks the source byte, the length byte and the checksum of a
// reply and returns its payload (opcode onwards).
func verifyReply(reply []byte) ([]byte, error) {
	if len(reply) < 3 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortReply, len(reply))
	}
	if reply[0] != displayAddress || reply[1]&lengthFlag == 0 {
		return nil, fmt.Errorf("%w: header % X", ErrInvalidReply, reply[:2])
	}
	n := int(reply[1] &^ lengthFlag)
	if n == 0 {
		// Null message: the display is busy or has nothing to say.
		return nil, fmt.Errorf("%w: null message", ErrShortReply)
	}
	if len(reply) < n+3 {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrShortReply, n+3, len(reply))
	}
	body := reply[:n+2]
	if got, want := reply[n+2], checksum(replyChecksumSeed, body); got != want {
		return nil, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, got, want)
	}
	return reply[2 : n+2], nil
}

// DecodeVCPReply decodes a Get VCP Feature reply for code.
func DecodeVCPReply(reply []byte, code byte) (VCPValue, error) {
	payload, err := verifyReply(reply)
	if err != nil {
		return VCPValue{}, err
	}
	if len(payload) != vcpReplyLen-3 || payload[0] != opGetVCPReply {
		return VCPValue{}, fmt.Errorf("%w: unexpected VCP reply % X", ErrInvalidReply, payload)
	}
	if payload[1] != 0 {
		return VCPValue{}, fmt.Errorf("%w: 0x%02X", ErrUnsupportedVCP, code)
	}
	if payload[2] != code {
		return VCPValue{}, fmt.Errorf("%w: reply for 0x%02X, asked 0x%02X", ErrInvalidReply, payload[2], code)
	}
	return VCPValue{
		Code:    code,
		Type:    payload[3],
		Max:     uint16(payload[4])<<8 | uint16(payload[5]),
		Current: uint16(payload[6])<<8 | uint16(payload[7]),
	}, nil
}

// DecodeCapabilitiesFragment decodes one Capabilities reply fragment and
// returns its offset and data. Empty data ends the capabilities string.
func DecodeCapabilitiesFragment(reply []byte) (uint16, []byte, error) {
	payload, err := verifyReply(reply)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 3 || payload[0] != opCapabilitiesReply {
		return 0, nil, fmt.Errorf("%w: unexpected capabilities reply % X", ErrInvalidReply, payload)
	}
	offset := uint16(payload[1])<<8 | uint16(payload[2])
	data := payload[3:]
	// Some displays pad the final fragment with NULs.
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return offset, data, nil
}
