package ddc

import (
	"bytes"
	"errors"
	"testing"
)

func reply(payload ...byte) []byte {
	out := append([]byte{displayAddress, lengthFlag | byte(len(payload))}, payload...)
	return append(out, checksum(replyChecksumSeed, out))
}

func TestEncodeRequests(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"get brightness", EncodeGetVCP(VCPBrightness), []byte{0x51, 0x82, 0x01, 0x10, 0x6E ^ 0x51 ^ 0x82 ^ 0x01 ^ 0x10}},
		{"set contrast", EncodeSetVCP(VCPContrast, 0x0150), []byte{0x51, 0x84, 0x03, 0x12, 0x01, 0x50, 0x6E ^ 0x51 ^ 0x84 ^ 0x03 ^ 0x12 ^ 0x01 ^ 0x50}},
		{"capabilities", EncodeCapabilitiesRequest(0x0020), []byte{0x51, 0x83, 0xF3, 0x00, 0x20, 0x6E ^ 0x51 ^ 0x83 ^ 0xF3 ^ 0x00 ^ 0x20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Fatalf("got % X want % X", tt.got, tt.want)
			}
		})
	}
}

func TestDecodeVCPReply(t *testing.T) {
	v, err := DecodeVCPReply(reply(0x02, 0x00, 0x10, 0x00, 0x00, 0x64, 0x00, 0x32), VCPBrightness)
	if err != nil {
		t.Fatalf("DecodeVCPReply: %v", err)
	}
	if v.Max != 100 || v.Current != 50 {
		t.Fatalf("unexpected value: %+v", v)
	}
}

func TestDecodeVCPReplyErrors(t *testing.T) {
	corrupt := reply(0x02, 0x00, 0x10, 0x00, 0x00, 0x64, 0x00, 0x32)
	corrupt[len(corrupt)-1] ^= 0xFF

	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{"checksum", corrupt, ErrChecksum},
		{"unsupported", reply(0x02, 0x01, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00), ErrUnsupportedVCP},
		{"null message", []byte{0x6E, 0x80, 0xBE}, ErrShortReply},
		{"truncated", reply(0x02, 0x00, 0x10, 0x00, 0x00, 0x64, 0x00, 0x32)[:6], ErrShortReply},
		{"wrong code", reply(0x02, 0x00, 0x12, 0x00, 0x00, 0x64, 0x00, 0x32), ErrInvalidReply},
		{"bad source", []byte{0x00, 0x88, 0x02}, ErrInvalidReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVCPReply(tt.reply, VCPBrightness)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsProtocol(err) {
				t.Fatalf("expected protocol classification for %v", err)
			}
		})
	}
}

func TestDecodeCapabilitiesFragmentTrimsPadding(t *testing.T) {
	off, data, err := DecodeCapabilitiesFragment(reply(0xE3, 0x00, 0x20, 'v', 'c', 'p', 0x00, 0x00))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if off != 0x20 || string(data) != "vcp" {
		t.Fatalf("unexpected fragment off=%d data=%q", off, data)
	}
}
