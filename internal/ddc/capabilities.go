package ddc

import (
	"fmt"
	"strconv"
	"strings"
)

// Capabilities is a parsed MCCS capabilities string.
type Capabilities struct {
	Type  string
	Model string
	MCCS  string
	// VCP maps each supported feature code to its permitted values; continuous
	// features have no values.
	VCP map[byte][]byte
}

// Has reports whether the display advertises a VCP feature code.
func (c Capabilities) Has(code byte) bool {
	_, ok := c.VCP[code]
	return ok
}

// ParseCapabilities parses a string such as
// "(prot(monitor)type(lcd)model(U2720Q)vcp(02 10 12 14(05 08 0B))mccs_ver(2.1))".
func ParseCapabilities(raw string) (Capabilities, error) {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}
	fields, err := splitGroups(s)
	if err != nil {
		return Capabilities{}, err
	}
	caps := Capabilities{VCP: map[byte][]byte{}}
	for key, body := range fields {
		switch key {
		case "type":
			caps.Type = strings.TrimSpace(body)
		case "model":
			caps.Model = strings.TrimSpace(body)
		case "mccs_ver":
			caps.MCCS = strings.TrimSpace(body)
		case "vcp":
			if err := parseVCPList(body, caps.VCP); err != nil {
				return Capabilities{}, err
			}
		}
	}
	if len(caps.VCP) == 0 {
		return Capabilities{}, fmt.Errorf("%w: no vcp list in capabilities", ErrInvalidReply)
	}
	return caps, nil
}

// splitGroups splits "key(body)key(body)" into a map, keeping nested parentheses in body.
func splitGroups(s string) (map[string]string, error) {
	out := map[string]string{}
	for i := 0; i < len(s); {
		open := strings.IndexByte(s[i:], '(')
		if open < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[i : i+open]))
		start := i + open + 1
		depth := 1
		j := start
		for ; j < len(s) && depth > 0; j++ {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if depth != 0 {
			return nil, fmt.Errorf("%w: unbalanced parentheses after %q", ErrInvalidReply, key)
		}
		if _, seen := out[key]; !seen {
			out[key] = s[start : j-1]
		}
		i = j
	}
	return out, nil
}

func parseVCPList(body string, into map[byte][]byte) error {
	var last byte
	haveLast := false
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == ' ':
			i++
		case c == '(':
			end := strings.IndexByte(body[i:], ')')
			if end < 0 || !haveLast {
				return fmt.Errorf("%w: malformed vcp value list", ErrInvalidReply)
			}
			values, err := parseHexBytes(body[i+1 : i+end])
			if err != nil {
				return err
			}
			into[last] = values
			i += end + 1
		default:
			j := i
			for j < len(body) && body[j] != ' ' && body[j] != '(' {
				j++
			}
			code, err := strconv.ParseUint(body[i:j], 16, 8)
			if err != nil {
				return fmt.Errorf("%w: vcp code %q", ErrInvalidReply, body[i:j])
			}
			last = byte(code)
			haveLast = true
			if _, ok := into[last]; !ok {
				into[last] = nil
			}
			i = j
		}
	}
	return nil
}

func parseHexBytes(s string) ([]byte, error) {
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: vcp value %q", ErrInvalidReply, f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
