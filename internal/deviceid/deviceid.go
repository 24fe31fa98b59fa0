package deviceid

import (
	"fmt"
	"strings"
)

// Prefix is the namespace all bridge-owned device identifiers live under.
const Prefix = "roku"

// ID is a parsed device identifier. The canonical wire form is
// "roku:<SERIAL>"; older releases wrote "roku-<SERIAL>" and those ids still
// exist in registry rows, so both forms parse to the same ID.
type ID struct {
	Serial string
}

// Parse accepts "roku:SERIAL" or the legacy "roku-SERIAL" form.
func Parse(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(s, Prefix+":")
	if !ok {
		rest, ok = strings.CutPrefix(s, Prefix+"-")
	}
	if !ok || rest == "" {
		return ID{}, fmt.Errorf("device id %q is not in roku:<serial> form", raw)
	}
	return ID{Serial: rest}, nil
}

// FromSerial builds an ID from a bare serial number.
func FromSerial(serial string) (ID, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return ID{}, fmt.Errorf("serial number is empty")
	}
	return ID{Serial: serial}, nil
}

// String returns the canonical form.
func (id ID) String() string {
	return Prefix + ":" + id.Serial
}

// Legacy returns the dashed form written by older releases.
func (id ID) Legacy() string {
	return Prefix + "-" + id.Serial
}

// IsZero reports whether the id carries no serial.
func (id ID) IsZero() bool {
	return id.Serial == ""
}

// Canonicalize rewrites any accepted id form to the canonical one. Unparseable
// input is returned unchanged so callers can surface it as-is in errors.
func Canonicalize(raw string) string {
	id, err := Parse(raw)
	if err != nil {
		return raw
	}
	return id.String()
}

// NormalizeMAC uppercases a MAC address and rewrites dash or bare-hex
// delimiters to colons. Returns "" when the input does not look like a MAC.
func NormalizeMAC(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", ":")
	if !strings.Contains(s, ":") && len(s) == 12 {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		s = b.String()
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return ""
	}
	for _, p := range parts {
		if len(p) != 2 || !isHexByte(p) {
			return ""
		}
	}
	return s
}

func isHexByte(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
