// Package mask normalizes raw keystrokes into the canonical display formats
// used by the forms and extracts canonical digits back out of them.
package mask

import (
	"strings"
)

// Masker formats raw input for display and recovers the stored value.
type Masker interface {
	Mask(raw string) string
	Unmask(display string) string
}

// Kinds accepted by ForKind.
const (
	KindPhone = "phone"
	KindCNES  = "cnes"
)

// CNESLength is the number of digits in a CNES code.
const CNESLength = 7

// Phone formats Brazilian phone numbers: 10 digits as (DD) DDDD-DDDD and 11
// digits as (DD) DDDDD-DDDD. Any other digit count is returned unformatted.
type Phone struct{}

// Mask implements Masker.
func (Phone) Mask(raw string) string {
	d := Digits(raw)
	switch len(d) {
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	default:
		return d
	}
}

// Unmask implements Masker.
func (Phone) Unmask(display string) string {
	return Digits(display)
}

// CNES keeps only digits, truncated to seven. It never pads.
type CNES struct{}

// Mask implements Masker.
func (CNES) Mask(raw string) string {
	d := Digits(raw)
	if len(d) > CNESLength {
		d = d[:CNESLength]
	}
	return d
}

// Unmask implements Masker.
func (c CNES) Unmask(display string) string {
	return c.Mask(display)
}

// ForKind returns the masker named by a field definition.
func ForKind(kind string) (Masker, bool) {
	switch kind {
	case KindPhone:
		return Phone{}, true
	case KindCNES:
		return CNES{}, true
	}
	return nil, false
}

// Digits strips every non-ASCII-digit character.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// TelLink returns a tel: URI with the Brazilian country code, or "" when the
// phone has no digits.
func TelLink(phone string) string {
	d := Digits(phone)
	if d == "" {
		return ""
	}
	return "tel:+55" + d
}
