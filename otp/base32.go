package otp

import "strings"

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// EncodeBase32 renders data in the RFC 4648 Base32 alphabet without emitting
// padding characters. Secrets stay compact and paste-friendly; authenticator
// apps accept the unpadded form.
func EncodeBase32(data []byte) string {
	var b strings.Builder
	b.Grow((len(data)*8 + 4) / 5)

	var acc uint64
	var bits uint
	for _, by := range data {
		acc = acc<<8 | uint64(by)
		bits += 8
		for bits >= 5 {
			bits -= 5
			b.WriteByte(base32Alphabet[(acc>>bits)&0x1f])
		}
	}
	if bits > 0 {
		b.WriteByte(base32Alphabet[(acc<<(5-bits))&0x1f])
	}

	return b.String()
}

// DecodeBase32 recovers bytes from a Base32 string. Decoding is
// case-insensitive, strips trailing padding, and skips characters outside the
// alphabet instead of failing. Users paste secrets with whitespace and
// hyphens; best-effort recovery beats a hard error here.
func DecodeBase32(s string) []byte {
	s = strings.TrimRight(strings.ToUpper(s), "=")

	out := make([]byte, 0, len(s)*5/8)
	var acc uint64
	var bits uint
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(base32Alphabet, s[i])
		if v < 0 {
			continue
		}
		acc = acc<<5 | uint64(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}

	return out
}
