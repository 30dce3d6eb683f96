package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretBytes is the raw entropy of a generated shared secret (160 bits).
	SecretBytes = 20
	// DefaultDigits is the code length expected by authenticator apps.
	DefaultDigits = 6
	// DefaultPeriod is the TOTP time-step in seconds.
	DefaultPeriod = 30
	// DefaultSkew is the accepted clock-skew window in time-steps on each
	// side of now. Widening it trades security for usability.
	DefaultSkew = 1
)

// GenerateSecret returns a fresh Base32-encoded 160-bit shared secret drawn
// from the cryptographic random source.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return EncodeBase32(raw), nil
}

// Counter maps a wall-clock instant to its TOTP time-step counter.
func Counter(t time.Time, period int) int64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	return t.Unix() / int64(period)
}

// CodeForCounter computes the RFC 4226 HOTP value for a Base32 secret and
// counter: HMAC-SHA1 over the big-endian counter, dynamic truncation to a
// 31-bit integer, reduced modulo 10^digits and zero-padded.
func CodeForCounter(secret string, counter int64, digits int) string {
	if digits <= 0 {
		digits = DefaultDigits
	}
	key := DecodeBase32(secret)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

// GenerateCode returns the 6-digit code for the given instant using the
// standard 30-second period.
func GenerateCode(secret string, t time.Time) string {
	return CodeForCounter(secret, Counter(t, DefaultPeriod), DefaultDigits)
}

// VerifyCode checks a submitted code against the counters in the window
// now-skew..now+skew inclusive. Comparison is constant-time per candidate.
// Malformed input returns false, never an error.
func VerifyCode(secret, submitted string, t time.Time, skew int) bool {
	trimmed := strings.TrimSpace(submitted)
	if len(trimmed) != DefaultDigits || !isNumeric(trimmed) {
		return false
	}
	if secret == "" {
		return false
	}
	if skew < 0 {
		skew = DefaultSkew
	}

	base := Counter(t, DefaultPeriod)
	for step := -skew; step <= skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		candidate := CodeForCounter(secret, counter, DefaultDigits)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(trimmed)) == 1 {
			return true
		}
	}

	return false
}

// ProvisionURI builds the otpauth:// URI consumed by authenticator apps for
// QR rendering. Issuer, account, and secret are percent-encoded; algorithm,
// digits, and period are pinned to the interoperable SHA1/6/30 profile.
func ProvisionURI(secret, account, issuer string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(DefaultDigits))
	v.Set("period", strconv.Itoa(DefaultPeriod))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
