package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const backupCodeBytes = 4

// GenerateBackupCodes returns count single-use recovery codes, each 4 random
// bytes rendered as 8 uppercase hex characters. No uniqueness check is
// performed within the batch: the collision probability at this size is
// negligible and accepted.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	codes := make([]string, 0, count)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}

	return codes, nil
}

// MatchBackupCode compares a submitted code against the stored set,
// case-insensitively and ignoring surrounding whitespace. It returns the
// index of the matched code or -1. Removing the matched code from storage is
// the caller's responsibility; one-time use is not enforced here.
func MatchBackupCode(submitted string, stored []string) int {
	normalized := NormalizeBackupCode(submitted)
	if normalized == "" {
		return -1
	}

	match := -1
	for i, code := range stored {
		// Scan the whole set so timing does not reveal the match position.
		if subtle.ConstantTimeCompare([]byte(NormalizeBackupCode(code)), []byte(normalized)) == 1 && match < 0 {
			match = i
		}
	}

	return match
}

// NormalizeBackupCode strips whitespace and upper-cases a code for
// comparison and storage.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
