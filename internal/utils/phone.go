package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// phonePattern is the only accepted mobile format: 010-dddd-dddd.
var phonePattern = regexp.MustCompile(`^010-\d{4}-\d{4}$`)

// NormalizePhone trims the input and inserts dashes into a bare
// 11-digit 010 number. Anything else is returned trimmed and unchanged.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) == 11 && strings.HasPrefix(s, "010") && isDigits(s) {
		return s[:3] + "-" + s[3:7] + "-" + s[7:]
	}
	return s
}

// ValidPhone reports whether p matches 010-dddd-dddd.
func ValidPhone(p string) bool {
	return phonePattern.MatchString(p)
}

// MaskPhone hides the middle block: 010-1234-5678 -> 010-****-5678.
// Short or malformed numbers are fully masked.
func MaskPhone(p string) string {
	if len(p) < 8 {
		return "****"
	}
	return p[:3] + "-****-" + p[len(p)-4:]
}

// HashPhone returns a short SHA-256 fingerprint of p for log correlation.
// Raw phone numbers are never logged.
func HashPhone(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:8])
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
