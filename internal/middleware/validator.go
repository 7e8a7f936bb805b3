package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxUploadBytes bounds uploaded contract files.
const MaxUploadBytes = 5 << 20

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

	allowedExtensions = map[string]bool{
		".sol": true,
		".txt": true,
	}
)

// ValidateAddress checks the 0x-prefixed 40-hex-digit address form.
func ValidateAddress(address string) error {
	if !addressPattern.MatchString(address) {
		return fmt.Errorf("invalid contract address format: %s", address)
	}
	return nil
}

// ValidateUploadName rejects files that are not contract source uploads.
func ValidateUploadName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q, expected .sol or .txt", ext)
	}
	return nil
}

// SanitizeString strips control characters from free-text inputs.
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 32 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
