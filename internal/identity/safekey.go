// Package identity maps user email addresses to storage-safe record keys.
package identity

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

// escape is the prefix of every escape sequence; it is itself escaped so the
// encoding stays prefix-free and therefore injective.
const escape = '-'

// reserved lists characters that cannot appear in a store path segment,
// mapped to their two-hex-digit escape.
var reserved = map[rune]string{
	'-': "2d",
	'.': "2e",
	'@': "40",
	'/': "2f",
	'#': "23",
	'$': "24",
	'[': "5b",
	']': "5d",
}

// SafeKey returns the record key for an email address.
//
// Every reserved rune r is written as "-" followed by its hex code, e.g.
// "jan.kowalski@mail.com" becomes "jan-2ekowalski-40mail-2ecom". A value that
// is already a safe key is returned unchanged.
func SafeKey(email string) string {
	if IsSafeKey(email) {
		return email
	}
	var b strings.Builder
	b.Grow(len(email) + 8)
	for _, r := range email {
		if code, ok := reserved[r]; ok {
			b.WriteRune(escape)
			b.WriteString(code)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsSafeKey reports whether s contains no reserved runes apart from
// well-formed escape sequences.
func IsSafeKey(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == escape {
			if i+2 >= len(s) {
				return false
			}
			if !isEscapeCode(s[i+1 : i+3]) {
				return false
			}
			i += 2
			continue
		}
		if _, ok := reserved[rune(c)]; ok {
			return false
		}
	}
	return true
}

func isEscapeCode(code string) bool {
	for _, v := range reserved {
		if v == code {
			return true
		}
	}
	return false
}

// ParseEmail trims and validates a user-entered address and returns the bare
// address part.
func ParseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("email: %w", errs.ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("email %q: %w", raw, errs.ErrInvalidArgument)
	}
	if addr.Address != raw {
		return "", fmt.Errorf("email %q: display names are not accepted: %w", raw, errs.ErrInvalidArgument)
	}
	return addr.Address, nil
}
