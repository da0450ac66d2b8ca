// Package safesender classifies sender addresses against a user's safe
// sender patterns. A pattern is one of:
//
//   - an exact address:        "boss@work.com"
//   - a domain wildcard:       "*@bank.com"
//   - a local-part wildcard:   "alerts@*"
//
// Matching is case-insensitive and total: anything that is not one of the
// three forms never matches, and ValidatePattern rejects it at creation time.
package safesender

import (
	"errors"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ErrInvalidPattern is returned by ValidatePattern for patterns that are not
// an exact address or a one-sided wildcard.
var ErrInvalidPattern = errors.New("pattern must be an address, *@domain or user@*")

// Kind identifies the form of a pattern.
type Kind int

const (
	KindInvalid Kind = iota
	KindExact
	KindDomain // *@domain
	KindLocal  // user@*
)

// Classify reports which form pattern has. It expects a normalized
// (trimmed, lower-cased) pattern.
func Classify(pattern string) Kind {
	at := strings.IndexByte(pattern, '@')
	if at <= 0 || at == len(pattern)-1 || strings.Count(pattern, "@") != 1 || strings.ContainsAny(pattern, " \t<>,") {
		return KindInvalid
	}
	local, domain := pattern[:at], pattern[at+1:]
	switch {
	case local == "*" && domain == "*":
		return KindInvalid
	case local == "*":
		if strings.Contains(domain, "*") || !strings.Contains(domain, ".") {
			return KindInvalid
		}
		return KindDomain
	case domain == "*":
		if strings.Contains(local, "*") {
			return KindInvalid
		}
		return KindLocal
	case strings.Contains(pattern, "*"):
		return KindInvalid
	case !strings.Contains(domain, "."):
		return KindInvalid
	default:
		return KindExact
	}
}

// ValidatePattern normalizes pattern and rejects unsupported forms.
func ValidatePattern(pattern string) (string, error) {
	p := Normalize(pattern)
	if Classify(p) == KindInvalid {
		return "", ErrInvalidPattern
	}
	return p, nil
}

// Normalize trims and lower-cases s.
func Normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Matches reports whether address is covered by pattern.
func Matches(address, pattern string) bool {
	a := strings.ToLower(address)
	p := strings.ToLower(pattern)
	if a == "" || p == "" {
		return false
	}
	if a == p {
		return true
	}
	if strings.HasPrefix(p, "*@") {
		return strings.HasSuffix(a, p[1:])
	}
	if strings.HasSuffix(p, "@*") {
		return strings.HasPrefix(a, p[:len(p)-1])
	}
	return false
}

// MatchesAny reports whether any pattern covers address.
func MatchesAny(address string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(address, p) {
			return true
		}
	}
	return false
}

// ExtractAddress returns the bare lower-cased address from a raw From header
// value such as `"Jane Doe" <Jane@Example.com>`. Encoded display names are
// decoded by the parser. When parsing fails the text inside the last angle
// brackets, or the trimmed input, is used.
func ExtractAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	var h mail.Header
	h.Set("From", from)
	if list, err := h.AddressList("From"); err == nil && len(list) > 0 && list[0].Address != "" {
		return Normalize(list[0].Address)
	}
	if l := strings.LastIndexByte(from, '<'); l >= 0 {
		if r := strings.IndexByte(from[l:], '>'); r > 0 {
			return Normalize(from[l+1 : l+r])
		}
	}
	return Normalize(strings.Trim(from, `"'`))
}
