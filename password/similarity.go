package password

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var nonWord = regexp.MustCompile(`\W+`)

// AttributeSimilarity flags passwords that closely resemble a user attribute
// such as the username or email.
//
// Each attribute is compared whole and split on non-word characters, so
// "jane.doe@example.com" also yields "jane", "doe", "example" and "com".
// Comparison is case-insensitive.
type AttributeSimilarity struct {
	// MaxSimilarity is the ratio in [0,1] at or above which a password is rejected.
	MaxSimilarity float64
	// MinLength skips attribute parts shorter than this many runes.
	MinLength int
}

// Similar reports whether password is too close to any of attributes.
//
//	Performance: one SequenceMatcher run per attribute part.
func (s AttributeSimilarity) Similar(password string, attributes ...string) bool {
	if password == "" {
		return false
	}
	pw := strings.ToLower(password)

	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		parts := append([]string{attr}, nonWord.Split(attr, -1)...)
		for _, part := range parts {
			if len([]rune(part)) < s.MinLength {
				continue
			}
			if Ratio(pw, part) >= s.MaxSimilarity {
				return true
			}
		}
	}
	return false
}

// Ratio returns the SequenceMatcher similarity of a and b: twice the number
// of matching runes over the total rune count. Two empty strings score 1.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
