package password

import (
	"bufio"
	_ "embed"
	"io"
	"strings"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordsFile string

// Dictionary is a case-insensitive set of known-common passwords.
type Dictionary struct {
	words map[string]struct{}
}

// DefaultDictionary returns the embedded list of common passwords.
func DefaultDictionary() *Dictionary {
	d, _ := LoadDictionary(strings.NewReader(commonPasswordsFile))
	return d
}

// LoadDictionary reads one password per line. Blank lines and lines starting
// with '#' are skipped.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{words: make(map[string]struct{})}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d.words[strings.ToLower(line)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.words)
}

// IsCommon reports whether password (trimmed, case-folded) is in the dictionary.
func (d *Dictionary) IsCommon(password string) bool {
	_, ok := d.words[strings.ToLower(strings.TrimSpace(password))]
	return ok
}

// IsAllNumeric reports whether password is non-empty and consists only of digits.
func (d *Dictionary) IsAllNumeric(password string) bool {
	return IsAllNumeric(password)
}

// IsAllNumeric reports whether s is non-empty and consists only of digits.
func IsAllNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
