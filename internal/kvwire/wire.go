// Package kvwire encodes and decodes the plain-text wire format spoken by the
// remote key-value store: keys travel as escaped path segments, writes are
// form-encoded POST bodies and listings are newline separated escaped keys.
package kvwire

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// EscapeKey escapes key for use as a single URL path segment or form field.
// Only the characters left untouched by JavaScript's encodeURIComponent are
// kept verbatim, so keys round-trip with the reference server.
func EscapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// UnescapeKey reverses EscapeKey. A '+' is kept literally.
func UnescapeKey(s string) (string, error) {
	key, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("kvwire: unescape key %q: %w", s, err)
	}
	return key, nil
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// SetForm builds the form payload for a write of the JSON document raw.
func SetForm(key string, raw []byte) url.Values {
	return url.Values{key: {string(raw)}}
}

// ListQuery builds the query string of a prefix listing.
func ListQuery(prefix string) url.Values {
	return url.Values{"encode": {"true"}, "prefix": {prefix}}
}

// DecodeKeyList parses a listing body. Blank lines are skipped; an empty body
// is an empty list.
func DecodeKeyList(body []byte) ([]string, error) {
	trimmed := bytes.TrimRight(body, "\r\n")
	if len(trimmed) == 0 {
		return []string{}, nil
	}
	lines := strings.Split(string(trimmed), "\n")
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, err := UnescapeKey(line)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// EncodeKeyList renders keys in listing format.
func EncodeKeyList(keys []string) []byte {
	escaped := make([]string, len(keys))
	for i, k := range keys {
		escaped[i] = EscapeKey(k)
	}
	return []byte(strings.Join(escaped, "\n"))
}

// TrimValue strips transport whitespace from a value body. A nil result means
// the key is absent.
func TrimValue(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	return append([]byte(nil), trimmed...)
}
