package kvwire

import (
	"net/url"
	"reflect"
	"testing"
)

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "plain", key: "user1", expected: "user1"},
		{name: "unreserved marks", key: "a-b_c.d!e~f*g'h(i)", expected: "a-b_c.d!e~f*g'h(i)"},
		{name: "space", key: "a b", expected: "a%20b"},
		{name: "slash and query", key: "a/b?c=d&e", expected: "a%2Fb%3Fc%3Dd%26e"},
		{name: "plus", key: "1+1", expected: "1%2B1"},
		{name: "base64 sentinel", key: "LQ==", expected: "LQ%3D%3D"},
		{name: "utf8", key: "héllo", expected: "h%C3%A9llo"},
		{name: "empty", key: "", expected: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := EscapeKey(tc.key)
			if got != tc.expected {
				t.Fatalf("EscapeKey(%q) = %q, want %q", tc.key, got, tc.expected)
			}
			back, err := UnescapeKey(got)
			if err != nil {
				t.Fatalf("UnescapeKey: %v", err)
			}
			if back != tc.key {
				t.Fatalf("round trip mismatch: %q -> %q", tc.key, back)
			}
		})
	}
}

func TestDecodeKeyList(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []string
	}{
		{name: "empty", body: "", expected: []string{}},
		{name: "single", body: "pre1", expected: []string{"pre1"}},
		{name: "order kept", body: "pre2\npre1\nother", expected: []string{"pre2", "pre1", "other"}},
		{name: "trailing newline", body: "a\nb\n", expected: []string{"a", "b"}},
		{name: "escaped", body: "a%20b\nc%2Fd\n1+1", expected: []string{"a b", "c/d", "1+1"}},
		{name: "crlf", body: "a\r\nb\r\n", expected: []string{"a", "b"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeKeyList([]byte(tc.body))
			if err != nil {
				t.Fatalf("DecodeKeyList: %v", err)
			}
			if !reflect.DeepEqual(got, tc.expected) {
				t.Fatalf("DecodeKeyList(%q) = %#v, want %#v", tc.body, got, tc.expected)
			}
		})
	}

	if _, err := DecodeKeyList([]byte("bad%zz")); err == nil {
		t.Fatalf("expected error for malformed escape")
	}
}

func TestEncodeKeyListRoundTrip(t *testing.T) {
	keys := []string{"a b", "c/d", "plain"}
	got, err := DecodeKeyList(EncodeKeyList(keys))
	if err != nil {
		t.Fatalf("DecodeKeyList: %v", err)
	}
	if !reflect.DeepEqual(got, keys) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestSetForm(t *testing.T) {
	form := SetForm("a&b", []byte(`{"x":"1 2"}`))
	encoded := form.Encode()
	parsed, err := url.ParseQuery(encoded)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if parsed.Get("a&b") != `{"x":"1 2"}` {
		t.Fatalf("form did not round trip: %q", encoded)
	}
}

func TestTrimValue(t *testing.T) {
	if TrimValue([]byte("  \n")) != nil {
		t.Fatalf("blank body must be absent")
	}
	if got := string(TrimValue([]byte(" 42\n"))); got != "42" {
		t.Fatalf("unexpected trim: %q", got)
	}
}
