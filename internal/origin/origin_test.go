package origin

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://example.com", "https://example.com", true},
		{"HTTPS://Example.COM:443", "https://example.com", true},
		{"http://example.com:80", "http://example.com", true},
		{"http://example.com:8080", "http://example.com:8080", true},
		{"http://[::1]:8080", "http://[::1]:8080", true},
		{"https://example.com/", "https://example.com", true},
		{"https://example.com/path", "", false},
		{"ftp://example.com", "", false},
		{"null", "", false},
		{"", "", false},
		{"https://user@example.com", "", false},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Normalize(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAllowlist_EmptyAdmitsAll(t *testing.T) {
	al := NewAllowlist(nil)
	if !al.Allowed("https://anywhere.example") {
		t.Fatalf("empty allowlist must admit all origins")
	}
}

func TestAllowlist_Match(t *testing.T) {
	al := NewAllowlist([]string{"https://app.example.com", "http://localhost:5173"})

	if !al.Allowed("https://app.example.com") {
		t.Fatalf("configured origin rejected")
	}
	if !al.Allowed("HTTPS://APP.EXAMPLE.COM:443") {
		t.Fatalf("normalization must make equivalent origins match")
	}
	if al.Allowed("https://evil.example.com") {
		t.Fatalf("unlisted origin admitted")
	}
	if !al.Allowed("") {
		t.Fatalf("non-browser clients (no Origin) must be admitted")
	}
}

func TestAllowlist_Wildcard(t *testing.T) {
	al := NewAllowlist([]string{"https://app.example.com", "*"})
	if !al.Allowed("https://evil.example.com") {
		t.Fatalf("wildcard must admit any origin")
	}
}
