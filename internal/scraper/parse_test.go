package scraper

import (
	"errors"
	"strings"
	"testing"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		raw      string
		wantIP   string
		wantPort int
		wantProt string
	}{
		{"1.2.3.4:8080", "1.2.3.4", 8080, "http"},
		{" 10.0.0.1:3128 ", "10.0.0.1", 3128, "http"},
		{"socks5://5.6.7.8:1080", "5.6.7.8", 1080, "socks5"},
		{"HTTPS://proxy.example.com:443", "proxy.example.com", 443, "https"},
		{"socks4://9.9.9.9:4145", "9.9.9.9", 4145, "socks4"},
	}

	for _, tt := range tests {
		c, err := ParseToken(tt.raw)
		if err != nil {
			t.Errorf("ParseToken(%q) error = %v", tt.raw, err)
			continue
		}
		if c.IP != tt.wantIP || c.Port != tt.wantPort || c.Protocol != tt.wantProt {
			t.Errorf("ParseToken(%q) = %+v, want %s:%d %s", tt.raw, c, tt.wantIP, tt.wantPort, tt.wantProt)
		}
	}
}

func TestParseToken_Invalid(t *testing.T) {
	invalid := []string{
		"bad-token",
		"1.2.3.4",
		"1.2.3.4:abc",
		"1.2.3.4:8080:user",
		"1.2.3.4:8080:user:pass",
		":8080",
		"1.2.3.4:0",
		"1.2.3.4:70000",
		"http://1.2.3.4",
		"ftp://1.2.3.4:21",
		"http://:8080",
	}

	for _, raw := range invalid {
		if _, err := ParseToken(raw); !errors.Is(err, ErrParse) {
			t.Errorf("ParseToken(%q) error = %v, want ErrParse", raw, err)
		}
	}
}

func TestParseAll_CountsFailures(t *testing.T) {
	candidates, failures := ParseAll([]string{"1.2.3.4:8080", "bad-token", "5.6.7.8:3128"})
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if failures != 1 {
		t.Errorf("expected 1 failure, got %d", failures)
	}
	if candidates[0].IP != "1.2.3.4" || candidates[1].IP != "5.6.7.8" {
		t.Errorf("order not preserved: %+v", candidates)
	}
}

func TestParseLines(t *testing.T) {
	body := "1.1.1.1:8080\n\n  2.2.2.2:9000  \ninvalid_line\n# comment: yes\r\n3.3.3.3:80\r\n"

	tokens, err := ParseLines(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseLines failed: %v", err)
	}

	want := []string{"1.1.1.1:8080", "2.2.2.2:9000", "3.3.3.3:80"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, tokens[i], want[i])
		}
	}
}
