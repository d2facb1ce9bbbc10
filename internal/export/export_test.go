package export

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"proxypool/internal/model"
)

func sample() []*model.Proxy {
	speed := 1.234
	return []*model.Proxy{
		{IP: "1.2.3.4", Port: 8080, Protocol: "http", SuccessCount: 3, FailCount: 1},
		{IP: "5.6.7.8", Port: 1080, Protocol: "socks5", Country: "US", SuccessCount: 1, FailCount: 2, Latency: &speed},
	}
}

func TestString_CSV(t *testing.T) {
	got, err := String(FormatCSV, sample())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(got, "\n")
	want := []string{
		"ip,port,protocol,country,success_rate,speed",
		"1.2.3.4,8080,http,,75.0,0.00",
		"5.6.7.8,1080,socks5,US,33.3,1.23",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestString_LineFormats(t *testing.T) {
	cases := map[string]string{
		FormatSimple: "1.2.3.4:8080\n5.6.7.8:1080",
		FormatText:   "1.2.3.4:8080\n5.6.7.8:1080",
		FormatURL:    "http://1.2.3.4:8080\nsocks5://5.6.7.8:1080",
		"URL":        "http://1.2.3.4:8080\nsocks5://5.6.7.8:1080",
	}
	for format, want := range cases {
		got, err := String(format, sample())
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if got != want {
			t.Errorf("%s: got %q, want %q", format, got, want)
		}
	}
}

func TestString_Empty(t *testing.T) {
	got, _ := String(FormatCSV, nil)
	if got != "ip,port,protocol,country,success_rate,speed" {
		t.Errorf("empty csv should be the header only, got %q", got)
	}
	got, _ = String(FormatJSON, nil)
	if got != "[]" {
		t.Errorf("empty json = %q, want []", got)
	}
}

func TestString_Table(t *testing.T) {
	got, err := String(FormatTable, sample())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "75.0%") || !strings.Contains(got, "1.23s") {
		t.Errorf("table missing rate or speed columns:\n%s", got)
	}
	if !strings.HasSuffix(got, "Showing 2 proxies") {
		t.Errorf("table missing footer:\n%s", got)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	var sb strings.Builder
	if err := Write(&sb, "xml", sample()); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestNewView(t *testing.T) {
	data, err := json.Marshal(Views(sample()))
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got[0]["success_rate"] != 0.75 || got[0]["country"] != nil || got[0]["speed"] != nil {
		t.Errorf("unexpected first view: %v", got[0])
	}
	if got[1]["success_rate"] != 0.33 || got[1]["country"] != "US" || got[1]["url"] != "socks5://5.6.7.8:1080" {
		t.Errorf("unexpected second view: %v", got[1])
	}
}
