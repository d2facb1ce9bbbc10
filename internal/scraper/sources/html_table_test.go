package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"proxypool/internal/scraper"
)

const proxyTablePage = `<html><body>
<table>
  <tr><th>IP Address</th><th>Port</th><th>Country</th></tr>
  <tr><td>1.1.1.1</td><td>8080</td><td>US</td></tr>
  <tr><td> 2.2.2.2 </td><td>3128</td><td>DE</td></tr>
  <tr><td>not-an-ip</td><td>80</td><td>??</td></tr>
  <tr><td>3.3.3.3</td><td>port</td><td>FR</td></tr>
  <tr><td>2001:db8::1</td><td>8080</td><td>NL</td></tr>
</table>
</body></html>`

func TestHTMLTableSource_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, proxyTablePage)
	}))
	defer ts.Close()

	tokens, err := NewHTMLTableSource("table", ts.URL, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(tokens) != 2 {
		t.Fatalf("Expected 2 tokens, got %v", tokens)
	}
	if tokens[0] != "1.1.1.1:8080" || tokens[1] != "2.2.2.2:3128" {
		t.Errorf("Unexpected tokens: %v", tokens)
	}
	for _, tok := range tokens {
		if _, err := scraper.ParseToken(tok); err != nil {
			t.Errorf("token %q does not parse: %v", tok, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: plain
    url: https://example.com/http.txt
  - name: table
    url: https://example.com/list.html
    kind: html
    protocol: https
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	srcs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(srcs))
	}
	if _, ok := srcs[0].(*TextListSource); !ok {
		t.Errorf("source 0 should be a text list, got %T", srcs[0])
	}
	if _, ok := srcs[1].(*HTMLTableSource); !ok {
		t.Errorf("source 1 should be an html table, got %T", srcs[1])
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	if _, err := Build([]Entry{{URL: "https://example.com", Kind: "rss"}}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFromURLs(t *testing.T) {
	srcs := FromURLs([]string{"https://raw.githubusercontent.com/a/b/http.txt"})
	if len(srcs) != 1 || srcs[0].Name() != "raw.githubusercontent.com/a/b/http.txt" {
		t.Errorf("unexpected sources: %v", srcs[0].Name())
	}
}
