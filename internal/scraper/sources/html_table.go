package sources

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLTableSource scrapes proxies from an HTML page that lists them in a
// table with the IP in the first column and the port in the second.
type HTMLTableSource struct {
	name             string
	url              string
	protocolOverride string
	client           *http.Client
}

func NewHTMLTableSource(name, url, protocolOverride string) *HTMLTableSource {
	return &HTMLTableSource{
		name:             name,
		url:              url,
		protocolOverride: strings.ToLower(protocolOverride),
		client:           http.DefaultClient,
	}
}

func (s *HTMLTableSource) Name() string {
	return s.name
}

func (s *HTMLTableSource) Fetch(ctx context.Context) ([]string, error) {
	resp, err := get(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tokens []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		ip := strings.TrimSpace(cells.Eq(0).Text())
		portStr := strings.TrimSpace(cells.Eq(1).Text())

		// ParseToken only accepts host:port with a single colon.
		if addr := net.ParseIP(ip); addr == nil || addr.To4() == nil {
			return
		}
		if _, err := strconv.Atoi(portStr); err != nil {
			return
		}

		tok := ip + ":" + portStr
		if s.protocolOverride != "" {
			tok = s.protocolOverride + "://" + tok
		}
		tokens = append(tokens, tok)
	})

	return tokens, nil
}
