package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"proxypool/internal/scraper"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// TextListSource scrapes proxies from a plain-text list URL, one per line.
type TextListSource struct {
	name             string
	url              string
	protocolOverride string // If set, bare host:port tokens are prefixed with this scheme.
	client           *http.Client
}

func NewTextListSource(name, url, protocolOverride string) *TextListSource {
	return &TextListSource{
		name:             name,
		url:              url,
		protocolOverride: strings.ToLower(protocolOverride),
		client:           http.DefaultClient,
	}
}

func (s *TextListSource) Name() string {
	return s.name
}

func (s *TextListSource) Fetch(ctx context.Context) ([]string, error) {
	resp, err := get(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	tokens, err := scraper.ParseLines(resp.Body)
	if err != nil {
		return nil, err
	}

	if s.protocolOverride != "" {
		for i, tok := range tokens {
			if !strings.Contains(tok, "://") {
				tokens[i] = s.protocolOverride + "://" + tok
			}
		}
	}
	return tokens, nil
}

// get issues a browser-like GET and rejects any non-200 answer.
func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return resp, nil
}
