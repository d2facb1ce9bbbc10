package sources

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"proxypool/internal/scraper"
)

// Source kinds understood by the catalogue.
const (
	KindText = "text"
	KindHTML = "html"
)

// Entry describes one configured source.
type Entry struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Kind     string `yaml:"kind"`
	Protocol string `yaml:"protocol"`
}

type catalog struct {
	Sources []Entry `yaml:"sources"`
}

// LoadFile reads a YAML source catalogue:
//
//	sources:
//	  - name: TheSpeedX-SOCKS5
//	    url: https://raw.githubusercontent.com/TheSpeedX/PROXY-LIST/master/socks5.txt
//	    protocol: socks5
func LoadFile(path string) ([]scraper.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(c.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}

	return Build(c.Sources)
}

// Build turns catalogue entries into sources.
func Build(entries []Entry) ([]scraper.Source, error) {
	out := make([]scraper.Source, 0, len(entries))
	for i, e := range entries {
		if e.URL == "" {
			return nil, fmt.Errorf("source %d: url is required", i)
		}
		name := e.Name
		if name == "" {
			name = e.URL
		}

		switch e.Kind {
		case "", KindText:
			out = append(out, NewTextListSource(name, e.URL, e.Protocol))
		case KindHTML:
			out = append(out, NewHTMLTableSource(name, e.URL, e.Protocol))
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", name, e.Kind)
		}
	}
	return out, nil
}

// FromURLs builds plain-text sources named after their host.
func FromURLs(urls []string) []scraper.Source {
	out := make([]scraper.Source, 0, len(urls))
	for _, raw := range urls {
		name := raw
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			name = u.Host + u.Path
		}
		out = append(out, NewTextListSource(name, raw, ""))
	}
	return out
}
