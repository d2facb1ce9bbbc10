package scraper

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"proxypool/internal/model"
)

// ErrParse is wrapped by every ParseToken failure.
var ErrParse = errors.New("malformed proxy token")

// ParseLines splits a list body into candidate tokens. Blank lines, "#"
// comments and lines without a ':' separator are skipped.
func ParseLines(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ":") {
			continue
		}
		tokens = append(tokens, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	return tokens, nil
}

// ParseToken converts "host:port" or "scheme://host:port" into a candidate.
// The bare form defaults to http.
func ParseToken(raw string) (model.Candidate, error) {
	raw = strings.TrimSpace(raw)

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return model.Candidate{}, fmt.Errorf("%w: %q: %v", ErrParse, raw, err)
		}
		scheme := strings.ToLower(u.Scheme)
		if !model.IsKnownProtocol(scheme) {
			return model.Candidate{}, fmt.Errorf("%w: %q: unknown scheme", ErrParse, raw)
		}
		if u.Port() == "" {
			return model.Candidate{}, fmt.Errorf("%w: %q: missing port", ErrParse, raw)
		}
		port, err := parsePort(u.Port())
		if err != nil {
			return model.Candidate{}, fmt.Errorf("%w: %q: %v", ErrParse, raw, err)
		}
		if u.Hostname() == "" {
			return model.Candidate{}, fmt.Errorf("%w: %q: empty host", ErrParse, raw)
		}
		return model.Candidate{IP: u.Hostname(), Port: port, Protocol: scheme}, nil
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return model.Candidate{}, fmt.Errorf("%w: %q: want host:port", ErrParse, raw)
	}
	host := strings.TrimSpace(parts[0])
	if host == "" {
		return model.Candidate{}, fmt.Errorf("%w: %q: empty host", ErrParse, raw)
	}
	port, err := parsePort(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.Candidate{}, fmt.Errorf("%w: %q: %v", ErrParse, raw, err)
	}

	return model.Candidate{IP: host, Port: port, Protocol: model.ProtocolHTTP}, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("non-numeric port")
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// ParseAll parses every token, dropping malformed ones. It returns the
// candidates in input order and the number of tokens that failed.
func ParseAll(tokens []string) ([]model.Candidate, int) {
	candidates := make([]model.Candidate, 0, len(tokens))
	failures := 0
	for _, tok := range tokens {
		c, err := ParseToken(tok)
		if err != nil {
			failures++
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, failures
}
