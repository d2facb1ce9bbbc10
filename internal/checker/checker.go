package checker

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"proxypool/internal/model"
)

const (
	DefaultTargetURL = "https://httpbin.org/ip"
	DefaultTimeout   = 10 * time.Second

	maxResponseBodyLength = 4096
)

// UserAgents are picked at random for each check.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

type CheckResult struct {
	Alive      bool
	Latency    time.Duration
	StatusCode int
}

type Checker struct {
	TargetURL string
	Timeout   time.Duration
}

func NewChecker(targetURL string, timeout time.Duration) *Checker {
	if targetURL == "" {
		targetURL = DefaultTargetURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		TargetURL: targetURL,
		Timeout:   timeout,
	}
}

// Check validates the proxy by requesting the target URL through it.
// Only a 200 within the timeout counts as alive.
func (c *Checker) Check(ctx context.Context, p model.Candidate) (*CheckResult, error) {
	transport, err := newTransport(p, c.Timeout)
	if err != nil {
		return nil, err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}

	// Create a new context with timeout for the request
	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.TargetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bad request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgents[rand.IntN(len(UserAgents))])
	req.Header.Set("Connection", "close")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		// We return Alive: false instead of error to indicate "checked but failed"
		return &CheckResult{Alive: false}, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyLength))

	latency := time.Since(start)

	if resp.StatusCode == http.StatusOK {
		return &CheckResult{
			Alive:      true,
			Latency:    latency,
			StatusCode: resp.StatusCode,
		}, nil
	}

	return &CheckResult{Alive: false, StatusCode: resp.StatusCode}, nil
}
