package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Protocol types
const (
	ProtocolHTTP   = "http"
	ProtocolHTTPS  = "https"
	ProtocolSOCKS4 = "socks4"
	ProtocolSOCKS5 = "socks5"
)

// Anonymity levels
const (
	AnonymityTransparent = "transparent"
	AnonymityAnonymous   = "anonymous"
	AnonymityElite       = "elite"
)

// A proxy is deactivated once it has failed more than DeactivateMinFailures
// times and its failure ratio exceeds DeactivateFailRatio.
const (
	DeactivateMinFailures = 5
	DeactivateFailRatio   = 0.7
)

// IsKnownProtocol reports whether p is one of the supported proxy protocols.
func IsKnownProtocol(p string) bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
		return true
	}
	return false
}

// Proxy represents a proxy server entity. (IP, Port) is its identity.
type Proxy struct {
	ID              int64      `json:"id"`
	IP              string     `json:"ip"`
	Port            int        `json:"port"`
	Protocol        string     `json:"protocol"`
	Country         string     `json:"country,omitempty"`
	Anonymity       string     `json:"anonymity,omitempty"`
	Latency         *float64   `json:"speed"` // Seconds, last successful check
	SuccessCount    int64      `json:"success_count"`
	FailCount       int64      `json:"fail_count"`
	LastValidatedAt *time.Time `json:"last_checked"`
	LastSelectedAt  *time.Time `json:"last_used"`
	Active          bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Address returns the "ip:port" string.
func (p *Proxy) Address() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// URL returns the full URL representation (e.g., "http://ip:port").
// If protocol is unknown, defaults to http.
func (p *Proxy) URL() string {
	proto := p.Protocol
	if proto == "" {
		proto = ProtocolHTTP
	}
	return fmt.Sprintf("%s://%s:%d", proto, p.IP, p.Port)
}

// SuccessRate returns success/(success+fail), or 0 for an untested proxy.
func (p *Proxy) SuccessRate() float64 {
	return SuccessRate(p.SuccessCount, p.FailCount)
}

// LatencySeconds returns the measured latency, 0 when never measured.
func (p *Proxy) LatencySeconds() float64 {
	if p.Latency == nil {
		return 0
	}
	return *p.Latency
}

// Candidate is a parsed proxy that has not been confirmed working yet.
type Candidate struct {
	IP        string
	Port      int
	Protocol  string
	Country   string
	Anonymity string
}

// Key identifies the candidate's record.
func (c Candidate) Key() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// URL returns "protocol://ip:port", defaulting to http.
func (c Candidate) URL() string {
	proto := strings.ToLower(c.Protocol)
	if proto == "" {
		proto = ProtocolHTTP
	}
	return fmt.Sprintf("%s://%s:%d", proto, c.IP, c.Port)
}

// SuccessRate is success/(success+fail), 0 when both are zero.
func SuccessRate(success, fail int64) float64 {
	total := success + fail
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// ShouldDeactivate applies the inactivation rule to a record's counters.
func ShouldDeactivate(success, fail int64) bool {
	if fail <= DeactivateMinFailures {
		return false
	}
	return float64(fail)/float64(success+fail) > DeactivateFailRatio
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
