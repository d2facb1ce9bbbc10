package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Service resolves proxy IPs to ISO country codes using a GeoLite2 database.
type Service struct {
	db *geoip2.Reader
}

func New(dbPath string) (*Service, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip db: %w", err)
	}

	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// Country returns the upper-case ISO code for ip. Hostnames are not resolved.
func (s *Service) Country(ip string) (string, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}

	record, err := s.db.Country(addr)
	if err != nil {
		return "", fmt.Errorf("geoip lookup failed: %w", err)
	}

	return strings.ToUpper(record.Country.IsoCode), nil
}
