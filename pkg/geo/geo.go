// Package geo resolves visitor IP addresses to a coarse location.
package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

type Location struct {
	Country string `json:"country"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Locator returns nil without error when the address has no known location.
type Locator interface {
	Lookup(ip string) (*Location, error)
}

type MaxMindLocator struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

func (l *MaxMindLocator) Lookup(ip string) (*Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return nil, nil
	}

	record, err := l.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}
	if record.Country.IsoCode == "" {
		return nil, nil
	}

	loc := &Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc, nil
}

func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// NopLocator is used when no geo database is configured.
type NopLocator struct{}

func (NopLocator) Lookup(string) (*Location, error) {
	return nil, nil
}

// StaticLocator serves fixed answers, keyed by IP.
type StaticLocator map[string]Location

func (s StaticLocator) Lookup(ip string) (*Location, error) {
	if loc, ok := s[ip]; ok {
		return &loc, nil
	}
	return nil, nil
}
