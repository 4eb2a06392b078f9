// Package geoip resolves the country of a client address from a MaxMind
// database. Without a database every lookup is empty.
package geoip

import (
	"log/slog"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

type reader interface {
	Lookup(ip net.IP, result any) error
	Close() error
}

type Resolver struct {
	db reader
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// New opens the database at dbPath. A missing or unreadable file disables
// lookups instead of failing startup.
func New(dbPath string) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, country lookup disabled", "path", dbPath, "error", err)
		return &Resolver{}
	}
	slog.Info("geoip: loaded database", "path", dbPath)
	return &Resolver{db: db}
}

// Country returns the ISO code for addr, which may carry a port.
func (r *Resolver) Country(addr string) string {
	if r == nil || r.db == nil {
		return ""
	}
	ip := parseIP(addr)
	if ip == nil {
		return ""
	}
	var rec countryRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func parseIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(strings.Trim(addr, "[]"))
}
