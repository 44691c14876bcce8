// Package geoip resolves client IP addresses to a country and region for
// report analytics.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP looks addresses up in a MaxMind database, or in a JSON list of CIDR
// ranges when the file is not a MaxMind database. A nil *GeoIP resolves
// nothing.
type GeoIP struct {
	db     *geoip2.Reader
	ranges []cidrRange
}

type cidrRange struct {
	net     *net.IPNet
	country string
	region  string
}

// Init opens the database at path.
func Init(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}
	ranges, jerr := loadRanges(path)
	if jerr != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIP{ranges: ranges}, nil
}

// loadRanges reads a JSON array of {"net","country","region"} entries.
// Malformed CIDRs are skipped.
func loadRanges(path string) ([]cidrRange, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
		Region  string `json:"region"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make([]cidrRange, 0, len(entries))
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			out = append(out, cidrRange{net: n, country: e.Country, region: e.Region})
		}
	}
	return out, nil
}

// Lookup returns the ISO country and subdivision codes of ip. Unknown or
// unparsable addresses yield empty strings.
func (g *GeoIP) Lookup(ip string) (country, region string) {
	parsed := net.ParseIP(ip)
	if g == nil || parsed == nil {
		return "", ""
	}
	if g.db != nil {
		if rec, err := g.db.City(parsed); err == nil {
			country = rec.Country.IsoCode
			if len(rec.Subdivisions) > 0 {
				region = rec.Subdivisions[0].IsoCode
			}
			if country != "" {
				return country, region
			}
		}
		if rec, err := g.db.Country(parsed); err == nil {
			return rec.Country.IsoCode, region
		}
	}
	for _, r := range g.ranges {
		if r.net.Contains(parsed) {
			return r.country, r.region
		}
	}
	return "", ""
}

// Close releases the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
