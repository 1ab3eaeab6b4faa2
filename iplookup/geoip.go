package iplookup

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"photoTracker/utils"
)

const sourceGeoIP = "geoip2"

// GeoIPProvider answers from a local MaxMind City database. ISP is left empty:
// City databases do not carry it.
type GeoIPProvider struct {
	db *geoip2.Reader
}

// OpenGeoIP opens the .mmdb file at path.
func OpenGeoIP(path string) (*GeoIPProvider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %q: %w", path, err)
	}
	return &GeoIPProvider{db: db}, nil
}

func (g *GeoIPProvider) Lookup(ctx context.Context, ip string) (_ *Result, err error) {
	defer utils.TimeOp(ctx, "geoip2.lookup")(&err)

	norm, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	if g == nil || g.db == nil {
		return nil, fmt.Errorf("%w: geoip database not open", ErrLookupFailed)
	}

	record, err := g.db.City(net.ParseIP(norm))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if record.Country.IsoCode == "" && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, &StatusError{Status: "fail", Message: "address not found"}
	}

	return &Result{
		Query:    norm,
		Status:   "success",
		City:     record.City.Names["en"],
		Country:  record.Country.Names["en"],
		Timezone: record.Location.TimeZone,
		Lat:      record.Location.Latitude,
		Lon:      record.Location.Longitude,
		Source:   sourceGeoIP,
	}, nil
}

func (g *GeoIPProvider) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
