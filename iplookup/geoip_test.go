package iplookup

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCityDB writes a GeoIP2-City database holding a single London network.
func writeCityDB(t *testing.T) string {
	t.Helper()
	w, err := mmdbwriter.New(mmdbwriter.Options{DatabaseType: "GeoIP2-City", RecordSize: 24})
	require.NoError(t, err)

	_, network, err := net.ParseCIDR("81.2.69.0/24")
	require.NoError(t, err)
	require.NoError(t, w.Insert(network, mmdbtype.Map{
		"city": mmdbtype.Map{
			"names": mmdbtype.Map{"en": mmdbtype.String("London")},
		},
		"country": mmdbtype.Map{
			"iso_code": mmdbtype.String("GB"),
			"names":    mmdbtype.Map{"en": mmdbtype.String("United Kingdom")},
		},
		"location": mmdbtype.Map{
			"latitude":  mmdbtype.Float64(51.5142),
			"longitude": mmdbtype.Float64(-0.0931),
			"time_zone": mmdbtype.String("Europe/London"),
		},
	}))

	path := filepath.Join(t.TempDir(), "city.mmdb")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = w.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func openCityDB(t *testing.T) *GeoIPProvider {
	t.Helper()
	geo, err := OpenGeoIP(writeCityDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { geo.Close() })
	return geo
}

func TestGeoIPLookup(t *testing.T) {
	geo := openCityDB(t)

	res, err := geo.Lookup(context.Background(), " 81.2.69.160 ")
	require.NoError(t, err)
	assert.Equal(t, &Result{
		Query:    "81.2.69.160",
		Status:   "success",
		City:     "London",
		Country:  "United Kingdom",
		Timezone: "Europe/London",
		Lat:      51.5142,
		Lon:      -0.0931,
		Source:   "geoip2",
	}, res)
	assert.Equal(t, "https://www.google.com/maps?q=51.5142,-0.0931", res.MapsURL())
}

func TestGeoIPLookupNotFound(t *testing.T) {
	geo := openCityDB(t)

	res, err := geo.Lookup(context.Background(), "8.8.8.8")
	assert.Nil(t, res)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "fail", se.Status)
	assert.Equal(t, "address not found", se.Message)
}

func TestChainFallsBackToGeoIP(t *testing.T) {
	geo := openCityDB(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	down := NewClient(srv.URL, time.Second)
	srv.Close()

	res, err := Chain{down, geo}.Lookup(context.Background(), "81.2.69.160")
	require.NoError(t, err)
	assert.Equal(t, "geoip2", res.Source)
	assert.Equal(t, "London", res.City)

	_, err = Chain{down, geo}.Lookup(context.Background(), "8.8.8.8")
	assert.True(t, errors.Is(err, ErrLookupFailed))
}
