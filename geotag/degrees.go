package geotag

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ConvertToDegrees turns a degrees/minutes/seconds triple into decimal degrees.
// It reports false when fewer than three elements are given, when any of the
// first three is not a number, or when the result is not finite.
func ConvertToDegrees(dms []interface{}) (float64, bool) {
	if len(dms) < 3 {
		return 0, false
	}
	var parts [3]float64
	for i := range parts {
		f, ok := toFloat(dms[i])
		if !ok {
			return 0, false
		}
		parts[i] = f
	}
	deg := parts[0] + parts[1]/60.0 + parts[2]/3600.0
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, false
	}
	return deg, true
}

// ApplyHemisphere signs a latitude/longitude pair from its reference tags.
// Anything other than "N" (or "E") is taken as the southern (or western) half,
// including an empty reference.
func ApplyHemisphere(lat, lon float64, latRef, lonRef string) Coordinate {
	if latRef != "N" {
		lat = -lat
	}
	if lonRef != "E" {
		lon = -lon
	}
	return Coordinate{Lat: lat, Lon: lon}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *big.Rat:
		if n == nil {
			return 0, false
		}
		f, _ := n.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// dmsValues decodes every element of a GPS coordinate tag. Rationals with a
// zero denominator come back as nil so the conversion rejects them.
func dmsValues(x *exif.Exif, name exif.FieldName) []interface{} {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}

	if tag.Format() == tiff.StringVal {
		s, _ := tag.StringVal()
		return []interface{}{s}
	}

	out := make([]interface{}, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		switch tag.Format() {
		case tiff.RatVal:
			num, den, err := tag.Rat2(i)
			if err != nil || den == 0 {
				out = append(out, nil)
				continue
			}
			out = append(out, big.NewRat(num, den))
		case tiff.IntVal:
			v, err := tag.Int64(i)
			if err != nil {
				out = append(out, nil)
				continue
			}
			out = append(out, v)
		case tiff.FloatVal:
			v, err := tag.Float(i)
			if err != nil {
				out = append(out, nil)
				continue
			}
			out = append(out, v)
		default:
			out = append(out, nil)
		}
	}
	return out
}
