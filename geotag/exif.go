package geotag

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"
)

// ErrDecode is returned when the bytes are not a readable image.
var ErrDecode = errors.New("geotag: image could not be decoded")

// Status describes how far extraction got for a decodable image.
type Status string

const (
	StatusFound                Status = "found"
	StatusNoMetadata           Status = "no_metadata"
	StatusNoGPS                Status = "no_gps"
	StatusCoordinatesMalformed Status = "coordinates_malformed"
)

const unknown = "unknown"

// DefaultMaxPixels is the largest declared image size, in pixels, that is decoded.
const DefaultMaxPixels = 50_000_000

// maxOpaqueLen bounds UNDEFINED-typed values kept in device info.
const maxOpaqueLen = 64

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapsURL links the coordinate to a Google Maps query.
func (c Coordinate) MapsURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", c.Lat, c.Lon)
}

// Report is the outcome of reading one image.
type Report struct {
	Status   Status            `json:"status"`
	Device   map[string]string `json:"device"`
	Location *Coordinate       `json:"location,omitempty"`

	img image.Image
}

// Make returns the camera manufacturer or "unknown".
func (r *Report) Make() string {
	return r.deviceField(string(exif.Make))
}

// Model returns the camera model or "unknown".
func (r *Report) Model() string {
	return r.deviceField(string(exif.Model))
}

// Image is the decoded picture, kept for previews.
func (r *Report) Image() image.Image {
	return r.img
}

func (r *Report) deviceField(name string) string {
	if v := strings.TrimSpace(r.Device[name]); v != "" {
		return v
	}
	return unknown
}

func init() {
	// Register manufacturer-specific note parsers so some vendor fields decode correctly.
	exif.RegisterParsers(mknote.All...)
}

// Extract reads device info and GPS location from raw image bytes, refusing
// images larger than DefaultMaxPixels.
func Extract(data []byte) (*Report, error) {
	return ExtractWithLimit(data, DefaultMaxPixels)
}

// ExtractWithLimit is Extract with a cap on the declared width*height, checked
// before any pixel buffer is allocated. Only an undecodable or oversized
// container is an error; missing or broken metadata is reported through
// Report.Status.
func ExtractWithLimit(data []byte, maxPixels int64) (*Report, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d image", ErrDecode, cfg.Width, cfg.Height)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrDecode, cfg.Width, cfg.Height, px, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	out := &Report{
		Status: StatusNoMetadata,
		Device: map[string]string{},
		img:    img,
	}
	readMetadata(data, out)
	return out, nil
}

// readMetadata fills out from the EXIF block of data. The block is checked
// before decoding; a block that fails the check counts as no metadata.
func readMetadata(data []byte, out *Report) {
	defer func() {
		// goexif panics on some corrupt values
		if r := recover(); r != nil {
			out.Status = StatusNoMetadata
			out.Device = map[string]string{}
			out.Location = nil
		}
	}()

	block := exifBlock(data)
	if block == nil || checkTIFF(block) != nil {
		return
	}

	x, err := exif.Decode(bytes.NewReader(block))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return
	}

	w := &deviceWalker{device: out.Device}
	if werr := x.Walk(w); werr != nil || w.fields == 0 {
		out.Device = map[string]string{}
		return
	}

	if !w.hasGPS {
		out.Status = StatusNoGPS
		return
	}

	lat, latOK := ConvertToDegrees(dmsValues(x, exif.GPSLatitude))
	lon, lonOK := ConvertToDegrees(dmsValues(x, exif.GPSLongitude))
	if !latOK || !lonOK {
		out.Status = StatusCoordinatesMalformed
		return
	}

	c := ApplyHemisphere(lat, lon, refValue(x, exif.GPSLatitudeRef), refValue(x, exif.GPSLongitudeRef))
	out.Status = StatusFound
	out.Location = &c
}

// ExtractLocation returns the signed coordinate, or nil when the image has none.
func ExtractLocation(data []byte) (*Coordinate, error) {
	r, err := Extract(data)
	if err != nil {
		return nil, err
	}
	return r.Location, nil
}

// ExtractDeviceInfo returns the named non-GPS tags of the image.
func ExtractDeviceInfo(data []byte) (map[string]string, error) {
	r, err := Extract(data)
	if err != nil {
		return nil, err
	}
	return r.Device, nil
}

// deviceWalker collects tag names into a flat map and notes whether the GPS
// sub-IFD contributed any field.
type deviceWalker struct {
	device map[string]string
	fields int
	hasGPS bool
}

func (w *deviceWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w.fields++
	n := string(name)
	if n == string(exif.GPSInfoIFDPointer) {
		return nil
	}
	if strings.HasPrefix(n, "GPS") {
		w.hasGPS = true
		return nil
	}
	if name == exif.MakerNote {
		return nil
	}

	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			w.device[n] = strings.TrimSpace(s)
		}
	case tiff.UndefVal:
		if len(tag.Val) <= maxOpaqueLen {
			w.device[n] = tag.String()
		}
	default:
		w.device[n] = tag.String()
	}
	return nil
}

func refValue(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}
