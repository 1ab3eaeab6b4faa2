package handle

import (
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"

	"github.com/dustin/go-humanize"

	"photoTracker/geotag"
	"photoTracker/iplookup"
	"photoTracker/utils"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	modePhoto = "photo"
	modeIP    = "ip"
)

type pageData struct {
	Mode      string
	MaxUpload string
	Photo     *photoView
	IP        *ipView
}

type photoView struct {
	FileName    string
	Size        string
	PreviewURI  template.URL
	HasMetadata bool
	Make        string
	Model       string
	Location    *geotag.Coordinate
	MapEmbed    string
	Level       string
	Message     string
}

type ipView struct {
	Query    string
	Result   *iplookup.Result
	MapEmbed string
	Error    string
}

// Messages shown for each extraction outcome.
var statusMessages = map[geotag.Status]struct{ level, text string }{
	geotag.StatusFound:                {"success", "Location found"},
	geotag.StatusNoMetadata:           {"error", "No metadata found. Make sure the file is not a screenshot or a re-encoded copy."},
	geotag.StatusNoGPS:                {"warning", "This photo contains no location data (GPS)."},
	geotag.StatusCoordinatesMalformed: {"warning", "GPS coordinates are incomplete or corrupt."},
}

const decodeFailureMessage = "Could not read this file as an image, so no metadata is available."

func newPhotoView(fileName string, size int, r *geotag.Report) *photoView {
	v := &photoView{
		FileName: fileName,
		Size:     humanize.Bytes(uint64(size)),
	}
	if r == nil {
		v.Level, v.Message = "error", decodeFailureMessage
		return v
	}

	msg := statusMessages[r.Status]
	v.Level, v.Message = msg.level, msg.text
	v.HasMetadata = r.Status != geotag.StatusNoMetadata
	v.Make, v.Model = r.Make(), r.Model()
	if r.Location != nil {
		v.Location = r.Location
		v.MapEmbed = osmEmbedURL(r.Location.Lat, r.Location.Lon)
	}
	if img := r.Image(); img != nil {
		if b, err := geotag.Preview(img, geotag.DefaultPreviewSize); err == nil {
			v.PreviewURI = template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b))
		}
	}
	return v
}

func newIPView(query string, res *iplookup.Result, err error) *ipView {
	v := &ipView{Query: query}
	if err != nil {
		_, v.Error = lookupErrorStatus(err)
		return v
	}
	v.Result = res
	v.MapEmbed = osmEmbedURL(res.Lat, res.Lon)
	return v
}

// osmEmbedURL returns an OpenStreetMap embed centred on a single marker.
func osmEmbedURL(lat, lon float64) string {
	const pad = 0.01
	return fmt.Sprintf(
		"https://www.openstreetmap.org/export/embed.html?bbox=%f,%f,%f,%f&layer=mapnik&marker=%f,%f",
		lon-pad, lat-pad, lon+pad, lat+pad, lat, lon,
	)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.MaxUpload = humanize.IBytes(uint64(h.MaxUploadBytes))
	if data.Mode == "" {
		data.Mode = modePhoto
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.ExecuteTemplate(w, "index", data); err != nil {
		utils.Logger(r.Context()).WithError(err).Error("render page")
	}
}
