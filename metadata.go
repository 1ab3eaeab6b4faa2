package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"photoTracker/geotag"
	"photoTracker/iplookup"
)

type photoReport struct {
	File     string             `json:"file"`
	Status   string             `json:"status"`
	Make     string             `json:"make"`
	Model    string             `json:"model"`
	Device   map[string]string  `json:"device"`
	Location *geotag.Coordinate `json:"location,omitempty"`
	MapsURL  string             `json:"mapsUrl,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// BuildPhotoReportJSON reads the photo at path and returns its report as an
// indented JSON object. Images declaring more than maxPixels are refused. An unreadable image is reported in the "error" field
// rather than returned, so the caller always has something to print.
func BuildPhotoReportJSON(path string, maxPixels int64) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	out := photoReport{File: path, Device: map[string]string{}}
	report, err := geotag.ExtractWithLimit(data, maxPixels)
	switch {
	case errors.Is(err, geotag.ErrDecode):
		out.Status = "decode_failed"
		out.Error = "not a readable image, no metadata available"
	case err != nil:
		return "", err
	default:
		out.Status = string(report.Status)
		out.Make, out.Model = report.Make(), report.Model()
		out.Device = report.Device
		if report.Location != nil {
			out.Location = report.Location
			out.MapsURL = report.Location.MapsURL()
		}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(b), nil
}

// lookupReportJSON renders a lookup outcome; failures become {"status":"fail",...}.
func lookupReportJSON(res *iplookup.Result, err error) string {
	var v interface{}
	if err != nil {
		v = map[string]string{"status": "fail", "error": err.Error()}
	} else {
		v = struct {
			*iplookup.Result
			MapsURL string `json:"mapsUrl"`
		}{res, res.MapsURL()}
	}
	b, mErr := json.MarshalIndent(v, "", "  ")
	if mErr != nil {
		return "{}"
	}
	return string(b)
}
