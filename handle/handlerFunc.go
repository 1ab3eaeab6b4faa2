package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"photoTracker/geotag"
	"photoTracker/iplookup"
	"photoTracker/utils"
)

const version = "0.1.0"

// Handler carries what the routes need. It holds no per-request state.
type Handler struct {
	Lookup         iplookup.Provider
	MaxUploadBytes int64
	// MaxPixels caps the declared size of uploaded images; zero means geotag.DefaultMaxPixels.
	MaxPixels      int64
}

type apiError struct {
	Error string `json:"error"`
}

type healthResp struct {
	Ok        bool      `json:"ok"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type locationResp struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	MapsURL string  `json:"mapsUrl"`
}

type photoResp struct {
	Status   geotag.Status     `json:"status"`
	Message  string            `json:"message"`
	Make     string            `json:"make"`
	Model    string            `json:"model"`
	Device   map[string]string `json:"device"`
	Location *locationResp     `json:"location,omitempty"`
}

type ipResp struct {
	*iplookup.Result
	MapsURL string `json:"mapsUrl"`
}

// uploadError carries the HTTP status for a rejected upload.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// health answers load balancer checks.
func health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var healthCheck = "{\"status\": \"UP\"}"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(healthCheck))
	})
}

func (h *Handler) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResp{Ok: true, Version: version, Timestamp: time.Now()})
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode != modeIP {
		mode = modePhoto
	}
	h.renderPage(w, r, http.StatusOK, pageData{Mode: mode})
}

func (h *Handler) photoForm(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		var ue *uploadError
		errors.As(err, &ue)
		h.renderPage(w, r, ue.status, pageData{
			Mode:  modePhoto,
			Photo: &photoView{Level: "error", Message: ue.msg},
		})
		return
	}

	report, err := geotag.ExtractWithLimit(data, h.MaxPixels)
	if err != nil {
		utils.Logger(r.Context()).WithError(err).WithField("file", name).Info("upload is not a readable image")
		h.renderPage(w, r, http.StatusUnprocessableEntity, pageData{Mode: modePhoto, Photo: newPhotoView(name, len(data), nil)})
		return
	}
	h.renderPage(w, r, http.StatusOK, pageData{Mode: modePhoto, Photo: newPhotoView(name, len(data), report)})
}

func (h *Handler) ipForm(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.PostFormValue("ip"))
	res, err := h.Lookup.Lookup(r.Context(), query)
	status := http.StatusOK
	if err != nil {
		status, _ = lookupErrorStatus(err)
	}
	h.renderPage(w, r, status, pageData{Mode: modeIP, IP: newIPView(query, res, err)})
}

func (h *Handler) apiPhoto(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		var ue *uploadError
		errors.As(err, &ue)
		writeError(w, r, ue.status, ue.msg)
		return
	}

	report, err := geotag.ExtractWithLimit(data, h.MaxPixels)
	if err != nil {
		utils.Logger(r.Context()).WithError(err).WithField("file", name).Info("upload is not a readable image")
		writeError(w, r, http.StatusUnprocessableEntity, decodeFailureMessage)
		return
	}

	resp := photoResp{
		Status:  report.Status,
		Message: statusMessages[report.Status].text,
		Make:    report.Make(),
		Model:   report.Model(),
		Device:  report.Device,
	}
	if c := report.Location; c != nil {
		resp.Location = &locationResp{Lat: c.Lat, Lon: c.Lon, MapsURL: c.MapsURL()}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) apiIP(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	res, err := h.Lookup.Lookup(r.Context(), ip)
	if err != nil {
		status, msg := lookupErrorStatus(err)
		writeError(w, r, status, msg)
		return
	}
	writeJSON(w, r, http.StatusOK, ipResp{Result: res, MapsURL: res.MapsURL()})
}

// readUpload returns the name and bytes of the "photo" form file.
// Errors are always *uploadError.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	if r.ContentLength > h.MaxUploadBytes {
		return "", nil, tooLarge(h.MaxUploadBytes)
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, tooLarge(h.MaxUploadBytes)
		}
		return "", nil, &uploadError{http.StatusBadRequest, "expected a multipart form with a photo file"}
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		return "", nil, &uploadError{http.StatusBadRequest, "no photo uploaded"}
	}
	defer file.Close()

	if !isAcceptedExt(header.Filename) {
		return "", nil, &uploadError{http.StatusUnsupportedMediaType, "only .jpg, .jpeg and .png files are accepted"}
	}

	data, err := io.ReadAll(io.LimitReader(file, h.MaxUploadBytes+1))
	if err != nil {
		return "", nil, &uploadError{http.StatusBadRequest, "could not read upload"}
	}
	if int64(len(data)) > h.MaxUploadBytes {
		return "", nil, tooLarge(h.MaxUploadBytes)
	}
	return filepath.Base(header.Filename), data, nil
}

func tooLarge(limit int64) *uploadError {
	return &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("photo is larger than %d bytes", limit)}
}

func isAcceptedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// lookupErrorStatus maps a lookup error to an HTTP status and a user-facing message.
func lookupErrorStatus(err error) (int, string) {
	var se *iplookup.StatusError
	switch {
	case errors.Is(err, iplookup.ErrInvalidIP):
		return http.StatusBadRequest, "Enter a valid IP address."
	case errors.As(err, &se):
		return http.StatusNotFound, "Invalid or unregistered IP."
	case errors.Is(err, iplookup.ErrRateLimited):
		return http.StatusTooManyRequests, "The lookup service is rate limiting requests, try again shortly."
	default:
		return http.StatusBadGateway, "Could not reach the lookup service."
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger(r.Context()).WithError(err).Error("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, apiError{Error: msg})
}
