// Package camera provides an HTTP interface to an Andor camera session
package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
	"github.com/nasa-jpl/andor3ctl/generichttp"
	"github.com/nasa-jpl/andor3ctl/session"
)

const (
	// KindBadRequest is the Outcome kind of a request the server could not parse
	KindBadRequest = "BadRequest"

	// KindRateLimited is the Outcome kind of a search refused by the rate limit
	KindRateLimited = "RateLimited"
)

// Outcome is the human readable result of an action
type Outcome struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// FeatureOutcome is the result of one feature write in a configuration pass
type FeatureOutcome struct {
	Feature string      `json:"feature"`
	Kind    sdk3.Kind   `json:"kind"`
	Value   interface{} `json:"value"`
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
}

type configResponse struct {
	Outcome
	Features []FeatureOutcome `json:"features"`
}

type captureResponse struct {
	Outcome
	ID        string    `json:"id"`
	Timestamp uint64    `json:"timestamp"`
	Received  time.Time `json:"received"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

type searchResponse struct {
	Outcome
	Session string `json:"session,omitempty"`
}

// StatusFor maps an error from a session to an HTTP status code
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var cfg *session.ConfigError
	if errors.As(err, &cfg) && len(cfg.Failures) > 0 {
		for _, f := range cfg.Failures {
			if !clientError(f) {
				return http.StatusBadGateway
			}
		}
		return http.StatusBadRequest
	}
	if clientError(err) {
		return http.StatusBadRequest
	}
	switch session.KindOf(err) {
	case session.KindNotInitialized:
		return http.StatusConflict
	case session.KindCaptureTimeout:
		return http.StatusGatewayTimeout
	case "":
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// clientError is true when err was caused by the request rather than the camera
func clientError(err error) bool {
	var unk *session.UnknownFeatureError
	return errors.As(err, &unk) || errors.Is(err, session.ErrValueType) || errors.Is(err, session.ErrNotAssignable)
}

func outcome(err error, success string) Outcome {
	if err != nil {
		return Outcome{OK: false, Kind: session.KindOf(err), Message: err.Error()}
	}
	return Outcome{OK: true, Message: success}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response to json %q", err)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, Outcome{Kind: KindBadRequest, Message: err.Error()})
}

func featureOutcomes(r session.ConfigReport) []FeatureOutcome {
	out := make([]FeatureOutcome, len(r.Results))
	for i, res := range r.Results {
		out[i] = FeatureOutcome{Feature: res.Feature, Kind: res.Kind, Value: res.Value, OK: res.Err == nil}
		if res.Err != nil {
			out[i].Message = res.Err.Error()
		}
	}
	return out
}

// HTTPSession provides an HTTP interface to a camera session
type HTTPSession struct {
	// S is the session being wrapped
	S *session.Session

	RouteTable generichttp.RouteTable

	search *rate.Limiter
}

// NewHTTPSession returns a new wrapper with the route table populated.
// searchRate bounds POST /search in calls per second; zero or less disables the limit
func NewHTTPSession(s *session.Session, searchRate float64) *HTTPSession {
	h := &HTTPSession{S: s}
	if searchRate > 0 {
		h.search = rate.NewLimiter(rate.Limit(searchRate), 1)
	}
	h.RouteTable = generichttp.RouteTable{
		// the four actions
		{Method: http.MethodPost, Path: "/search"}:        h.Search,
		{Method: http.MethodPost, Path: "/capture/start"}: h.StartCapture,
		{Method: http.MethodPost, Path: "/capture/stop"}:  h.StopCapture,
		{Method: http.MethodGet, Path: "/capture"}:        h.CaptureImage,

		// configuration
		{Method: http.MethodPost, Path: "/configure"}:         h.Configure,
		{Method: http.MethodGet, Path: "/settings"}:           h.GetSettings,
		{Method: http.MethodGet, Path: "/feature"}:            h.GetFeatures,
		{Method: http.MethodPost, Path: "/feature/{feature}"}: h.SetFeature,

		// lifecycle
		{Method: http.MethodGet, Path: "/state"}:  h.GetState,
		{Method: http.MethodPost, Path: "/close"}: h.Close,
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPSession) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Search finds and opens the camera
func (h *HTTPSession) Search(w http.ResponseWriter, r *http.Request) {
	if h.search != nil && !h.search.Allow() {
		writeJSON(w, http.StatusTooManyRequests, Outcome{
			Kind:    KindRateLimited,
			Message: "camera search was requested too often, try again later"})
		return
	}
	err := h.S.Search()
	resp := searchResponse{Outcome: outcome(err, "camera found and initialized")}
	if err == nil {
		resp.Session = h.S.ID()
	}
	writeJSON(w, StatusFor(err), resp)
}

// StartCapture configures the camera and starts acquisition
func (h *HTTPSession) StartCapture(w http.ResponseWriter, r *http.Request) {
	report, err := h.S.StartCapture()
	writeJSON(w, StatusFor(err), configResponse{
		Outcome:  outcome(err, "capture started"),
		Features: featureOutcomes(report),
	})
}

// StopCapture stops acquisition
func (h *HTTPSession) StopCapture(w http.ResponseWriter, r *http.Request) {
	err := h.S.StopCapture()
	writeJSON(w, StatusFor(err), outcome(err, "capture stopped"))
}

// Configure applies the configured settings without starting acquisition
func (h *HTTPSession) Configure(w http.ResponseWriter, r *http.Request) {
	report, err := h.S.Configure()
	writeJSON(w, StatusFor(err), configResponse{
		Outcome:  outcome(err, "camera configured"),
		Features: featureOutcomes(report),
	})
}

// CaptureImage waits for one frame and returns it.
//
// the format is given by the fmt query parameter, one of json (default), png, or fits.
// json returns only the frame's identity and geometry, png a 16-bit grayscale image,
// and fits a 16-bit image with session and capture cards in its header.
func (h *HTTPSession) CaptureImage(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "json"
	}
	switch format {
	case "json", "png", "fits":
	default:
		badRequest(w, fmt.Errorf("format %q not understood, use one of json, png, fits", format))
		return
	}

	res, err := h.S.CaptureImage()
	if err != nil {
		writeJSON(w, StatusFor(err), outcome(err, ""))
		return
	}

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, captureResponse{
			Outcome:   outcome(nil, "image captured"),
			ID:        res.ID.String(),
			Timestamp: res.Timestamp,
			Received:  res.Received,
			Width:     res.Width,
			Height:    res.Height,
		})
	case "png":
		buf := &bytes.Buffer{}
		if err := png.Encode(buf, Gray16(res)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		io.Copy(w, buf)
	case "fits":
		cards := []fitsio.Card{
			{Name: "SESSION", Value: h.S.ID(), Comment: "camera session id"},
			{Name: "CAPTURE", Value: res.ID.String(), Comment: "capture id"},
			{Name: "TICKS", Value: int64(res.Timestamp), Comment: "device timestamp clock"},
			{Name: "DATE-OBS", Value: res.Received.UTC().Format("2006-01-02T15:04:05.000"), Comment: "time frame was received"},
		}
		buf := &bytes.Buffer{}
		if err := writeFits(buf, cards, res.Pix, res.Width, res.Height); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.fits", res.ID))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, buf)
	}
}

// Gray16 converts a capture to a 16-bit grayscale image
func Gray16(res session.CaptureResult) *image.Gray16 {
	im := image.NewGray16(image.Rect(0, 0, res.Width, res.Height))
	for y, row := range res.Pix {
		for x, v := range row {
			i := im.PixOffset(x, y)
			im.Pix[i] = uint8(v >> 8)
			im.Pix[i+1] = uint8(v)
		}
	}
	return im
}

// GetState returns the session state as json {'str': state}
func (h *HTTPSession) GetState(w http.ResponseWriter, r *http.Request) {
	generichttp.GetString(func() (string, error) {
		return h.S.State().String(), nil
	})(w, r)
}

// GetFeatures returns the feature registry, a map of feature name to kind
func (h *HTTPSession) GetFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sdk3.Features)
}

// GetSettings returns the ordered settings Configure applies
func (h *HTTPSession) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.S.Settings())
}

// decodeValue reads the json payload matching kind from the body:
// {'int'}, {'f64'}, {'bool'}, or {'str'}.  Commands take no payload
func decodeValue(body io.Reader, kind sdk3.Kind) (interface{}, error) {
	dec := json.NewDecoder(body)
	switch kind {
	case sdk3.Integer:
		i := generichttp.IntT{}
		err := dec.Decode(&i)
		return i.Int, err
	case sdk3.FloatingPoint:
		f := generichttp.FloatT{}
		err := dec.Decode(&f)
		return f.F64, err
	case sdk3.Boolean:
		b := generichttp.BoolT{}
		err := dec.Decode(&b)
		return b.Bool, err
	case sdk3.String, sdk3.Enumerated:
		s := generichttp.StrT{}
		err := dec.Decode(&s)
		return s.Str, err
	}
	return nil, nil
}

// SetFeature sets one feature, the payload type of which is determined by the feature's kind
func (h *HTTPSession) SetFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	defer r.Body.Close()
	var value interface{}
	if kind, err := sdk3.Lookup(feature); err == nil {
		value, err = decodeValue(r.Body, kind)
		if err != nil {
			badRequest(w, err)
			return
		}
	}
	// unknown features still go to the session, which reports them in its own terms
	err := h.S.SetFeature(feature, value)
	writeJSON(w, StatusFor(err), outcome(err, fmt.Sprintf("%s set to %v", feature, value)))
}

// Close releases the camera
func (h *HTTPSession) Close(w http.ResponseWriter, r *http.Request) {
	err := h.S.Close()
	writeJSON(w, StatusFor(err), outcome(err, "camera released"))
}
