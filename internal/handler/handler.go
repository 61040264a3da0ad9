// Package handler provides the HTTP endpoints of the icokit conversion
// service: encoding images into ICO containers, decoding ICO containers
// into a single image, and inspecting container directories.
package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"icokit/internal/fetch"
	"icokit/internal/ico"
	imgpkg "icokit/internal/image"
	"icokit/pkg/logger"
	"icokit/pkg/metrics"
)

// Config holds the collaborators and HTTP caching settings shared by the
// handlers.
type Config struct {
	Codec *ico.Codec
	// Fetcher enables the url query parameter. Nil disables remote sources.
	Fetcher      *fetch.Client
	MaxBodyBytes int64

	DefaultSize  ico.SizeRequest
	DefaultStack bool
	// DecodeFormat is used when neither ?format= nor Accept picks one.
	DecodeFormat string

	BrowserMaxAge time.Duration
	UseETag       bool
}

// NewConfig returns a Config with the service defaults.
func NewConfig(codec *ico.Codec, fetcher *fetch.Client) *Config {
	return &Config{
		Codec:         codec,
		Fetcher:       fetcher,
		MaxBodyBytes:  4 << 20,
		DefaultSize:   256,
		DefaultStack:  true,
		DecodeFormat:  "png",
		BrowserMaxAge: 24 * time.Hour,
		UseETag:       true,
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux(cfg *Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/encode", EncodeHandler(cfg))
	mux.HandleFunc("POST /v1/decode", DecodeHandler(cfg))
	mux.HandleFunc("POST /v1/inspect", InspectHandler(cfg))
	mux.HandleFunc("GET /healthz", HealthHandler())
	mux.Handle("GET /metrics", metrics.Get().Handler())
	return mux
}

// EncodeHandler converts a source image into an ICO container.
//
// Query parameters:
//   - size: "all" or one of 16, 32, 48, 64, 128, 256 (default from config)
//   - stack: include every standard size up to size
//   - url: fetch the source instead of reading the body
//
// An ICO source is decoded to its best entry first. Unrecognized numeric
// sizes fall back to 32×32.
func EncodeHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req := cfg.DefaultSize
		if s := q.Get("size"); s != "" {
			parsed, err := ico.ParseSizeRequest(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", err)
				return
			}
			req = parsed
		}
		stack := cfg.DefaultStack
		if s := q.Get("stack"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", errors.New("stack must be a boolean"))
				return
			}
			stack = b
		}

		body, ok := readInput(w, r, cfg)
		if !ok {
			return
		}

		src, err := decodeSource(r, cfg, body)
		if err != nil {
			writeDecodeError(w, err)
			return
		}

		var out bytes.Buffer
		if err := cfg.Codec.SaveIcon(r.Context(), &out, src, req, stack); err != nil {
			logger.Error("Encode failed: %v", err)
			writeError(w, http.StatusInternalServerError, "encode", errors.New("encode failed"))
			return
		}
		serveBytes(w, r, out.Bytes(), imgpkg.ContentTypeFor("ico"), cfg)
	}
}

func decodeSource(r *http.Request, cfg *Config, body []byte) (image.Image, error) {
	if imgpkg.LooksLikeICO(body) {
		return cfg.Codec.LoadIcon(r.Context(), bytes.NewReader(body))
	}
	img, format, err := imgpkg.DecodeSource(body)
	if err != nil {
		return nil, err
	}
	logger.Debug("Decoded %s source %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

// DecodeHandler returns the best entry of an ICO container as PNG, WebP or
// AVIF. ?format= wins over Accept, which wins over the configured default.
func DecodeHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(r.URL.Query().Get("format"))
		switch format {
		case "":
			format = pickFormatByAccept(r.Header.Get("Accept"), cfg.DecodeFormat)
		case "png", "webp", "avif":
		default:
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("format must be png, webp or avif"))
			return
		}

		body, ok := readInput(w, r, cfg)
		if !ok {
			return
		}

		img, err := cfg.Codec.LoadIcon(r.Context(), bytes.NewReader(body))
		if err != nil {
			writeDecodeError(w, err)
			return
		}

		data, ct := imgpkg.EncodeByFormat(img, format)
		if len(data) == 0 {
			writeError(w, http.StatusInternalServerError, "encode", errors.New("output encoding failed"))
			return
		}
		serveBytes(w, r, data, ct, cfg)
	}
}

// InspectHandler returns a JSON report of a container's directory and the
// decode outcome of every entry.
func InspectHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readInput(w, r, cfg)
		if !ok {
			return
		}
		rep, err := cfg.Codec.Inspect(r.Context(), bytes.NewReader(body))
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readInput returns the request body, or the body of ?url= when a fetcher
// is configured. On failure it has already written the response.
func readInput(w http.ResponseWriter, r *http.Request, cfg *Config) ([]byte, bool) {
	if u := strings.TrimSpace(r.URL.Query().Get("url")); u != "" {
		if cfg.Fetcher == nil {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("remote sources are disabled"))
			return nil, false
		}
		res, err := cfg.Fetcher.Get(r.Context(), u)
		if err != nil {
			logger.Warn("Fetch of %s failed: %v", u, err)
			writeError(w, http.StatusBadGateway, "fetch", err)
			return nil, false
		}
		return res.Body, true
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("empty request body"))
		return nil, false
	}
	return body, true
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var (
		fe *ico.FormatError
		nd *ico.NoDecodableImageError
	)
	switch {
	case errors.As(err, &fe):
		writeError(w, http.StatusUnprocessableEntity, "format", err)
	case errors.As(err, &nd):
		writeError(w, http.StatusUnprocessableEntity, "no_decodable_image", err)
	case errors.Is(err, imgpkg.ErrICOSource):
		writeError(w, http.StatusUnprocessableEntity, "format", err)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_source", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	metrics.Get().IncError(kind)
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Writing JSON response failed: %v", err)
	}
}

func serveBytes(w http.ResponseWriter, r *http.Request, body []byte, contentType string, cfg *Config) {
	w.Header().Set("Vary", "Accept")

	etag := makeETag(body)
	if cfg.UseETag {
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
			w.Header().Set("ETag", etag)
			setCacheHeaders(w, cfg)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	setCacheHeaders(w, cfg)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func pickFormatByAccept(accept, fallback string) string {
	accept = strings.ToLower(accept)
	// AVIF has better compression, prioritize it
	if strings.Contains(accept, "image/avif") {
		return "avif"
	}
	if strings.Contains(accept, "image/webp") {
		return "webp"
	}
	if strings.Contains(accept, "image/png") {
		return "png"
	}
	if fallback == "" {
		return "png"
	}
	return fallback
}

func makeETag(b []byte) string {
	s := sha256.Sum256(b)
	return "\"" + hex.EncodeToString(s[:16]) + "\""
}

// setCacheHeaders marks responses private: they derive from request bodies.
func setCacheHeaders(w http.ResponseWriter, cfg *Config) {
	sec := int(cfg.BrowserMaxAge.Seconds())
	if sec <= 0 {
		sec = 86400
	}
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(sec))
	w.Header().Set("Expires", time.Now().Add(time.Duration(sec)*time.Second).UTC().Format(http.TimeFormat))
}
