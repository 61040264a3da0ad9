package handler

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icokit/internal/fetch"
	"icokit/internal/ico"
	"icokit/internal/security"
	"icokit/pkg/logger"
)

func testConfig() *Config {
	log := logger.New(io.Discard, logger.ERROR)
	cfg := NewConfig(ico.NewCodec(log), nil)
	cfg.MaxBodyBytes = 1 << 20
	return cfg
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xC0
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func icoBody(t *testing.T, sizes ico.SizeSet) []byte {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	data, err := ico.NewCodec(logger.New(io.Discard, logger.ERROR)).EncodeSizes(context.Background(), src, sizes)
	require.NoError(t, err)
	return data
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func recordCount(b []byte) int {
	return int(binary.LittleEndian.Uint16(b[4:6]))
}

func TestEncodeHandler_StackedDefault(t *testing.T) {
	mux := NewMux(testConfig())
	rr := do(t, mux, http.MethodPost, "/v1/encode", pngBody(t, 300, 200), nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/x-icon", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("ETag"))
	assert.Equal(t, 6, recordCount(rr.Body.Bytes()))
}

func TestEncodeHandler_SizeAndStack(t *testing.T) {
	mux := NewMux(testConfig())

	tests := []struct {
		query string
		count int
	}{
		{"?size=64&stack=true", 4},
		{"?size=64&stack=false", 1},
		{"?size=all&stack=false", 6},
		{"?size=100&stack=false", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, mux, http.MethodPost, "/v1/encode"+tt.query, pngBody(t, 64, 64), nil)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, tt.count, recordCount(rr.Body.Bytes()))
		})
	}
}

func TestEncodeHandler_BadParams(t *testing.T) {
	mux := NewMux(testConfig())

	rr := do(t, mux, http.MethodPost, "/v1/encode?size=huge", pngBody(t, 8, 8), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/encode?stack=maybe", pngBody(t, 8, 8), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/encode", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/encode", []byte("not an image at all"), nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestEncodeHandler_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	rr := do(t, NewMux(cfg), http.MethodPost, "/v1/encode", pngBody(t, 32, 32), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestEncodeHandler_ICOSource(t *testing.T) {
	mux := NewMux(testConfig())
	rr := do(t, mux, http.MethodPost, "/v1/encode?size=32&stack=false", icoBody(t, ico.SizeSet{16, 48}), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, recordCount(rr.Body.Bytes()))
}

func TestDecodeHandler_PNG(t *testing.T) {
	mux := NewMux(testConfig())
	rr := do(t, mux, http.MethodPost, "/v1/decode", icoBody(t, ico.SizeSet{16, 32, 48}), nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Accept", rr.Header().Get("Vary"))

	img, err := png.Decode(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
}

func TestDecodeHandler_ETagNotModified(t *testing.T) {
	mux := NewMux(testConfig())
	body := icoBody(t, ico.SizeSet{16})

	first := do(t, mux, http.MethodPost, "/v1/decode?format=png", body, nil)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := do(t, mux, http.MethodPost, "/v1/decode?format=png", body, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.Bytes())
}

func TestDecodeHandler_Errors(t *testing.T) {
	mux := NewMux(testConfig())

	rr := do(t, mux, http.MethodPost, "/v1/decode?format=tiff", icoBody(t, ico.SizeSet{16}), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPost, "/v1/decode", []byte{0, 0, 1}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &eb))
	assert.Equal(t, "format", eb.Kind)

	// One record pointing past the end of the stream.
	broken := []byte{0, 0, 1, 0, 1, 0, 16, 16, 0, 0, 0, 0, 32, 0, 100, 0, 0, 0, 22, 0, 0, 0}
	rr = do(t, mux, http.MethodPost, "/v1/decode", broken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &eb))
	assert.Equal(t, "no_decodable_image", eb.Kind)
}

func TestInspectHandler(t *testing.T) {
	mux := NewMux(testConfig())
	rr := do(t, mux, http.MethodPost, "/v1/inspect", icoBody(t, ico.SizeSet{16, 256}), nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rep ico.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.EqualValues(t, 2, rep.Count)
	assert.Equal(t, 1, rep.Best)
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, 256, rep.Entries[1].Width)
	assert.Equal(t, "png", rep.Entries[1].Encoding)
}

func TestOversizedPayloadHeader(t *testing.T) {
	data := icoBody(t, ico.SizeSet{16})
	// Claim 20000x20000 in the embedded PNG's IHDR.
	ihdr := data[22+8:]
	binary.BigEndian.PutUint32(ihdr[8:12], 20000)
	binary.BigEndian.PutUint32(ihdr[12:16], 20000)
	binary.BigEndian.PutUint32(ihdr[21:25], crc32.ChecksumIEEE(ihdr[4:21]))

	mux := NewMux(testConfig())
	rr := do(t, mux, http.MethodPost, "/v1/decode", data, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_decodable_image")

	rr = do(t, mux, http.MethodPost, "/v1/inspect", data, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rep ico.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, -1, rep.Best)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "dimensions", rep.Entries[0].ErrorKind)
}

func TestHealthAndMethodRouting(t *testing.T) {
	mux := NewMux(testConfig())

	rr := do(t, mux, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, mux, http.MethodGet, "/v1/encode", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, mux, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "icokit_"))
}

func TestURLSource(t *testing.T) {
	src := pngBody(t, 48, 48)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(src)
	}))
	defer origin.Close()

	// Disabled without a fetcher.
	rr := do(t, NewMux(testConfig()), http.MethodPost, "/v1/encode?url="+origin.URL, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	cfg := testConfig()
	log := logger.New(io.Discard, logger.ERROR)
	cfg.Fetcher = fetch.NewClient(&security.Guard{AllowPrivate: true}, 5*time.Second, 1<<20, log)
	rr = do(t, NewMux(cfg), http.MethodPost, "/v1/encode?size=48&stack=false&url="+origin.URL, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, recordCount(rr.Body.Bytes()))

	// The default guard refuses loopback origins.
	cfg.Fetcher = fetch.NewClient(&security.Guard{}, time.Second, 1<<20, log)
	rr = do(t, NewMux(cfg), http.MethodPost, "/v1/encode?url="+origin.URL, nil, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestPickFormatByAccept(t *testing.T) {
	tests := []struct {
		accept, fallback, want string
	}{
		{"image/avif,image/webp,*/*", "png", "avif"},
		{"image/webp,*/*", "png", "webp"},
		{"image/png", "webp", "png"},
		{"*/*", "webp", "webp"},
		{"", "", "png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pickFormatByAccept(tt.accept, tt.fallback), tt.accept)
	}
}
