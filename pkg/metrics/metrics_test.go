package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBucket(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{0.2, "1"},
		{1, "1"},
		{7, "10"},
		{480, "500"},
		{9000, "+Inf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getBucket(tt.ms))
	}
}

func TestCodecCounters(t *testing.T) {
	Reset()
	m := Get()

	m.IncDecode()
	m.IncDecode()
	m.IncDecodeFailure()
	m.IncEntryDecoded("png")
	m.IncEntryDecoded("png")
	m.IncEntryDecoded("bitmap")
	m.IncEntryFailed("truncated")
	m.IncEncode()
	m.AddEncodedBytes(1234)
	m.IncSizeEncoded(256)

	assert.Equal(t, uint64(2), m.Decodes())
	assert.Equal(t, uint64(1), m.DecodeFailures())
	assert.Equal(t, uint64(2), m.EntriesDecoded("png"))
	assert.Equal(t, uint64(1), m.EntriesDecoded("bitmap"))
	assert.Equal(t, uint64(0), m.EntriesDecoded("unknown"))
	assert.Equal(t, uint64(1), m.EntriesFailed("truncated"))
	assert.Equal(t, uint64(1), m.Encodes())
	assert.Equal(t, uint64(1234), m.EncodedBytes())
}

func TestHandler_Exposition(t *testing.T) {
	Reset()
	m := Get()
	m.IncEntryDecoded("png")
	m.IncSizeEncoded(48)
	m.RecordEncodeDuration(3 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, `icokit_entries_decoded_total{encoding="png"} 1`)
	assert.Contains(t, body, `icokit_sizes_encoded_total{size="48"} 1`)
	assert.Contains(t, body, `icokit_encode_duration_milliseconds_bucket{le="5"} 1`)
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	Reset()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/encode", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	out := httptest.NewRecorder()
	Get().Handler()(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), `code="418"`)
	assert.Equal(t, int64(0), Get().GetRequestsInFlight())
}
