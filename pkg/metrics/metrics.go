package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	// Request metrics
	requestsTotal    uint64
	requestsDuration sync.Map // URL path -> bucket -> count
	requestsInFlight int64
	requestsByStatus sync.Map // Status code -> count
	requestsLimited  uint64

	// Error metrics
	errorsTotal  uint64
	errorsByType sync.Map // Error type -> count

	// Decode metrics
	decodesTotal    uint64
	decodeFailures  uint64
	entriesDecoded  sync.Map // payload encoding -> count
	entriesFailed   sync.Map // error type -> count
	entriesSkipped  uint64
	decodeDuration  sync.Map // bucket -> count

	// Encode metrics
	encodesTotal   uint64
	encodedBytes   uint64
	sizesEncoded   sync.Map // pixel size -> count
	encodeDuration sync.Map // bucket -> count
}

var (
	globalMetrics = &Metrics{}
	startTime     = time.Now()
)

// Get returns the global metrics instance
func Get() *Metrics {
	return globalMetrics
}

// Reset resets all metrics (for testing)
func Reset() {
	globalMetrics = &Metrics{}
	startTime = time.Now()
}

// Request metrics

func (m *Metrics) IncRequests() {
	atomic.AddUint64(&m.requestsTotal, 1)
}

func (m *Metrics) IncRequestInFlight() {
	atomic.AddInt64(&m.requestsInFlight, 1)
}

func (m *Metrics) DecRequestInFlight() {
	atomic.AddInt64(&m.requestsInFlight, -1)
}

func (m *Metrics) GetRequestsInFlight() int64 {
	return atomic.LoadInt64(&m.requestsInFlight)
}

func (m *Metrics) IncRequestLimited() {
	atomic.AddUint64(&m.requestsLimited, 1)
}

func (m *Metrics) RecordRequestDuration(path string, duration time.Duration) {
	val, _ := m.requestsDuration.LoadOrStore(path, &sync.Map{})
	incBucket(val.(*sync.Map), duration)
}

func (m *Metrics) RecordRequestStatus(status int) {
	incKey(&m.requestsByStatus, status, 1)
}

// Error metrics

func (m *Metrics) IncError(errorType string) {
	atomic.AddUint64(&m.errorsTotal, 1)
	incKey(&m.errorsByType, errorType, 1)
}

// Decode metrics

func (m *Metrics) IncDecode() {
	atomic.AddUint64(&m.decodesTotal, 1)
}

func (m *Metrics) IncDecodeFailure() {
	atomic.AddUint64(&m.decodeFailures, 1)
}

// IncEntryDecoded counts one successfully decoded directory entry by payload encoding.
func (m *Metrics) IncEntryDecoded(encoding string) {
	incKey(&m.entriesDecoded, encoding, 1)
}

func (m *Metrics) IncEntryFailed(errorType string) {
	incKey(&m.entriesFailed, errorType, 1)
}

func (m *Metrics) AddEntriesSkipped(count int) {
	atomic.AddUint64(&m.entriesSkipped, uint64(count))
}

func (m *Metrics) RecordDecodeDuration(duration time.Duration) {
	incBucket(&m.decodeDuration, duration)
}

// Encode metrics

func (m *Metrics) IncEncode() {
	atomic.AddUint64(&m.encodesTotal, 1)
}

func (m *Metrics) AddEncodedBytes(n int) {
	atomic.AddUint64(&m.encodedBytes, uint64(n))
}

func (m *Metrics) IncSizeEncoded(size int) {
	incKey(&m.sizesEncoded, size, 1)
}

func (m *Metrics) RecordEncodeDuration(duration time.Duration) {
	incBucket(&m.encodeDuration, duration)
}

// Snapshot accessors, mostly for tests and the inspect CLI.

func (m *Metrics) Decodes() uint64        { return atomic.LoadUint64(&m.decodesTotal) }
func (m *Metrics) DecodeFailures() uint64 { return atomic.LoadUint64(&m.decodeFailures) }
func (m *Metrics) Encodes() uint64        { return atomic.LoadUint64(&m.encodesTotal) }
func (m *Metrics) EncodedBytes() uint64   { return atomic.LoadUint64(&m.encodedBytes) }

func (m *Metrics) EntriesDecoded(encoding string) uint64 {
	return loadKey(&m.entriesDecoded, encoding)
}

func (m *Metrics) EntriesFailed(errorType string) uint64 {
	return loadKey(&m.entriesFailed, errorType)
}

func incKey(sm *sync.Map, key interface{}, n uint64) {
	count, _ := sm.LoadOrStore(key, new(uint64))
	atomic.AddUint64(count.(*uint64), n)
}

func loadKey(sm *sync.Map, key interface{}) uint64 {
	v, ok := sm.Load(key)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

func incBucket(sm *sync.Map, duration time.Duration) {
	ms := float64(duration) / float64(time.Millisecond)
	incKey(sm, getBucket(ms), 1)
}

// Prometheus exposition

func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// General info
		writeMetric(w, "icokit_build_info", "gauge", 1, map[string]string{
			"version": "1.0.0",
		})
		writeMetric(w, "icokit_uptime_seconds", "gauge", time.Since(startTime).Seconds(), nil)

		// Request metrics
		writeMetric(w, "icokit_requests_total", "counter", atomic.LoadUint64(&m.requestsTotal), nil)
		writeMetric(w, "icokit_requests_in_flight", "gauge", m.GetRequestsInFlight(), nil)
		writeMetric(w, "icokit_requests_limited_total", "counter", atomic.LoadUint64(&m.requestsLimited), nil)

		m.requestsDuration.Range(func(key, value interface{}) bool {
			path := key.(string)
			writeBuckets(w, "icokit_request_duration_milliseconds_bucket", value.(*sync.Map), map[string]string{"path": path})
			return true
		})

		m.requestsByStatus.Range(func(key, value interface{}) bool {
			status := key.(int)
			count := atomic.LoadUint64(value.(*uint64))
			writeMetric(w, "icokit_requests_by_status_total", "counter", count, map[string]string{
				"status": http.StatusText(status),
				"code":   fmt.Sprintf("%d", status),
			})
			return true
		})

		// Error metrics
		writeMetric(w, "icokit_errors_total", "counter", atomic.LoadUint64(&m.errorsTotal), nil)
		writeLabeled(w, "icokit_errors_by_type_total", "type", &m.errorsByType)

		// Decode metrics
		writeMetric(w, "icokit_decodes_total", "counter", m.Decodes(), nil)
		writeMetric(w, "icokit_decode_failures_total", "counter", m.DecodeFailures(), nil)
		writeMetric(w, "icokit_entries_skipped_total", "counter", atomic.LoadUint64(&m.entriesSkipped), nil)
		writeLabeled(w, "icokit_entries_decoded_total", "encoding", &m.entriesDecoded)
		writeLabeled(w, "icokit_entries_failed_total", "type", &m.entriesFailed)
		writeBuckets(w, "icokit_decode_duration_milliseconds_bucket", &m.decodeDuration, nil)

		// Encode metrics
		writeMetric(w, "icokit_encodes_total", "counter", m.Encodes(), nil)
		writeMetric(w, "icokit_encoded_bytes_total", "counter", m.EncodedBytes(), nil)
		writeLabeled(w, "icokit_sizes_encoded_total", "size", &m.sizesEncoded)
		writeBuckets(w, "icokit_encode_duration_milliseconds_bucket", &m.encodeDuration, nil)
	}
}

func writeLabeled(w http.ResponseWriter, name, label string, sm *sync.Map) {
	sm.Range(func(key, value interface{}) bool {
		count := atomic.LoadUint64(value.(*uint64))
		writeMetric(w, name, "counter", count, map[string]string{
			label: fmt.Sprint(key),
		})
		return true
	})
}

func writeBuckets(w http.ResponseWriter, name string, sm *sync.Map, labels map[string]string) {
	sm.Range(func(k, v interface{}) bool {
		l := map[string]string{"le": k.(string)}
		for lk, lv := range labels {
			l[lk] = lv
		}
		writeMetric(w, name, "counter", atomic.LoadUint64(v.(*uint64)), l)
		return true
	})
}

func writeMetric(w http.ResponseWriter, name, metricType string, value interface{}, labels map[string]string) {
	// Write TYPE comment (once per metric name)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)

	// Write metric
	fmt.Fprint(w, name)

	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprint(w, "{")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, "%s=\"%s\"", k, labels[k])
		}
		fmt.Fprint(w, "}")
	}

	fmt.Fprint(w, " ")

	switch v := value.(type) {
	case int:
		fmt.Fprintf(w, "%d", v)
	case int64:
		fmt.Fprintf(w, "%d", v)
	case uint64:
		fmt.Fprintf(w, "%d", v)
	case float64:
		fmt.Fprintf(w, "%.6f", v)
	}

	fmt.Fprint(w, "\n")
}

func getBucket(ms float64) string {
	buckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	for _, b := range buckets {
		if ms <= b {
			return fmt.Sprintf("%.0f", b)
		}
	}
	return "+Inf"
}

// Middleware for automatic request tracking
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Get()
		m.IncRequests()
		m.IncRequestInFlight()
		defer m.DecRequestInFlight()

		start := time.Now()

		// Wrap response writer to capture status
		sw := &statusWriter{ResponseWriter: w, status: 200}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		m.RecordRequestDuration(r.URL.Path, duration)
		m.RecordRequestStatus(sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
