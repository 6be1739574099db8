// Package metrics is the engine's counters, sequence generator, and EPS
// window, exposed both as plain Go accessors for the health endpoint and as
// Prometheus instruments for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zmeta"

// Prometheus counters, registered once at package init, following the
// same pattern as internal/metrics/metrics.go.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})

	UDPReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "udp_received_total", Help: "Total UDP datagrams received.",
	})
	ValidatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "validated_total", Help: "Total payloads validated into canonical events.",
	})
	DroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "dropped_total", Help: "Total payloads dropped (queue overflow or parse failure).",
	})
	AlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "alerts_total", Help: "Total alerts broadcast.",
	})
	SuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "suppressed_total", Help: "Total alerts suppressed by the deduper.",
	})
	WSSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_sent_total", Help: "Total WebSocket messages sent.",
	})
	WSDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_dropped_total", Help: "Total WebSocket messages dropped to backpressure.",
	})
	RecorderDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "recorder_dropped_total", Help: "Total NDJSON lines dropped by a full recorder queue.",
	})
	AdapterMatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "adapter_matched_total", Help: `Payloads matched per adapter (or "native").`,
	}, []string{"adapter"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		UDPReceivedTotal, ValidatedTotal, DroppedTotal, AlertsTotal, SuppressedTotal,
		WSSentTotal, WSDroppedTotal, RecorderDroppedTotal, AdapterMatchedTotal,
	)
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the response status.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers (e.g. http.Hijacker for the WebSocket upgrade).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

const ringSize = 600 // ~10 minutes of validated timestamps at 1 Hz

// Snapshot is an immutable copy of the registry's counters at a point in time.
type Snapshot struct {
	UDPReceivedTotal int64
	ValidatedTotal   int64
	DroppedTotal     int64
	AlertsTotal      int64
	SuppressedTotal  int64
	WSSentTotal      int64
	WSDroppedTotal   int64
	RecorderDropped  int64
	SequenceCounter  int64
	AdapterCounts    map[string]int64
	LastPacketTS     time.Time
}

// Registry is the process-wide ingest metrics bundle. It is safe for
// concurrent use: simple counters are atomic; the ring buffer and adapter
// map share one mutex since they're always read/written together.
type Registry struct {
	udpReceived int64
	validated   int64
	dropped     int64
	alerts      int64
	suppressed  int64
	wsSent      int64
	wsDropped   int64
	recorderDrp int64
	sequence    int64

	mu            sync.Mutex
	adapterCounts map[string]int64
	ring          [ringSize]time.Time
	ringHead      int
	ringLen       int
	lastPacketTS  time.Time
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{adapterCounts: make(map[string]int64)}
}

func (r *Registry) NoteUDPReceived() {
	atomic.AddInt64(&r.udpReceived, 1)
	UDPReceivedTotal.Inc()
}

func (r *Registry) NoteDropped() {
	atomic.AddInt64(&r.dropped, 1)
	DroppedTotal.Inc()
}

func (r *Registry) NoteValidated() {
	atomic.AddInt64(&r.validated, 1)
	ValidatedTotal.Inc()
	now := time.Now()
	r.mu.Lock()
	r.lastPacketTS = now
	r.ring[r.ringHead] = now
	r.ringHead = (r.ringHead + 1) % ringSize
	if r.ringLen < ringSize {
		r.ringLen++
	}
	r.mu.Unlock()
}

func (r *Registry) NoteAlert() {
	atomic.AddInt64(&r.alerts, 1)
	AlertsTotal.Inc()
}

func (r *Registry) NoteSuppressed() {
	atomic.AddInt64(&r.suppressed, 1)
	SuppressedTotal.Inc()
}

func (r *Registry) NoteWSSent() {
	atomic.AddInt64(&r.wsSent, 1)
	WSSentTotal.Inc()
}

func (r *Registry) NoteWSDropped() {
	atomic.AddInt64(&r.wsDropped, 1)
	WSDroppedTotal.Inc()
}

func (r *Registry) NoteRecorderDropped() {
	atomic.AddInt64(&r.recorderDrp, 1)
	RecorderDroppedTotal.Inc()
}

// NoteAdapter records which adapter matched a payload, including the
// literal "native" when strict validation succeeded with no adaptation.
func (r *Registry) NoteAdapter(name string) {
	AdapterMatchedTotal.WithLabelValues(name).Inc()
	r.mu.Lock()
	r.adapterCounts[name]++
	r.mu.Unlock()
}

// NextSequence returns the next monotonic, gap-free sequence number.
func (r *Registry) NextSequence() int64 {
	return atomic.AddInt64(&r.sequence, 1)
}

// EPS returns events validated per second over the trailing window.
func (r *Registry) EPS(window time.Duration) float64 {
	if window <= 0 {
		window = 10 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ringLen == 0 {
		return 0
	}
	cutoff := time.Now().Add(-window)
	var count int
	for i := 0; i < r.ringLen; i++ {
		idx := (r.ringHead - 1 - i + ringSize) % ringSize
		if r.ring[idx].IsZero() || r.ring[idx].Before(cutoff) {
			break
		}
		count++
	}
	return float64(count) / window.Seconds()
}

// LastPacketAge returns the elapsed time since the last validated event, or
// zero with ok=false if none has been recorded yet.
func (r *Registry) LastPacketAge() (d time.Duration, ok bool) {
	r.mu.Lock()
	ts := r.lastPacketTS
	r.mu.Unlock()
	if ts.IsZero() {
		return 0, false
	}
	return time.Since(ts), true
}

// Snapshot returns an immutable copy of the current counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	adapterCopy := make(map[string]int64, len(r.adapterCounts))
	for k, v := range r.adapterCounts {
		adapterCopy[k] = v
	}
	lastPacket := r.lastPacketTS
	r.mu.Unlock()

	return Snapshot{
		UDPReceivedTotal: atomic.LoadInt64(&r.udpReceived),
		ValidatedTotal:   atomic.LoadInt64(&r.validated),
		DroppedTotal:     atomic.LoadInt64(&r.dropped),
		AlertsTotal:      atomic.LoadInt64(&r.alerts),
		SuppressedTotal:  atomic.LoadInt64(&r.suppressed),
		WSSentTotal:      atomic.LoadInt64(&r.wsSent),
		WSDroppedTotal:   atomic.LoadInt64(&r.wsDropped),
		RecorderDropped:  atomic.LoadInt64(&r.recorderDrp),
		SequenceCounter:  atomic.LoadInt64(&r.sequence),
		AdapterCounts:    adapterCopy,
		LastPacketTS:     lastPacket,
	}
}
