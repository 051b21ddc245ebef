package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resonant",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resonant",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resonant",
			Subsystem: "vframe",
			Name:      "encoded_total",
			Help:      "Frames encoded and sent.",
		},
		[]string{"node", "msg_type"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resonant",
			Subsystem: "vframe",
			Name:      "decoded_total",
			Help:      "Frames received and decoded without error.",
		},
		[]string{"node", "msg_type"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resonant",
			Subsystem: "vframe",
			Name:      "decode_errors_total",
			Help:      "Frames rejected by the codec or dispatcher, by error kind.",
		},
		[]string{"node", "stage", "kind"},
	)
	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resonant",
			Subsystem: "vframe",
			Name:      "frame_bytes",
			Help:      "Encoded frame size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 11),
		},
		[]string{"node", "direction"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resonant",
			Subsystem: "vframe",
			Name:      "dropped_total",
			Help:      "Decoded frames dropped before handling.",
		},
		[]string{"node", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, framesEncoded, framesDecoded, decodeErrors, frameBytes, framesDropped)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrameSent counts one outbound frame of size bytes.
func RecordFrameSent(node, msgType string, size int) {
	RegisterMetrics()
	framesEncoded.WithLabelValues(node, msgType).Inc()
	frameBytes.WithLabelValues(node, "out").Observe(float64(size))
}

// RecordFrameReceived counts one inbound frame that decoded cleanly.
func RecordFrameReceived(node, msgType string, size int) {
	RegisterMetrics()
	framesDecoded.WithLabelValues(node, msgType).Inc()
	frameBytes.WithLabelValues(node, "in").Observe(float64(size))
}

// RecordDecodeError counts a rejected frame. stage is "codec" or "dispatch";
// kind comes from protocol.Kind.
func RecordDecodeError(node, stage, kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(node, stage, kind).Inc()
}

func RecordFrameDropped(node, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(node, reason).Inc()
}
