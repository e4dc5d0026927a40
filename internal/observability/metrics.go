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
			Namespace: "wpanctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"iface", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wpanctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"iface", "method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "frame",
			Name:      "frames_total",
			Help:      "Frames exchanged with the NCP.",
		},
		[]string{"direction"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "frame",
			Name:      "errors_total",
			Help:      "Inbound framing errors by kind.",
		},
		[]string{"kind"},
	)
	crcASCII = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "frame",
			Name:      "crc_ascii_total",
			Help:      "Checksum-failed runs accepted as NCP console text.",
		},
	)
	garbageBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "frame",
			Name:      "garbage_bytes_total",
			Help:      "Inbound bytes dropped by the frame decoder.",
		},
	)
	ncpResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "ncp",
			Name:      "resets_total",
			Help:      "NCP reset notifications by reason.",
		},
		[]string{"reason", "expected"},
	)
	ncpState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wpanctl",
			Subsystem: "ncp",
			Name:      "state",
			Help:      "1 for the current NCP state.",
		},
		[]string{"state"},
	)
	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wpanctl",
			Subsystem: "task",
			Name:      "completed_total",
			Help:      "Completed tasks by outcome.",
		},
		[]string{"task", "status"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wpanctl",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Time from queuing a command to its response.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"command", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			frames, framingErrors, crcASCII, garbageBytes,
			ncpResets, ncpState, tasks, commandDuration,
		)
	})
}

func RecordHTTPRequest(iface, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(iface, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(iface, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(direction string) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
}

func RecordFramingError(kind string, dropped int) {
	RegisterMetrics()
	framingErrors.WithLabelValues(kind).Inc()
	if dropped > 0 {
		garbageBytes.Add(float64(dropped))
	}
}

func RecordCRCText() {
	RegisterMetrics()
	crcASCII.Inc()
}

func RecordNCPReset(reason string, expected bool) {
	RegisterMetrics()
	ncpResets.WithLabelValues(reason, strconv.FormatBool(expected)).Inc()
}

func RecordNCPState(state string) {
	RegisterMetrics()
	ncpState.Reset()
	ncpState.WithLabelValues(state).Set(1)
}

func RecordTask(task, status string) {
	RegisterMetrics()
	tasks.WithLabelValues(task, status).Inc()
}

func RecordCommand(command, status string, duration time.Duration) {
	RegisterMetrics()
	commandDuration.WithLabelValues(command, status).Observe(duration.Seconds())
}
