package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics is what the reactor reports. All methods are safe for
// concurrent use.
type ServerMetrics interface {
	// ConnectionAccepted counts a connection admitted into the slot table.
	ConnectionAccepted()
	// ConnectionRejected counts a connection answered with 503 at accept
	// time; reason is "capacity" or "rate".
	ConnectionRejected(reason string)
	// ConnectionClosed counts an eviction; reason is "timeout", "peer",
	// "error" or "close".
	ConnectionClosed(reason string)
	SetActiveConnections(n int)
	// RequestCompleted records one response and the time spent building it.
	RequestCompleted(status int, d time.Duration)
	SetQueueDepth(n int)
	SetBacklogDepth(n int)
	SetFreeResources(n int)
	// StaleResult counts a worker result dropped because its connection was
	// evicted and its slot recycled meanwhile.
	StaleResult()
	TimersExpired(n int)
}

type serverMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	connectionsClosed   *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	requestsTotal       *prometheus.CounterVec
	requestDuration     prometheus.Histogram
	queueDepth          prometheus.Gauge
	backlogDepth        prometheus.Gauge
	freeResources       prometheus.Gauge
	staleResults        prometheus.Counter
	timersExpired       prometheus.Counter
}

// NewServerMetrics registers the server metrics with reg, or returns a no-op
// implementation when reg is nil.
func NewServerMetrics(reg *prometheus.Registry) ServerMetrics {
	if reg == nil {
		return NewNoopServerMetrics()
	}

	var factory = promauto.With(reg)
	return &serverMetrics{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "webserver_connections_accepted_total",
			Help: "Connections admitted into the connection table",
		}),
		connectionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webserver_connections_rejected_total",
			Help: "Connections refused at accept time",
		}, []string{"reason"}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webserver_connections_closed_total",
			Help: "Connections evicted, by reason",
		}, []string{"reason"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_active_connections",
			Help: "Connections currently in the connection table",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webserver_requests_total",
			Help: "Responses built, by status code",
		}, []string{"status"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "webserver_request_duration_milliseconds",
			Help: "Time spent parsing a request and building its response",
			Buckets: []float64{
				0.1,
				1,
				10,
				100,
				1000,
			},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_queue_depth",
			Help: "Work items waiting for a worker",
		}),
		backlogDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_backlog_depth",
			Help: "Ready connections held back because the work queue was full",
		}),
		freeResources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_resources_free",
			Help: "Backend handles not currently lent to a worker",
		}),
		staleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "webserver_stale_results_total",
			Help: "Worker results discarded because the connection was gone",
		}),
		timersExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "webserver_timers_expired_total",
			Help: "Connections evicted by the idle timer sweep",
		}),
	}
}

func (m *serverMetrics) ConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) ConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) ConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) SetActiveConnections(n int) {
	m.activeConnections.Set(float64(n))
}

func (m *serverMetrics) RequestCompleted(status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(float64(d.Microseconds()) / 1000)
}

func (m *serverMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *serverMetrics) SetBacklogDepth(n int) {
	m.backlogDepth.Set(float64(n))
}

func (m *serverMetrics) SetFreeResources(n int) {
	m.freeResources.Set(float64(n))
}

func (m *serverMetrics) StaleResult() {
	m.staleResults.Inc()
}

func (m *serverMetrics) TimersExpired(n int) {
	m.timersExpired.Add(float64(n))
}

type noopServerMetrics struct{}

func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

func (noopServerMetrics) ConnectionAccepted()                 {}
func (noopServerMetrics) ConnectionRejected(string)           {}
func (noopServerMetrics) ConnectionClosed(string)             {}
func (noopServerMetrics) SetActiveConnections(int)            {}
func (noopServerMetrics) RequestCompleted(int, time.Duration) {}
func (noopServerMetrics) SetQueueDepth(int)                   {}
func (noopServerMetrics) SetBacklogDepth(int)                 {}
func (noopServerMetrics) SetFreeResources(int)                {}
func (noopServerMetrics) StaleResult()                        {}
func (noopServerMetrics) TimersExpired(int)                   {}
