package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_acceptor_active_connections",
		Help: "Number of open client connections",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_acceptor_active_sessions",
		Help: "Number of authenticated sessions",
	})
	DispatchersReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_acceptor_dispatchers_ready",
		Help: "Number of dispatcher instances with an open stream",
	})
	PoolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_acceptor_pool_queue_depth",
		Help: "Routing tasks waiting for a worker",
	})
)

// Counters
var (
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_connections_total",
		Help: "Client connections accepted by transport",
	}, []string{"transport"})
	ConnectionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_connections_rejected_total",
		Help: "Connections rejected due to the session cap",
	})
	EnvelopesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_envelopes_total",
		Help: "Envelopes received by kind and source",
	}, []string{"source", "kind"})
	RoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_routed_total",
		Help: "Routing decisions by message family and outcome",
	}, []string{"family", "outcome"})
	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_decode_errors_total",
		Help: "Malformed frames or bodies by stage",
	}, []string{"stage"})
	UnknownRequestTypesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_unknown_request_types_total",
		Help: "Envelopes with no registered handler",
	})
	PoolRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_pool_rejected_total",
		Help: "Routing tasks rejected because the queue was full or closed",
	})
	PoolPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_pool_panics_total",
		Help: "Routing tasks that panicked",
	})
	ConnSendDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_conn_send_dropped_total",
		Help: "Outbound client frames dropped by transport",
	}, []string{"transport"})
	DispatcherSendDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_dispatcher_send_dropped_total",
		Help: "Frames dropped because a dispatcher queue was full or closed",
	})
	DispatcherReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_acceptor_dispatcher_reconnects_total",
		Help: "Dispatcher stream reconnect attempts",
	})
	AuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_acceptor_authenticate_total",
		Help: "Authenticate requests by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	RouteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phantom_acceptor_route_duration_seconds",
		Help:    "Time from Handle to routing decision by kind",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"kind"})
)
