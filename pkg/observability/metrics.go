package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the node's Prometheus collectors.
type Metrics struct {
	// Ingestion / forwarding
	MessagesIngested prometheus.Counter
	MessagesRelayed  prometheus.Counter
	MessagesLocal    *prometheus.CounterVec // by message_type
	MessagesDropped  *prometheus.CounterVec // by reason

	// Route advertisements
	AdvertsHandled      prometheus.Counter
	AdvertSends         prometheus.Counter
	BufferWriteFailures prometheus.Counter

	// Directives / responses
	ErrorResponses    prometheus.Counter
	OrphanedResponses prometheus.Counter
	WorkInFlight      prometheus.Gauge

	// Topology
	Peers prometheus.Gauge
	Edges prometheus.Gauge
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics("relaymesh", prometheus.DefaultRegisterer)

// NewMetrics creates collectors under namespace and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Frames drained from inbound buffers",
		}),
		MessagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Outer envelopes forwarded to a next hop",
		}),
		MessagesLocal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_local_total",
			Help:      "Inner envelopes delivered at this node by message type",
		}, []string{"message_type"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by reason",
		}, []string{"reason"}),
		AdvertsHandled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_adverts_handled_total",
			Help:      "Route advertisements merged",
		}),
		AdvertSends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_advert_sends_total",
			Help:      "Route advertisements queued to peers",
		}),
		BufferWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_write_failures_total",
			Help:      "Outbound pushes rejected by a full or closed buffer",
		}),
		ErrorResponses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_responses_total",
			Help:      "Error responses generated for failed directives",
		}),
		OrphanedResponses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_responses_total",
			Help:      "Responses with no outstanding request",
		}),
		WorkInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "work_in_flight",
			Help:      "Work directives currently executing",
		}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Directly connected peers",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Known node pairs in the edge graph",
		}),
	}
}

// Drop reasons.
const (
	DropNoRoute   = "no_route"
	DropExpired   = "expired"
	DropMalformed = "malformed"
)

// UpdateTopology updates the topology gauges.
func (m *Metrics) UpdateTopology(peers, edges int) {
	m.Peers.Set(float64(peers))
	m.Edges.Set(float64(edges))
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &MetricsServer{server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Run serves until ctx is cancelled.
func (s *MetricsServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()
	zap.L().Info("metrics listening", zap.String("addr", s.server.Addr))
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.server.Shutdown(shCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
