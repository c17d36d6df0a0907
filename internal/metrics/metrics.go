// Package metrics exposes service metrics in the Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

const namespace = "marketchat"

// Metrics holds the service collectors on a dedicated registry.
type Metrics struct {
	reg *prometheus.Registry

	connections    prometheus.Gauge
	eventsSent     *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	typing         *prometheus.CounterVec
	messages       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	framesRejected *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections",
			Help:      "Number of registered Connect streams.",
		}),
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_sent_total",
			Help:      "Real-time events queued to a connection.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Real-time events dropped because a connection could not accept them.",
		}, []string{"type", "reason"}),
		typing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_updates_total",
			Help:      "Typing indicator updates.",
		}, []string{"type"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Message writes by operation and message type.",
		}, []string{"op", "type"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Unary RPC latency by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		framesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_rejected_total",
			Help:      "Inbound stream frames answered with an error frame.",
		}, []string{"reason"}),
	}
	m.reg.MustRegister(
		m.connections, m.eventsSent, m.eventsDropped, m.typing,
		m.messages, m.rpcDuration, m.framesRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ConnectionsChanged(n int) { m.connections.Set(float64(n)) }

func (m *Metrics) EventDelivered(t realtime.EventType) {
	m.eventsSent.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) EventDropped(t realtime.EventType, reason string) {
	m.eventsDropped.WithLabelValues(string(t), reason).Inc()
}

func (m *Metrics) TypingUpdated(t realtime.EventType) {
	m.typing.WithLabelValues(string(t)).Inc()
}

// MessageWritten counts a send, edit or delete.
func (m *Metrics) MessageWritten(op, messageType string) {
	m.messages.WithLabelValues(op, messageType).Inc()
}

// FrameRejected counts an inbound frame answered with an error frame.
func (m *Metrics) FrameRejected(reason string) {
	m.framesRejected.WithLabelValues(reason).Inc()
}

// UnaryInterceptor records the latency of every unary call.
func (m *Metrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.rpcDuration.WithLabelValues(info.FullMethod, status.Code(err).String()).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Serve runs the metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
