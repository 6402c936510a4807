package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitemigrate/internal/logging"
)

const metricsNamespace = "sitemigrate"

// Metrics holds the scan loop counters. A nil *Metrics records nothing.
type Metrics struct {
	Passes      *prometheus.CounterVec
	Admitted    *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
	Occupancy   *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewMetrics creates and registers the scheduler metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Scan passes by stage and result",
		}, []string{"stage", "result"}),
		Admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "admitted_total",
			Help:      "Records admitted into a stage",
		}, []string{"stage"}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "skipped_total",
			Help:      "Candidates skipped during a pass",
		}, []string{"stage", "reason"}),
		Occupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "occupancy",
			Help:      "Occupied slots observed at the start of the last pass",
		}, []string{"stage"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "transitions_total",
			Help:      "State transitions made by the scan loops",
		}, []string{"stage", "to"}),
	}
}

func (m *Metrics) pass(stage string, outcome Outcome) {
	if m != nil {
		m.Passes.WithLabelValues(stage, outcome.String()).Inc()
	}
}

func (m *Metrics) admitted(stage string) {
	if m != nil {
		m.Admitted.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) skipped(stage, reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(stage, reason).Inc()
	}
}

func (m *Metrics) occupancy(stage string, n int) {
	if m != nil {
		m.Occupancy.WithLabelValues(stage).Set(float64(n))
	}
}

func (m *Metrics) transition(stage, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(stage, to).Inc()
	}
}

// ServeMetrics exposes gatherer on addr until ctx ends.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics listener started", logging.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
