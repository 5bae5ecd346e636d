package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry          *prometheus.Registry
	operationsTotal   *prometheus.CounterVec
	operationDuration prometheus.Histogram
	activeEscrows     prometheus.Gauge
	escrowedVolume    prometheus.Gauge
	totalBalance      prometheus.Gauge
	feesAccrued       prometheus.Gauge
	feesCollected     prometheus.Gauge
	logger            *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &Collector{
		registry: registry,
		operationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to execute a ledger operation",
			Buckets: prometheus.DefBuckets,
		}),
		activeEscrows: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_active_escrows",
			Help: "Escrow agreements currently pending or disputed",
		}),
		escrowedVolume: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_escrowed_volume",
			Help: "Net amount held across non-terminal escrows, in smallest currency units",
		}),
		totalBalance: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_total_balance",
			Help: "Sum of all account balances, in smallest currency units",
		}),
		feesAccrued: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_fees_accrued",
			Help: "Lifetime platform fee revenue, in smallest currency units",
		}),
		feesCollected: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_fees_collected",
			Help: "Platform fees withdrawn so far, in smallest currency units",
		}),
		logger: logger,
	}

	return collector
}

func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.operationsTotal.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.Observe(duration.Seconds())
}

// UpdateLedgerGauges refreshes the point-in-time gauges from the
// statistics surface.
func (c *Collector) UpdateLedgerGauges(totalBalance, escrowedVolume int64, activeEscrows int, feesAccrued, feesCollected int64) {
	c.totalBalance.Set(float64(totalBalance))
	c.escrowedVolume.Set(float64(escrowedVolume))
	c.activeEscrows.Set(float64(activeEscrows))
	c.feesAccrued.Set(float64(feesAccrued))
	c.feesCollected.Set(float64(feesCollected))
}

func (c *Collector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (c *Collector) Shutdown(ctx context.Context) error {
	c.logger.Info("Metrics collector shutdown complete")
	return nil
}
