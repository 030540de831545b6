// ABOUTME: Prometheus collectors for orchestrator activity
// ABOUTME: Fed by the event bus and an instrumented provider client

package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/hive-orchestrator/internal/event"
	"github.com/2389/hive-orchestrator/internal/provider"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
type Metrics struct {
	registry *prometheus.Registry

	ActorsActive        prometheus.GaugeFunc
	EventsTotal         *prometheus.CounterVec
	CommandsTotal       *prometheus.CounterVec
	GuardrailViolations prometheus.Counter
	TokensTotal         prometheus.Counter
	ProviderLatency     prometheus.Histogram
}

// NewMetrics constructs the collectors on a fresh registry. activeActors
// is sampled on every scrape.
func NewMetrics(activeActors func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ActorsActive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "actors_active",
				Help:      "Number of actors currently resident in the registry.",
			},
			func() float64 { return float64(activeActors()) },
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "events_total",
				Help:      "Lifecycle events published, by type.",
			},
			[]string{"type"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "commands_total",
				Help:      "Lifecycle commands received over HTTP, by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		GuardrailViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "guardrail_violations_total",
				Help:      "Automatic pauses triggered by guardrail limits.",
			},
		),
		TokensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "provider_tokens_total",
				Help:      "Tokens consumed across all completed agent runs.",
			},
		),
		ProviderLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "hive",
				Subsystem: "orchestrator",
				Name:      "provider_latency_seconds",
				Help:      "Latency of provider next-action calls.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.ActorsActive,
		m.EventsTotal,
		m.CommandsTotal,
		m.GuardrailViolations,
		m.TokensTotal,
		m.ProviderLatency,
	)
	return m
}

// Handler serves the scrape endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunCollector feeds the event-driven collectors from the bus until ctx
// is cancelled.
func (m *Metrics) RunCollector(ctx context.Context, bus *event.Bus, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
			switch data := ev.Data.(type) {
			case event.PausedData:
				if data.Reason == "limit_exceeded" {
					m.GuardrailViolations.Inc()
				}
			case event.CompletedData:
				m.TokensTotal.Add(float64(data.Tokens))
			}
		}
	}
}

// InstrumentProvider wraps a provider client so every next-action call
// feeds the latency histogram.
func (m *Metrics) InstrumentProvider(c provider.Client) provider.Client {
	return &timedProvider{inner: c, hist: m.ProviderLatency}
}

type timedProvider struct {
	inner provider.Client
	hist  prometheus.Histogram
}

func (p *timedProvider) Name() string { return p.inner.Name() }

func (p *timedProvider) Next(ctx context.Context, req provider.Request) (provider.Decision, error) {
	start := time.Now()
	decision, err := p.inner.Next(ctx, req)
	p.hist.Observe(time.Since(start).Seconds())
	return decision, err
}
