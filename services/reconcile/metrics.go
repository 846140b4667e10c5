package reconcile

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"factsync/services/inventory"
)

const metricsNamespace = "factsync"

// Metrics tracks run outcomes in a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	factsPushed      prometheus.Counter
	pushFailures     prometheus.Counter
	hostsRemoved     prometheus.Counter
	unmanageFailures prometheus.Counter
	inventoryHosts   *prometheus.GaugeVec
	lastRunDuration  prometheus.Gauge
	lastSuccess      prometheus.Gauge
}

// NewMetrics registers the factsync collectors in a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Completed runs by mode and result.",
		}, []string{"mode", "result"}),
		factsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "facts_pushed_total",
			Help:      "Fact documents accepted by Foreman.",
		}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fact_push_failures_total",
			Help:      "Hosts whose facts could not be pushed.",
		}),
		hostsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hosts_removed_total",
			Help:      "Stale hosts deleted and unmanaged in Foreman.",
		}),
		unmanageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unmanage_failures_total",
			Help:      "Stale hosts Foreman refused to unmanage.",
		}),
		inventoryHosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inventory_hosts",
			Help:      "Hosts listed by each service during the last full run.",
		}, []string{"service"}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall clock duration of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
	}

	m.registry.MustRegister(
		m.runs,
		m.factsPushed,
		m.pushFailures,
		m.hostsRemoved,
		m.unmanageFailures,
		m.inventoryHosts,
		m.lastRunDuration,
		m.lastSuccess,
	)
	return m
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) FactsPushed(context.Context, uuid.UUID, inventory.Document) error {
	m.factsPushed.Inc()
	return nil
}

func (m *Metrics) RunFinished(_ context.Context, report *Report) error {
	result := "success"
	if !report.Succeeded() {
		result = "error"
	}
	m.runs.WithLabelValues(string(report.Mode), result).Inc()
	m.pushFailures.Add(float64(len(report.UploadFailures)))
	m.hostsRemoved.Add(float64(len(report.Removed)))
	m.unmanageFailures.Add(float64(len(report.UnmanageFailures)))
	m.lastRunDuration.Set(report.Duration().Seconds())

	if report.Mode == ModeFull && report.Succeeded() {
		m.inventoryHosts.WithLabelValues("puppetdb").Set(float64(report.PuppetDBHosts))
		m.inventoryHosts.WithLabelValues("foreman").Set(float64(report.ForemanHosts))
	}
	if report.Succeeded() {
		m.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push sends the registry to a Prometheus Pushgateway under the given job name.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
