// Package metrics declares every Prometheus collector the service
// exports and owns the registry they live on.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// botsCreated counts bots that completed the full provisioning
	// protocol, not attempts.
	BotsCreated   prometheus.Counter
	BotsDestroyed prometheus.Counter

	// ProvisioningFailures is labeled by the failure reason so quota
	// rejections and cloud errors chart separately.
	ProvisioningFailures *prometheus.CounterVec

	DropletRequests        *prometheus.CounterVec
	DropletRequestDuration *prometheus.HistogramVec

	Heartbeats prometheus.Counter
	StaleBots  prometheus.Counter
	ConfigAcks *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		BotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clawspawn_bots_created_total",
			Help: "Number of bots successfully provisioned",
		}),
		BotsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clawspawn_bots_destroyed_total",
			Help: "Number of bots destroyed",
		}),
		ProvisioningFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clawspawn_provisioning_failures_total",
			Help: "Number of failed provisioning attempts by reason",
		}, []string{"reason"}),
		DropletRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clawspawn_droplet_requests_total",
			Help: "Number of DigitalOcean API calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		DropletRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clawspawn_droplet_request_duration_seconds",
			Help:    "Latency of DigitalOcean API calls including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clawspawn_heartbeats_total",
			Help: "Number of worker heartbeats recorded",
		}),
		StaleBots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clawspawn_stale_bots_total",
			Help: "Number of bots marked errored for missing heartbeats",
		}),
		ConfigAcks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clawspawn_config_acks_total",
			Help: "Number of configuration acknowledgements by outcome",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clawspawn_http_requests_total",
			Help: "Number of HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clawspawn_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BotsCreated,
		m.BotsDestroyed,
		m.ProvisioningFailures,
		m.DropletRequests,
		m.DropletRequestDuration,
		m.Heartbeats,
		m.StaleBots,
		m.ConfigAcks,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
