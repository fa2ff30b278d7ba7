// Package metrics exposes the indexer's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the invocation driver reports to.
type Metrics struct {
	PayloadsProcessed *prometheus.CounterVec
	MessagesDecoded   *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	ActiveNetworks    prometheus.Gauge
	LatestValidEpoch  prometheus.Gauge
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PayloadsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "block_oracle",
			Name:      "payloads_processed_total",
			Help:      "Payloads processed, by validity.",
		}, []string{"status"}),
		MessagesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "block_oracle",
			Name:      "messages_decoded_total",
			Help:      "Successfully decoded messages, by kind.",
		}, []string{"kind"}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "block_oracle",
			Name:      "decode_failures_total",
			Help:      "Rolled-back invocations, by failure kind.",
		}, []string{"reason"}),
		ActiveNetworks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "block_oracle",
			Name:      "active_networks",
			Help:      "Networks currently in the active set.",
		}),
		LatestValidEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "block_oracle",
			Name:      "latest_valid_epoch",
			Help:      "Number of the latest valid epoch.",
		}),
	}
}

// Serve starts an HTTP server exposing reg's metrics under /metrics. It
// returns the server so the caller controls shutdown.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
