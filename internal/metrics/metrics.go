// Package metrics exposes the process-wide counters/gauges described in
// SPEC_FULL.md §6, generalizing the teacher's single expvar.Int
// ("LiveTopics" in hub.go) into the prometheus/client_golang dependency
// the teacher's own go.mod already declares.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_sessions_live",
		Help: "Number of currently registered chat sessions.",
	})

	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_messages_total",
		Help: "Number of chat messages persisted and fanned out.",
	})

	VoiceDatagramsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_voice_datagrams_total",
		Help: "Voice relay datagrams handled, by kind.",
	}, []string{"kind"})
)

// Registry returns a fresh prometheus.Registry with all three instruments
// registered on it.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(SessionsLive, MessagesTotal, VoiceDatagramsTotal)
	return r
}
