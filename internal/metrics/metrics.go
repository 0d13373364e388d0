// Package metrics exposes the three named chat counters behind Prometheus,
// and a no-op implementation for tests and offline mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the narrow interface the chat hub consumes. Defined here
// rather than in package chat so chat stays free of any metrics import;
// chat.Config.Recorder accepts any implementation of the equivalent
// interface it declares itself.
type Recorder interface {
	IncJoined()
	IncLeft()
	IncMessages()
}

// PromRecorder increments Prometheus counters registered against a single
// registry, one per named metric in the core spec.
type PromRecorder struct {
	joined   prometheus.Counter
	left     prometheus.Counter
	messages prometheus.Counter
}

// NewPromRecorder registers the three counters against reg and returns a
// Recorder backed by them.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)
	return &PromRecorder{
		joined: factory.NewCounter(prometheus.CounterOpts{
			Name: "joined_total",
			Help: "Total joined users.",
		}),
		left: factory.NewCounter(prometheus.CounterOpts{
			Name: "left_total",
			Help: "Total left users.",
		}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total count of messages sent.",
		}),
	}
}

func (p *PromRecorder) IncJoined()   { p.joined.Inc() }
func (p *PromRecorder) IncLeft()     { p.left.Inc() }
func (p *PromRecorder) IncMessages() { p.messages.Inc() }

// Nop discards every increment. Useful in tests and when metrics
// exposition is disabled.
type Nop struct{}

func (Nop) IncJoined()   {}
func (Nop) IncLeft()     {}
func (Nop) IncMessages() {}
