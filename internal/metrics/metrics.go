// Package metrics exports Prometheus counters for proof submissions and worker intake.
package metrics

import (
	"context"
	"errors"

	"github.com/DAOsign/daosign-go/internal/submitter"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindLabel    = "kind"
	stateLabel   = "state"
	outcomeLabel = "outcome"
	resultLabel  = "result"

	OutcomeFinalized = "finalized"
)

var (
	kindOutcomeLabels = []string{kindLabel, outcomeLabel}
	kindStateLabels   = []string{kindLabel, stateLabel}
	kindLabels        = []string{kindLabel}
	resultLabels      = []string{resultLabel}
)

// Metrics observes submitter transitions. Register it once per registry.
type Metrics struct {
	Submissions  *prometheus.CounterVec   // kind + outcome
	Transitions  *prometheus.CounterVec   // kind + state
	Finalization *prometheus.HistogramVec // kind
	Requests     *prometheus.CounterVec   // result
}

func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daosign",
				Name:      "submissions_total",
				Help:      "number of proof submissions that reached a terminal state",
			},
			kindOutcomeLabels,
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daosign",
				Name:      "transitions_total",
				Help:      "number of submission state transitions",
			},
			kindStateLabels,
		),
		Finalization: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "daosign",
				Name:      "finalization_seconds",
				Help:      "time from call start to finalization (s)",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
			},
			kindLabels,
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daosign",
				Name:      "worker_requests_total",
				Help:      "number of queued proof requests handled by the worker",
			},
			resultLabels,
		),
	}

	err := errors.Join(
		registerer.Register(m.Submissions),
		registerer.Register(m.Transitions),
		registerer.Register(m.Finalization),
		registerer.Register(m.Requests),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Observe implements submitter.Observer.
func (m *Metrics) Observe(_ context.Context, ev submitter.Event) {
	kind := ev.Call.Kind.String()
	m.Transitions.With(prometheus.Labels{
		kindLabel:  kind,
		stateLabel: ev.To.String(),
	}).Inc()

	switch ev.To {
	case submitter.StateFinalized:
		m.Submissions.With(prometheus.Labels{kindLabel: kind, outcomeLabel: OutcomeFinalized}).Inc()
		if !ev.Call.Started.IsZero() && ev.At.After(ev.Call.Started) {
			m.Finalization.With(prometheus.Labels{kindLabel: kind}).Observe(ev.At.Sub(ev.Call.Started).Seconds())
		}
	case submitter.StateFailed:
		m.Submissions.With(prometheus.Labels{kindLabel: kind, outcomeLabel: submitter.ErrorCode(ev.Err)}).Inc()
	}
}

// Request counts one queued request by result ("finalized", an error code, or "malformed").
func (m *Metrics) Request(result string) {
	m.Requests.With(prometheus.Labels{resultLabel: result}).Inc()
}
