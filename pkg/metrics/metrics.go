// Package metrics exports process engine metrics to Prometheus.
//
// The Observer implements api.Observer and can be attached to any engine
// constructor, alone or combined with other observers via
// api.NewCompositeObserver.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/petrijr/processo/pkg/api"
)

// Observer records process and step lifecycle events as Prometheus metrics.
type Observer struct {
	processesStarted   *prometheus.CounterVec
	processesSuspended *prometheus.CounterVec
	processesCompleted *prometheus.CounterVec
	processesFailed    *prometheus.CounterVec
	stepsRolledBack    *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver creates an Observer registered on reg. Pass
// prometheus.DefaultRegisterer for the process-wide default registry.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		processesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "processo",
			Name:      "processes_started_total",
			Help:      "Number of process instances started.",
		}, []string{"process"}),
		processesSuspended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "processo",
			Name:      "processes_suspended_total",
			Help:      "Number of times instances suspended awaiting interaction.",
		}, []string{"process"}),
		processesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "processo",
			Name:      "processes_completed_total",
			Help:      "Number of process instances completed successfully.",
		}, []string{"process"}),
		processesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "processo",
			Name:      "processes_failed_total",
			Help:      "Number of process instances that failed.",
		}, []string{"process"}),
		stepsRolledBack: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "processo",
			Name:      "steps_rolled_back_total",
			Help:      "Number of step rollbacks, by outcome.",
		}, []string{"process", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "processo",
			Name:      "step_duration_seconds",
			Help:      "Step execution time, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"process", "step", "outcome"}),
	}
}

func (o *Observer) OnProcessStart(ctx context.Context, inst *api.ProcessInstance) {
	o.processesStarted.WithLabelValues(inst.Name).Inc()
}

func (o *Observer) OnProcessSuspended(ctx context.Context, inst *api.ProcessInstance) {
	o.processesSuspended.WithLabelValues(inst.Name).Inc()
}

func (o *Observer) OnProcessCompleted(ctx context.Context, inst *api.ProcessInstance) {
	o.processesCompleted.WithLabelValues(inst.Name).Inc()
}

func (o *Observer) OnProcessFailed(ctx context.Context, inst *api.ProcessInstance, err error) {
	o.processesFailed.WithLabelValues(inst.Name).Inc()
}

func (o *Observer) OnStepStart(ctx context.Context, inst *api.ProcessInstance, stepName string, idx int) {
}

func (o *Observer) OnStepCompleted(ctx context.Context, inst *api.ProcessInstance, stepName string, idx int, err error, d time.Duration) {
	o.stepDuration.WithLabelValues(inst.Name, stepName, outcome(err)).Observe(d.Seconds())
}

func (o *Observer) OnStepRolledBack(ctx context.Context, inst *api.ProcessInstance, stepName string, idx int, err error) {
	o.stepsRolledBack.WithLabelValues(inst.Name, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
