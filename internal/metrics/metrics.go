// Package metrics exposes Prometheus counters for operator visibility
// into the best-effort paths: scheduled jobs, hook rejections, cascade
// failures, recreations, and the notification outbox.
//
// Those paths never surface errors to the original caller, so the
// counters (plus logs) are the only way an operator sees them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the core's Prometheus metrics.
// All Record methods are nil-safe so components can run without
// metrics wired (tests, one-off CLI invocations).
type Collector struct {
	jobRuns         *prometheus.CounterVec
	hookRejections  *prometheus.CounterVec
	cascadeFailures *prometheus.CounterVec
	recreations     *prometheus.CounterVec
	notificationsQ  prometheus.Counter
}

// NewCollector creates and registers the collector's metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_job_runs_total",
			Help: "Total number of job executions by job name and outcome",
		}, []string{"job", "status"}),
		hookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_hook_rejections_total",
			Help: "Total number of mutations vetoed by before hooks",
		}, []string{"entity", "hook"}),
		cascadeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_cascade_failures_total",
			Help: "Total number of after-hook failures (logged, not propagated)",
		}, []string{"entity", "hook"}),
		recreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praxis_recreations_total",
			Help: "Total number of engagement recreation attempts by outcome",
		}, []string{"status"}),
		notificationsQ: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "praxis_notifications_queued_total",
			Help: "Total number of notifications queued for delivery",
		}),
	}

	reg.MustRegister(
		c.jobRuns,
		c.hookRejections,
		c.cascadeFailures,
		c.recreations,
		c.notificationsQ,
	)

	return c
}

// RecordJobRun counts one job execution.
func (c *Collector) RecordJobRun(job, status string) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(job, status).Inc()
}

// RecordHookRejection counts one vetoed mutation.
func (c *Collector) RecordHookRejection(entity, hook string) {
	if c == nil {
		return
	}
	c.hookRejections.WithLabelValues(entity, hook).Inc()
}

// RecordCascadeFailure counts one swallowed after-hook failure.
func (c *Collector) RecordCascadeFailure(entity, hook string) {
	if c == nil {
		return
	}
	c.cascadeFailures.WithLabelValues(entity, hook).Inc()
}

// RecordRecreation counts one recreation attempt outcome.
func (c *Collector) RecordRecreation(status string) {
	if c == nil {
		return
	}
	c.recreations.WithLabelValues(status).Inc()
}

// RecordNotificationQueued counts one queued notification.
func (c *Collector) RecordNotificationQueued() {
	if c == nil {
		return
	}
	c.notificationsQ.Inc()
}
