// Package metrics holds the prometheus collectors of the proctoring controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "proctor"

var (
	IncidentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incidents_recorded_total",
		Help:      "Security incidents appended to the ledger.",
	}, []string{"kind"})

	IncidentsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incidents_discarded_total",
		Help:      "Incident reports accepted without effect.",
	}, []string{"reason"})

	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Test sessions created, by origin (schedule, override, unlock).",
	}, []string{"origin"})

	SessionsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_locked_total",
		Help:      "Sessions locked by the escalation policy.",
	})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Sessions reaching a terminal status.",
	}, []string{"status", "reason"})

	CodeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bypass_code_rejections_total",
		Help:      "Bypass code attempts refused.",
	}, []string{"scope", "reason"})

	ScheduleFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_fail_open_total",
		Help:      "Availability checks that allowed a start because the schedule source failed.",
	})

	AutosaveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "autosave_writes_total",
		Help:      "Autosave requests by outcome.",
	}, []string{"outcome"})

	ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_clock_armed_timers",
		Help:      "Expiry timers currently armed.",
	})
)
