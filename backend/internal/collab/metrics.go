package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_ops_submitted_total",
		Help: "Submitted operations by result",
	}, []string{"result"})

	opsRebased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_ops_rebased_total",
		Help: "Operations transformed against concurrent revisions before applying",
	})

	historyActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_history_actions_total",
		Help: "Undo and redo requests by action and result",
	}, []string{"action", "result"})

	submitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_submit_duration_seconds",
		Help:    "Time spent rebasing and applying one operation",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	documentsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_documents_loaded",
		Help: "Documents currently held in memory",
	})

	kafkaSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_kafka_send_failures_total",
		Help: "Kafka send attempts that returned an error",
	})

	kafkaDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_kafka_dropped_total",
		Help: "Events dropped before reaching kafka",
	}, []string{"reason"})
)
