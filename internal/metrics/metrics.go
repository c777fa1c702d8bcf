// Package metrics declares the Prometheus collectors shared by the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dreamer"

var (
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "queue_length",
		Help:      "Trajectories waiting in the replay queue.",
	})
	Enqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "enqueued_total",
		Help:      "Trajectories accepted by the replay queue.",
	})
	Dropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "dropped_total",
		Help:      "Trajectories rejected because the queue was full.",
	})
	Dequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "dequeued_total",
		Help:      "Trajectories handed to the trainer.",
	})

	EpisodesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "episodes_ingested_total",
		Help:      "Episodes encoded into the trainer's store.",
	})
	StoredEpisodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "stored_episodes",
		Help:      "Episodes currently held by the trainer.",
	})
	TrainSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "train_steps_total",
		Help:      "World model optimization steps.",
	})
	Loss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "loss",
		Help:      "Most recent world model loss by component.",
	}, []string{"component"})
	ImaginedReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "imagined_return",
		Help:      "Mean continuation-masked discounted return of the last imagination rollout.",
	})
	EpisodeReward = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "trainer",
		Name:      "episode_reward",
		Help:      "Total reward of ingested episodes.",
		Buckets:   prometheus.LinearBuckets(0, 50, 11),
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
