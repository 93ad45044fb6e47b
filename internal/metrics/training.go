package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "claimspotter"

// Recorder receives training telemetry.
type Recorder interface {
	ObserveEpoch(epoch int, loss, accuracy float64, took time.Duration)
	ObserveValidation(loss, accuracy, f1 float64)
	ValidationFailed()
	CheckpointSaved()
}

// Training exports training progress as prometheus collectors.
type Training struct {
	epoch          prometheus.Gauge
	epochLoss      prometheus.Gauge
	epochAccuracy  prometheus.Gauge
	epochDuration  prometheus.Histogram
	validation     *prometheus.GaugeVec
	validationErrs prometheus.Counter
	checkpoints    prometheus.Counter
}

// NewTraining registers the training collectors with registerer, or with the
// default registerer when nil.
func NewTraining(registerer prometheus.Registerer) (*Training, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Training{
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch",
			Help:      "Last completed training epoch.",
		}),
		epochLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch_loss",
			Help:      "Mean training loss of the last epoch.",
		}),
		epochAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch_accuracy",
			Help:      "Training accuracy of the last epoch.",
		}),
		epochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_duration_seconds",
			Help:      "Wall time of one training epoch.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		validation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation",
			Help:      "Metrics of the last validation pass.",
		}, []string{"metric"}),
		validationErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Validation passes that returned an error.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_saved_total",
			Help:      "Checkpoints written to the output directory.",
		}),
	}

	collectors := []prometheus.Collector{
		m.epoch, m.epochLoss, m.epochAccuracy, m.epochDuration,
		m.validation, m.validationErrs, m.checkpoints,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Training) ObserveEpoch(epoch int, loss, accuracy float64, took time.Duration) {
	m.epoch.Set(float64(epoch))
	m.epochLoss.Set(loss)
	m.epochAccuracy.Set(accuracy)
	m.epochDuration.Observe(took.Seconds())
}

func (m *Training) ObserveValidation(loss, accuracy, f1 float64) {
	m.validation.WithLabelValues("loss").Set(loss)
	m.validation.WithLabelValues("accuracy").Set(accuracy)
	m.validation.WithLabelValues("f1").Set(f1)
}

func (m *Training) ValidationFailed() { m.validationErrs.Inc() }

func (m *Training) CheckpointSaved() { m.checkpoints.Inc() }

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveEpoch(int, float64, float64, time.Duration) {}
func (Noop) ObserveValidation(float64, float64, float64)       {}
func (Noop) ValidationFailed()                                 {}
func (Noop) CheckpointSaved()                                  {}
