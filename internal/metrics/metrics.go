// Package metrics exposes training and prediction outcomes to Prometheus.
package metrics

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/inference"
	"VelocityForecast/internal/ports"
)

const namespace = "velocity_forecast"

// Recorder owns the collectors of one process. Tests give each Recorder its
// own registry.
type Recorder struct {
	registry *prometheus.Registry

	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingRows     prometheus.Gauge
	validationMAE    prometheus.Gauge
	predictions      *prometheus.CounterVec
}

var (
	_ ports.RunRecorder  = (*Recorder)(nil)
	_ inference.Observer = (*Recorder)(nil)
)

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		trainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by outcome",
		}, []string{"status"}),
		trainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of a training run, cross-validation included",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		trainingRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_rows",
			Help:      "Eligible rows used by the last successful training run",
		}),
		validationMAE: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_mae",
			Help:      "Mean cross-validation MAE of the last successful run, NaN when undefined",
		}),
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Velocity predictions by outcome",
		}, []string{"status"}),
	}
}

// Registry exposes the underlying registry, e.g. for testutil.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveTraining records one training run.
func (r *Recorder) ObserveTraining(duration time.Duration, rows int, validationMAE domain.Float, err error) {
	r.trainingDuration.Observe(duration.Seconds())
	if err != nil {
		r.trainingRuns.WithLabelValues(outcome(err)).Inc()
		return
	}
	r.trainingRuns.WithLabelValues("ok").Inc()
	r.trainingRows.Set(float64(rows))
	if validationMAE.Valid {
		r.validationMAE.Set(validationMAE.Value)
	} else {
		r.validationMAE.Set(math.NaN())
	}
}

// ObservePrediction records one prediction outcome.
func (r *Recorder) ObservePrediction(err error) {
	if err == nil {
		r.predictions.WithLabelValues("ok").Inc()
		return
	}
	r.predictions.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, domain.ErrArtifactMissing):
		return "artifact_missing"
	default:
		return "error"
	}
}
