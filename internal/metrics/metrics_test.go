package metrics

import (
	"errors"
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"VelocityForecast/internal/domain"
)

func TestObserveTraining(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveTraining(2*time.Second, 24, domain.Some(3.5), nil)
	r.ObserveTraining(time.Second, 0, domain.None(), fmt.Errorf("train: %w", domain.ErrInsufficientData))

	require.Equal(t, 1.0, testutil.ToFloat64(r.trainingRuns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.trainingRuns.WithLabelValues("insufficient_data")))
	require.Equal(t, 24.0, testutil.ToFloat64(r.trainingRows))
	require.Equal(t, 3.5, testutil.ToFloat64(r.validationMAE))

	var m dto.Metric
	require.NoError(t, r.trainingDuration.Write(&m))
	require.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())

	r.ObserveTraining(time.Second, 3, domain.None(), nil)
	require.True(t, math.IsNaN(testutil.ToFloat64(r.validationMAE)))
}

func TestObservePrediction(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObservePrediction(nil)
	r.ObservePrediction(nil)
	r.ObservePrediction(fmt.Errorf("prepare: %w", domain.ErrInvalidInput))
	r.ObservePrediction(errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(r.predictions.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.predictions.WithLabelValues("invalid_input")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.predictions.WithLabelValues("error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObservePrediction(nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.True(t, strings.Contains(body, "velocity_forecast_predictions_total"), body)
}
