package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type immediateDriver struct {
	started bool
	stopped bool
}

func (d *immediateDriver) Start(_ context.Context, job func(time.Time)) error {
	d.started = true
	job(time.Date(2024, time.June, 3, 6, 0, 0, 0, time.UTC))
	return nil
}

func (d *immediateDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, generated(16))
	driver := &immediateDriver{}
	s := NewScheduler(driver, f.pipeline, nil)

	require.NoError(t, s.Start(context.Background()))
	require.True(t, driver.started)
	require.Len(t, f.notifier.digests, 1)

	require.NoError(t, s.Stop(context.Background()))
	require.True(t, driver.stopped)
}

func TestSchedulerLogsFailedRun(t *testing.T) {
	t.Parallel()

	// No sprints: the preprocess stage succeeds but features have nothing to build.
	f := newFixture(t, generated(0))
	driver := &immediateDriver{}

	require.NoError(t, NewScheduler(driver, f.pipeline, nil).Start(context.Background()))
	require.Empty(t, f.notifier.digests)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
