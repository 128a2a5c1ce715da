package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int64
	err  error
}

func (j *countingJob) Run() error {
	atomic.AddInt64(&j.runs, 1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 10ms", job))

	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.Greater(t, atomic.LoadInt64(&job.runs), int64(0))
}

func TestSchedulerSurvivesJobFailure(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}
	require.NoError(t, s.AddJob("@every 10ms", job))

	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// A failing job keeps getting scheduled.
	assert.Greater(t, atomic.LoadInt64(&job.runs), int64(1))
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}
