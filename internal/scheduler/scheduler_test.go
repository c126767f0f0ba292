package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sysmetic/backend/pkg/logger"
)

type testJob struct {
	name     string
	failures int32 // 처음 n번 실패
	calls    atomic.Int32
	timeout  time.Duration
	sawDL    atomic.Bool
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return "0 0 1 * * *" }

func (j *testJob) Timeout() time.Duration { return j.timeout }

func (j *testJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		j.sawDL.Store(true)
	}
	if n <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func newScheduler() *Scheduler {
	s := New(logger.NewNop())
	s.SetRetry(2, time.Millisecond)
	return s
}

func TestScheduler_AddAndRemove(t *testing.T) {
	s := newScheduler()
	job := &testJob{name: "a"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate name")
	assert.Equal(t, []string{"a"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Empty(t, s.GetJobStats())
	assert.Error(t, s.RemoveJob("a"))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := newScheduler()
	err := s.AddJob(&badScheduleJob{})
	assert.Error(t, err)
}

type badScheduleJob struct{}

func (badScheduleJob) Name() string                  { return "bad" }
func (badScheduleJob) Schedule() string              { return "every night" }
func (badScheduleJob) Run(ctx context.Context) error { return nil }

func TestScheduler_RunJobNow_Retries(t *testing.T) {
	s := newScheduler()
	job := &testJob{name: "flaky", failures: 2, timeout: time.Second}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), job.calls.Load())
	assert.True(t, job.sawDL.Load(), "timeout applied per attempt")

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
}

func TestScheduler_RunJobNow_GivesUp(t *testing.T) {
	s := newScheduler()
	job := &testJob{name: "broken", failures: 100}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "transient", result.Error)
	assert.Equal(t, int32(3), job.calls.Load())

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
	assert.Zero(t, history.GetSuccessRate())
}

func TestScheduler_UnknownJob(t *testing.T) {
	s := newScheduler()

	_, err := s.RunJobNow(context.Background(), "missing")
	assert.Error(t, err)
	assert.Error(t, s.RunJob("missing"))
	_, err = s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestJobHistory_KeepsLast100(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}
	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
