package scheduler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/zlog"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	zlog.Replace(zap.NewNop())
	os.Exit(m.Run())
}

func TestSchedulerManager_Register(t *testing.T) {
	m := NewSchedulerManager()
	noop := func(context.Context) error { return nil }

	require.NoError(t, m.Register(Job{Name: "a", Spec: "0 2 * * *", Run: noop}, Job{Name: "b", Spec: "@hourly", Run: noop}))
	assert.Error(t, m.Register(Job{Name: "a", Spec: "0 3 * * *", Run: noop}))
	assert.Error(t, m.Register(Job{Name: "c", Spec: "not a spec", Run: noop}))
	assert.Len(t, m.cron.Entries(), 2)
}

func TestSchedulerManager_RunJobOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		run    func(context.Context) error
		result string
	}{
		{"ok", func(context.Context) error { return nil }, "ok"},
		{"error", func(context.Context) error { return errors.New("db down") }, "error"},
		{"panic", func(context.Context) error { panic("boom") }, "panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSchedulerManager()
			jobName := "test-" + tt.name
			before := testutil.ToFloat64(metrics.JobRuns.WithLabelValues(jobName, tt.result))

			jobs := []Job{{Name: jobName, Spec: "@hourly", Run: tt.run}}
			assert.NotPanics(t, func() { assert.True(t, m.Trigger(jobName, jobs)) })
			assert.False(t, m.Trigger("unknown", jobs))

			after := testutil.ToFloat64(metrics.JobRuns.WithLabelValues(jobName, tt.result))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestSchedulerManager_TimeoutAndStop(t *testing.T) {
	m := NewSchedulerManager()
	var deadline bool
	job := Job{Name: "timeout", Spec: "@hourly", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}}
	m.Trigger("timeout", []Job{job})
	assert.True(t, deadline)

	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
	assert.Error(t, m.ctx.Err())
}
