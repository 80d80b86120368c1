package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/zlog"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job 定时任务，Spec 为标准5段 Cron 表达式
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type SchedulerManager struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewSchedulerManager() *SchedulerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerManager{
		// 使用标准5段Cron表达式（不含秒）
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Register 同名任务只能注册一次
func (m *SchedulerManager) Register(jobs ...Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		if _, ok := m.entries[j.Name]; ok {
			return fmt.Errorf("scheduler: job %q already registered", j.Name)
		}
		job := j
		id, err := m.cron.AddFunc(job.Spec, func() { m.runJob(job) })
		if err != nil {
			return fmt.Errorf("scheduler: job %q spec %q: %w", job.Name, job.Spec, err)
		}
		m.entries[job.Name] = id
	}
	return nil
}

func (m *SchedulerManager) Start() {
	m.cron.Start()
	zlog.Info("scheduler started", zap.Int("jobs", len(m.cron.Entries())))
}

// Stop 停止调度并等待运行中的任务结束，ctx 到期后不再等待
func (m *SchedulerManager) Stop(ctx context.Context) {
	done := m.cron.Stop()
	m.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		zlog.Warn("scheduler stop timed out")
	}
}

// Trigger 立即执行一次指定任务
func (m *SchedulerManager) Trigger(name string, jobs []Job) bool {
	for _, j := range jobs {
		if j.Name == name {
			m.runJob(j)
			return true
		}
	}
	return false
}

func (m *SchedulerManager) runJob(j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.JobRuns.WithLabelValues(j.Name, "panic").Inc()
			zlog.Error("scheduled job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
	}()

	ctx := m.ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	if err := j.Run(ctx); err != nil {
		metrics.JobRuns.WithLabelValues(j.Name, "error").Inc()
		zlog.Error("scheduled job failed", zap.String("job", j.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	metrics.JobRuns.WithLabelValues(j.Name, "ok").Inc()
	zlog.Info("scheduled job done", zap.String("job", j.Name), zap.Duration("elapsed", time.Since(start)))
}
