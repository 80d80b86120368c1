package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	https_server "KnowledgeHub/api/http"
	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/initial"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq/kafka"
	"KnowledgeHub/internal/modules/knowledge/interface/event"
	"KnowledgeHub/internal/scheduler"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/redis"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	defer zlog.Sync()

	// 1. 加载配置
	conf := config.GetConfig()
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 连接池指标
	if sqlDB, err := initial.GormDB.DB(); err == nil {
		go metrics.CollectDBStats(ctx, sqlDB, 15*time.Second)
	}

	// 3. 定时任务
	var sched *scheduler.SchedulerManager
	if conf.CleanupConfig.Enabled {
		sched = scheduler.NewSchedulerManager()
		if err := sched.Register(https_server.MaintenanceJobs...); err != nil {
			zlog.Fatal("scheduler register failed", zap.Error(err))
		}
		sched.Start()
	}

	// 4. 残留文件清理消费者
	consumer := startOrphanSweeper(ctx, conf.KafkaConfig)

	// 5. 启动 HTTP 服务
	srv := &http.Server{Addr: addr, Handler: https_server.GE}
	go func() {
		zlog.Info("服务器正在启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 6. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown failed", zap.Error(err))
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	cancel()
	if consumer != nil {
		_ = consumer.Close()
	}
	if initial.KafkaPublisher != nil {
		_ = initial.KafkaPublisher.Close()
	}
	if initial.MilvusClient != nil {
		_ = initial.MilvusClient.Close()
	}
	if err := redis.Close(); err != nil {
		zlog.Warn("redis close failed", zap.Error(err))
	}
	if sqlDB, err := initial.GormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	zlog.Info("服务器已关闭")
}

func startOrphanSweeper(ctx context.Context, kc config.KafkaConfig) mq.Consumer {
	if len(kc.Brokers) == 0 {
		return nil
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  kc.Brokers,
		GroupID:  kc.ConsumerGroupID,
		Topics:   []string{kc.EventTopic},
		ClientID: kc.ClientID,
	})
	if err != nil {
		zlog.Error("orphan sweeper disabled", zap.Error(err))
		return nil
	}
	handler := event.NewOrphanBlobHandler(initial.BlobStore)
	go func() {
		if err := consumer.Run(ctx, handler); err != nil && ctx.Err() == nil {
			zlog.Error("orphan sweeper stopped", zap.Error(err))
		}
	}()
	return consumer
}
