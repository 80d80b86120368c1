package initial

import (
	"context"
	"strings"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/blob"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

// BlobStore 未配置 MinIO 时使用进程内存储，仅用于本地调试
var BlobStore repository.BlobStore

func init() {
	conf := config.GetConfig()
	if strings.TrimSpace(conf.MinioConfig.Endpoint) == "" {
		zlog.Warn("minio 未配置，文件仅保存在内存中")
		BlobStore = blob.NewMemoryStore()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := blob.NewMinioStore(ctx, conf.MinioConfig)
	if err != nil {
		zlog.Fatal("minio init failed", zap.String("endpoint", conf.MinioConfig.Endpoint), zap.Error(err))
		return
	}
	BlobStore = store
	zlog.Info("minio ready", zap.String("bucket", conf.MinioConfig.Bucket))
}
