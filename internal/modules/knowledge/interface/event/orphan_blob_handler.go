package event

import (
	"context"
	"strings"
	"time"

	"KnowledgeHub/internal/modules/knowledge/domain/event"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq"
	"KnowledgeHub/pkg/metrics"
	"KnowledgeHub/pkg/retry"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

// OrphanBlobHandler 消费 knowledge.blob.orphaned 事件并重试删除残留对象
type OrphanBlobHandler struct {
	blobs    repository.BlobStore
	attempts int
	backoff  time.Duration
}

var _ mq.Handler = (*OrphanBlobHandler)(nil)

func NewOrphanBlobHandler(blobs repository.BlobStore) *OrphanBlobHandler {
	return &OrphanBlobHandler{blobs: blobs, attempts: 3, backoff: time.Second}
}

// Handle 返回错误时消息不提交，等待重新投递；无法解析的消息直接跳过
func (h *OrphanBlobHandler) Handle(ctx context.Context, msg mq.Message) error {
	if t := msg.Headers[mq.HeaderEventType]; t != "" && t != string(event.TypeBlobOrphaned) {
		return nil
	}
	ev, err := mq.DecodeEvent(msg)
	if err != nil {
		zlog.Warn("skip undecodable knowledge event", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	if ev.Type != event.TypeBlobOrphaned || strings.TrimSpace(ev.BlobKey) == "" {
		return nil
	}

	err = retry.Do(ctx, h.attempts, h.backoff, func(ctx context.Context) error {
		return h.blobs.Delete(ctx, ev.BlobKey)
	})
	if err != nil {
		metrics.OrphanBlobs.WithLabelValues("failed").Inc()
		zlog.Error("sweep orphan blob failed", zap.Int64("kb_id", ev.KnowledgeBaseId), zap.String("blob_key", ev.BlobKey), zap.Error(err))
		return err
	}
	metrics.OrphanBlobs.WithLabelValues("swept").Inc()
	zlog.Info("orphan blob swept", zap.Int64("kb_id", ev.KnowledgeBaseId), zap.String("blob_key", ev.BlobKey), zap.String("reason", ev.Reason))
	return nil
}
