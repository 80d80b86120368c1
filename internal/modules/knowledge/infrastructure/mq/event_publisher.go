package mq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"KnowledgeHub/internal/modules/knowledge/domain/event"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

const HeaderEventType = "event_type"

// EventPublisher 把领域事件序列化为 JSON 投递到一个 topic，按知识库 id 分区
type EventPublisher struct {
	pub   Publisher
	topic string
}

var _ event.Publisher = (*EventPublisher)(nil)

func NewEventPublisher(pub Publisher, topic string) *EventPublisher {
	return &EventPublisher{pub: pub, topic: topic}
}

func (p *EventPublisher) Publish(ctx context.Context, ev event.KnowledgeEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.pub.Publish(ctx, Message{
		Topic:   p.topic,
		Key:     []byte(strconv.FormatInt(ev.KnowledgeBaseId, 10)),
		Value:   b,
		Headers: map[string]string{HeaderEventType: string(ev.Type)},
	})
	return err
}

// DecodeEvent 解析 EventPublisher 写出的消息
func DecodeEvent(msg Message) (event.KnowledgeEvent, error) {
	var ev event.KnowledgeEvent
	err := json.Unmarshal(msg.Value, &ev)
	return ev, err
}

// LogPublisher 未配置 Kafka 时只记录日志
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev event.KnowledgeEvent) error {
	zlog.Info("knowledge event",
		zap.String("type", string(ev.Type)),
		zap.Int64("kb_id", ev.KnowledgeBaseId),
		zap.Int64("file_id", ev.FileId),
		zap.String("blob_key", ev.BlobKey),
		zap.String("reason", ev.Reason))
	return nil
}
