package initial

import (
	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq/kafka"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
)

// KafkaPublisher 未配置 broker 或连接失败时为 nil，事件只写日志
var KafkaPublisher mq.Publisher

func init() {
	kc := config.GetConfig().KafkaConfig
	if len(kc.Brokers) == 0 {
		zlog.Info("kafka 未配置，知识库事件仅记录日志")
		return
	}

	if err := kafka.EnsureTopic(kafka.TopicAdminConfig{Brokers: kc.Brokers, ClientID: kc.ClientID}, kc.EventTopic, kc.Partitions, kc.Replication); err != nil {
		zlog.Warn("kafka ensure topic failed", zap.String("topic", kc.EventTopic), zap.Error(err))
	}

	pub, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{Brokers: kc.Brokers, ClientID: kc.ClientID})
	if err != nil {
		zlog.Error("kafka publisher init failed", zap.Strings("brokers", kc.Brokers), zap.Error(err))
		return
	}
	KafkaPublisher = pub
}
