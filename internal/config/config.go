package config

import (
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	TLS     bool   `toml:"tls"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
	MaxOpenConns int    `toml:"maxOpenConns"`
	MaxIdleConns int    `toml:"maxIdleConns"`
}

type LogConfig struct {
	LogPath    string `toml:"logPath"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type MilvusConfig struct {
	Address    string `toml:"address"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	DBName     string `toml:"dbName"`
	VectorDim  int    `toml:"vectorDim"`
	MetricType string `toml:"metricType"`
	IndexType  string `toml:"indexType"`
	Nlist      int    `toml:"nlist"`
	Nprobe     int    `toml:"nprobe"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"accessKey"`
	SecretKey string `toml:"secretKey"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"useSSL"`
	PublicURL string `toml:"publicURL"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	EventTopic      string   `toml:"eventTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
}

type AIEmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

// IngestConfig 文档入库相关配置
type IngestConfig struct {
	MaxFileSizeMB  int `toml:"maxFileSizeMB"`
	ChunkSize      int `toml:"chunkSize"`
	ChunkOverlap   int `toml:"chunkOverlap"`
	EmbedBatchSize int `toml:"embedBatchSize"`
	Workers        int `toml:"workers"`
}

// RetrievalConfig 多知识库检索配置
type RetrievalConfig struct {
	MaxFanout              int `toml:"maxFanout"`
	PerCollectionTimeoutMs int `toml:"perCollectionTimeoutMs"`
	DefaultTopK            int `toml:"defaultTopK"`
	MaxTopK                int `toml:"maxTopK"`
}

// ChatConfig 会话与消息分页、重试配置
type ChatConfig struct {
	DefaultPageSize    int `toml:"defaultPageSize"`
	MaxPageSize        int `toml:"maxPageSize"`
	DefaultRecentLimit int `toml:"defaultRecentLimit"`
	MaxRecentLimit     int `toml:"maxRecentLimit"`
	SaveRetries        int `toml:"saveRetries"`
	SaveRetryBackoffMs int `toml:"saveRetryBackoffMs"`
}

type CleanupConfig struct {
	Enabled bool `toml:"enabled"`
}

type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	JwtConfig       `toml:"jwtConfig"`
	MilvusConfig    `toml:"milvusConfig"`
	MinioConfig     `toml:"minioConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	AIConfig        `toml:"aiConfig"`
	LogConfig       `toml:"logConfig"`
	RedisConfig     `toml:"redisConfig"`
	IngestConfig    `toml:"ingestConfig"`
	RetrievalConfig `toml:"retrievalConfig"`
	ChatConfig      `toml:"chatConfig"`
	CleanupConfig   `toml:"cleanupConfig"`
}

var config *Config

// LoadConfig 读取 KH_CONFIG 指定的文件，缺省为 configs/config_local.toml
func LoadConfig() error {
	configPath := strings.TrimSpace(os.Getenv("KH_CONFIG"))
	if configPath == "" {
		configPath = "configs/config_local.toml"
	}
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 使用默认设置", err)
		config.ApplyDefaults()
		return err
	}
	config.ApplyDefaults()
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}

// ApplyDefaults 为未配置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.MainConfig.AppName == "" {
		c.MainConfig.AppName = "knowledge_hub"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8080
	}
	if c.MilvusConfig.DBName == "" {
		c.MilvusConfig.DBName = "default"
	}
	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 1536
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.MilvusConfig.IndexType == "" {
		c.MilvusConfig.IndexType = "IVF_FLAT"
	}
	if c.MilvusConfig.Nlist <= 0 {
		c.MilvusConfig.Nlist = 1024
	}
	if c.MilvusConfig.Nprobe <= 0 {
		c.MilvusConfig.Nprobe = 16
	}
	if c.MinioConfig.Bucket == "" {
		c.MinioConfig.Bucket = "knowledge"
	}
	if c.KafkaConfig.EventTopic == "" {
		c.KafkaConfig.EventTopic = "knowledge-events"
	}
	if c.KafkaConfig.ConsumerGroupID == "" {
		c.KafkaConfig.ConsumerGroupID = "knowledge-hub-sweeper"
	}

	ic := &c.IngestConfig
	if ic.MaxFileSizeMB <= 0 {
		ic.MaxFileSizeMB = 50
	}
	if ic.ChunkSize <= 0 {
		ic.ChunkSize = 800
	}
	if ic.ChunkOverlap < 0 || ic.ChunkOverlap >= ic.ChunkSize {
		ic.ChunkOverlap = 0
	}
	if ic.EmbedBatchSize <= 0 {
		ic.EmbedBatchSize = 16
	}
	if ic.Workers <= 0 {
		ic.Workers = 4
	}

	rc := &c.RetrievalConfig
	if rc.MaxFanout <= 0 {
		rc.MaxFanout = 8
	}
	if rc.PerCollectionTimeoutMs <= 0 {
		rc.PerCollectionTimeoutMs = 3000
	}
	if rc.DefaultTopK <= 0 {
		rc.DefaultTopK = 5
	}
	if rc.MaxTopK <= 0 {
		rc.MaxTopK = 50
	}

	cc := &c.ChatConfig
	if cc.DefaultPageSize <= 0 {
		cc.DefaultPageSize = 20
	}
	if cc.MaxPageSize <= 0 {
		cc.MaxPageSize = 100
	}
	if cc.DefaultRecentLimit <= 0 {
		cc.DefaultRecentLimit = 50
	}
	if cc.MaxRecentLimit <= 0 {
		cc.MaxRecentLimit = 200
	}
	if cc.SaveRetries <= 0 {
		cc.SaveRetries = 3
	}
	if cc.SaveRetryBackoffMs <= 0 {
		cc.SaveRetryBackoffMs = 500
	}
}
