package initial

import (
	"context"
	"strings"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.uber.org/zap"
)

// MilvusClient 未配置地址时为 nil，向量检索退化为内存实现
var MilvusClient mclient.Client

func init() {
	conf := config.GetConfig()
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	if addr == "" {
		zlog.Info("milvus 未配置，使用内存向量库")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cli, err := newMilvusClient(ctx, conf.MilvusConfig)
	if err != nil {
		zlog.Fatal("milvus init failed", zap.String("address", addr), zap.Error(err))
		return
	}
	MilvusClient = cli
}

// newMilvusClient 确保 dbName 对应的数据库存在后再连接；集合按知识库懒创建
func newMilvusClient(ctx context.Context, mc config.MilvusConfig) (mclient.Client, error) {
	addr := strings.TrimSpace(mc.Address)
	dbName := strings.TrimSpace(mc.DBName)
	if dbName == "" {
		dbName = "default"
	}
	base := mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(mc.Username),
		Password: strings.TrimSpace(mc.Password),
		DBName:   "default",
	}
	if dbName == "default" {
		return mclient.NewClient(ctx, base)
	}

	defaultCli, err := mclient.NewClient(ctx, base)
	if err != nil {
		return nil, err
	}
	defer func() { _ = defaultCli.Close() }()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			return nil, err
		}
		zlog.Info("milvus database created", zap.String("db", dbName))
	}

	base.DBName = dbName
	return mclient.NewClient(ctx, base)
}
