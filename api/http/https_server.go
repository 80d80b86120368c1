package http

import (
	"context"
	"time"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/initial"
	jwtMiddleware "KnowledgeHub/internal/middleware/jwt"
	chatService "KnowledgeHub/internal/modules/chat/application/service"
	chatCache "KnowledgeHub/internal/modules/chat/infrastructure/cache"
	chatPersistence "KnowledgeHub/internal/modules/chat/infrastructure/persistence"
	chatHandler "KnowledgeHub/internal/modules/chat/interface/http"
	kbService "KnowledgeHub/internal/modules/knowledge/application/service"
	"KnowledgeHub/internal/modules/knowledge/domain/event"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/chunking"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/embedding"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/extract"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/mq"
	kbPersistence "KnowledgeHub/internal/modules/knowledge/infrastructure/persistence"
	"KnowledgeHub/internal/modules/knowledge/infrastructure/vectordb"
	kbHandler "KnowledgeHub/internal/modules/knowledge/interface/http"
	"KnowledgeHub/internal/scheduler"
	"KnowledgeHub/pkg/cache"
	"KnowledgeHub/pkg/lock"
	"KnowledgeHub/pkg/redis"
	"KnowledgeHub/pkg/ssl"
	"KnowledgeHub/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var GE *gin.Engine

// MaintenanceJobs 由 main 注册到调度器
var MaintenanceJobs []scheduler.Job

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	if conf.MainConfig.TLS {
		GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	ctx := context.Background()

	// 向量库
	embedder, meta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("embedder init failed", zap.String("provider", conf.AIConfig.Embedding.Provider), zap.Error(err))
	}
	zlog.Info("embedder ready", zap.String("provider", meta.Provider), zap.String("model", meta.Model), zap.Int("dim", meta.Dim))

	var backend vectordb.CollectionBackend
	if initial.MilvusClient != nil {
		mb, err := vectordb.NewMilvusBackend(initial.MilvusClient, conf.MilvusConfig)
		if err != nil {
			zlog.Fatal("milvus backend init failed", zap.Error(err))
		}
		backend = mb
	} else {
		backend = vectordb.NewMemoryBackend(meta.Dim, conf.MilvusConfig.MetricType)
	}
	collections := vectordb.NewRegistry(backend)

	extractor, err := extract.NewExtractor(ctx)
	if err != nil {
		zlog.Fatal("extractor init failed", zap.Error(err))
	}

	var publisher event.Publisher = mq.LogPublisher{}
	if initial.KafkaPublisher != nil {
		publisher = mq.NewEventPublisher(initial.KafkaPublisher, conf.KafkaConfig.EventTopic)
	}

	// 会话缓存与用户级锁，Redis 不可用时退化为直连数据库和进程内锁
	var store cache.Store = cache.NopStore{}
	var locker lock.Locker = lock.NewKeyedMutex()
	if redis.IsConnected() {
		store = redis.NewStore(redis.GetClient())
		locker = redis.NewLocker(redis.GetClient(), "lock:", 10*time.Second)
	}
	sessionCache := chatCache.NewChatCache(store)

	kbRepo := kbPersistence.NewKnowledgeBaseRepository(initial.GormDB)
	fileRepo := kbPersistence.NewKnowledgeFileRepository(initial.GormDB)
	kbUow := kbPersistence.NewKnowledgeUnitOfWork(initial.GormDB)
	sessionRepo := chatPersistence.NewSessionRepository(initial.GormDB)
	messageRepo := chatPersistence.NewMessageRepository(initial.GormDB)
	chatUow := chatPersistence.NewChatUnitOfWork(initial.GormDB)

	ingestSvc := kbService.NewIngestService(kbService.IngestDeps{
		KnowledgeBases: kbRepo,
		Files:          fileRepo,
		UnitOfWork:     kbUow,
		Collections:    collections,
		Blobs:          initial.BlobStore,
		Extractor:      extractor,
		Chunker:        chunking.NewChunker(conf.IngestConfig.ChunkSize, conf.IngestConfig.ChunkOverlap),
		Embedder:       embedder,
		Publisher:      publisher,
	}, conf.IngestConfig)
	kbSvc := kbService.NewKnowledgeBaseService(kbRepo, fileRepo, collections, ingestSvc)
	retrieveSvc := kbService.NewRetrieveService(kbRepo, kbService.NewRetrievalRouter(collections, embedder, conf.RetrievalConfig))
	sessionSvc := chatService.NewSessionService(sessionRepo, chatUow, sessionCache, locker, conf.ChatConfig)
	messageSvc := chatService.NewMessageService(sessionRepo, messageRepo, sessionCache, conf.ChatConfig)
	cleanupSvc := chatService.NewCleanupService(sessionRepo, messageRepo, chatUow, sessionCache)

	MaintenanceJobs = scheduler.MaintenanceJobs(cleanupSvc, kbSvc)

	kbH := kbHandler.NewKnowledgeBaseHandler(kbSvc, retrieveSvc)
	fileH := kbHandler.NewFileHandler(ingestSvc, kbSvc)
	sessionH := chatHandler.NewSessionHandler(sessionSvc)
	messageH := chatHandler.NewMessageHandler(messageSvc)
	cleanupH := chatHandler.NewCleanupHandler(cleanupSvc)

	GE.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth())
	authed.POST("/knowledge-base", kbH.Create)
	authed.GET("/knowledge-base", kbH.List)
	authed.GET("/knowledge-base/search", kbH.Search)
	authed.POST("/knowledge-base/query", kbH.Query)
	authed.GET("/knowledge-base/:id", kbH.Get)
	authed.PUT("/knowledge-base/:id", kbH.Update)
	authed.DELETE("/knowledge-base/:id", kbH.Delete)

	authed.POST("/knowledge-base/:id/files", fileH.Upload)
	authed.POST("/knowledge-base/:id/files/batch", fileH.UploadBatch)
	authed.GET("/knowledge-base/:id/files", fileH.List)
	authed.GET("/knowledge-base/:id/files/count", fileH.Count)
	authed.DELETE("/knowledge-base/:id/files/all", fileH.DeleteAll)
	authed.GET("/knowledge-base/:id/files/:fileId", fileH.Get)
	authed.DELETE("/knowledge-base/:id/files/:fileId", fileH.Delete)

	authed.POST("/chat/session", sessionH.Create)
	authed.GET("/chat/session/current", sessionH.Current)
	authed.GET("/chat/sessions", sessionH.List)
	authed.GET("/chat/session/:sessionId", sessionH.Get)
	authed.POST("/chat/session/:sessionId/activate", sessionH.Activate)
	authed.PUT("/chat/session/:sessionId/title", sessionH.UpdateTitle)
	authed.POST("/chat/session/:sessionId/end", sessionH.End)
	authed.DELETE("/chat/session/:sessionId", sessionH.Delete)

	authed.POST("/chat/session/:sessionId/messages/user", messageH.SaveUser)
	authed.POST("/chat/session/:sessionId/messages/assistant", messageH.SaveAssistant)
	authed.GET("/chat/session/:sessionId/messages", messageH.List)
	authed.GET("/chat/session/:sessionId/messages/recent", messageH.Recent)

	authed.POST("/admin/fix-knowledge-base-file-count", kbH.FixFileCount)
	authed.GET("/admin/chat/cleanup/stats", cleanupH.Stats)
	authed.POST("/admin/chat/cleanup", cleanupH.Run)
}
