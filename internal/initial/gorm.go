package initial

import (
	"fmt"
	"log"
	"os"
	"time"

	"KnowledgeHub/internal/config"
	chatEntity "KnowledgeHub/internal/modules/chat/domain/entity"
	kbEntity "KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var GormDB *gorm.DB

func init() {
	conf := config.GetConfig()
	mc := conf.MysqlConfig
	dbName := mc.DatabaseName
	if dbName == "" {
		dbName = conf.AppName
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", mc.User, mc.Password, mc.Host, mc.Port, dbName)
	var err error
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		zlog.Fatal("mysql open failed", zap.String("host", mc.Host), zap.Error(err))
	}

	sqlDB, err := GormDB.DB()
	if err != nil {
		zlog.Fatal("mysql pool unavailable", zap.Error(err))
	}
	if mc.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(mc.MaxOpenConns)
	}
	if mc.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(mc.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移，如果没有建表，会自动创建对应的表
	err = GormDB.AutoMigrate(
		&kbEntity.KnowledgeBase{},
		&kbEntity.KnowledgeBaseFile{},
		&chatEntity.ChatSession{},
		&chatEntity.ChatMessage{},
	)
	if err != nil {
		zlog.Fatal("auto migrate failed", zap.Error(err))
	}
}
