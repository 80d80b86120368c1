package repository

import "context"

// VectorRecord 待写入或按 id 查回的向量记录
type VectorRecord struct {
	ID       string
	Text     string
	Metadata map[string]any
	Vector   []float32
}

// VectorHit 检索命中，Distance 已按度量类型归一化为"越小越近"
type VectorHit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance *float64
}

// VectorCollection 单个知识库的向量集合
type VectorCollection interface {
	Name() string
	// Write 一次批量写入，返回与 records 顺序一致的 id
	Write(ctx context.Context, records []VectorRecord) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	// Search threshold<=0 表示不过滤
	Search(ctx context.Context, vector []float32, threshold float64, topK int) ([]VectorHit, error)
	Get(ctx context.Context, ids []string) ([]VectorRecord, error)
}

// CollectionRegistry 按知识库管理向量集合生命周期，句柄只构造一次
type CollectionRegistry interface {
	GetOrCreate(ctx context.Context, kbID int64) (VectorCollection, error)
	Create(ctx context.Context, kbID int64, name string) error
	Drop(ctx context.Context, kbID int64, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}
