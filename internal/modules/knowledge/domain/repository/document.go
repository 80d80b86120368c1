package repository

import "context"

// BlobStore 原始文件存储
type BlobStore interface {
	// Put 返回可访问的 URL
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor 按文件类型抽取纯文本
type TextExtractor interface {
	Extract(ctx context.Context, fileType string, content []byte) (string, error)
}

// Chunker 切分后每段不超过配置的字符数
type Chunker interface {
	Split(ctx context.Context, text string) ([]string, error)
}
