package chunking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// Chunker 优先按段落/句子递归切分，超长片段再按字符窗口切分
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce      sync.Once
	initErr       error
	recursiveImpl document.Transformer
}

var _ repository.Chunker = (*Chunker)(nil)

// NewChunker 设置切片大小与重叠长度（按字符计）
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{ChunkSize: size, ChunkOverlap: overlap}
}

func (c *Chunker) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", ". ", "? ", "! ", "，", ", ", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.recursiveImpl = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.recursiveImpl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	frags, err := c.recursiveImpl.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil || strings.TrimSpace(f.Content) == "" {
			continue
		}
		out = append(out, c.window(f.Content)...)
	}
	return out, nil
}

// window 基于 rune 数量切分，确保中文等多字节字符不会被截断
func (c *Chunker) window(text string) []string {
	runes := []rune(text)
	total := len(runes)
	if total <= c.ChunkSize {
		return []string{text}
	}

	step := c.ChunkSize - c.ChunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for i := 0; i < total; i += step {
		end := i + c.ChunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == total {
			break
		}
	}
	return chunks
}
