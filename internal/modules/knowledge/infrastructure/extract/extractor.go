package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
)

// Extractor 按文件类型选择 eino 解析器抽取纯文本
type Extractor struct {
	parsers map[string]einoparser.Parser
}

var _ repository.TextExtractor = (*Extractor)(nil)

func NewExtractor(ctx context.Context) (*Extractor, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	docxParser, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  true,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("init docx parser: %w", err)
	}
	text := &textParser{}

	return &Extractor{parsers: map[string]einoparser.Parser{
		"pdf":  pdfParser,
		"docx": docxParser,
		// 旧版 doc 只有 OOXML 格式的能解析成功
		"doc": docxParser,
		"txt": text,
		"md":  text,
	}}, nil
}

func (e *Extractor) Extract(ctx context.Context, fileType string, content []byte) (string, error) {
	p, ok := e.parsers[strings.ToLower(strings.TrimSpace(fileType))]
	if !ok {
		return "", fmt.Errorf("unsupported file type: %s", fileType)
	}
	docs, err := p.Parse(ctx, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", fileType, err)
	}
	return joinDocuments(docs), nil
}

func joinDocuments(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		if s := strings.TrimSpace(d.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// textParser txt/md 原样读取
type textParser struct{}

func (p *textParser) Parse(_ context.Context, reader io.Reader, _ ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	if len(content) == 0 {
		return []*schema.Document{}, nil
	}
	return []*schema.Document{{Content: string(content), MetaData: map[string]any{}}}, nil
}
