package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	FieldID        = "id"
	FieldContent   = "content"
	FieldMetadata  = "metadata"
	FieldEmbedding = "embedding"

	idMaxLength      = 64
	contentMaxLength = 65535
)

// MilvusBackend 每个知识库一个集合，schema 固定为 id/content/metadata/embedding
type MilvusBackend struct {
	cli       mclient.Client
	dim       int
	metric    string
	indexType string
	nlist     int
	nprobe    int
}

var _ CollectionBackend = (*MilvusBackend)(nil)

func NewMilvusBackend(cli mclient.Client, conf config.MilvusConfig) (*MilvusBackend, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if conf.VectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", conf.VectorDim)
	}
	return &MilvusBackend{
		cli:       cli,
		dim:       conf.VectorDim,
		metric:    NormalizeMetric(conf.MetricType),
		indexType: strings.ToUpper(strings.TrimSpace(conf.IndexType)),
		nlist:     conf.Nlist,
		nprobe:    conf.Nprobe,
	}, nil
}

func (b *MilvusBackend) Has(ctx context.Context, name string) (bool, error) {
	return b.cli.HasCollection(ctx, name)
}

func (b *MilvusBackend) Create(ctx context.Context, name string) error {
	schema := &entity.Schema{
		CollectionName: name,
		Description:    "knowledge base chunks",
		AutoID:         false,
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": strconv.Itoa(idMaxLength)},
			},
			{
				Name:       FieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(contentMaxLength)},
			},
			{
				Name:     FieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       FieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(b.dim)},
			},
		},
	}
	if err := b.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return err
	}

	idx, err := b.newIndex()
	if err != nil {
		return err
	}
	if err := b.cli.CreateIndex(ctx, name, FieldEmbedding, idx, false); err != nil {
		return err
	}
	return b.cli.LoadCollection(ctx, name, false)
}

func (b *MilvusBackend) Drop(ctx context.Context, name string) error {
	return b.cli.DropCollection(ctx, name)
}

func (b *MilvusBackend) Open(ctx context.Context, name string) (repository.VectorCollection, error) {
	sp, err := b.newSearchParam()
	if err != nil {
		return nil, err
	}
	return &milvusCollection{
		cli:         b.cli,
		name:        name,
		dim:         b.dim,
		metric:      b.metric,
		searchParam: sp,
	}, nil
}

func (b *MilvusBackend) newIndex() (entity.Index, error) {
	switch b.indexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metricTypeOf(b.metric), b.nlist)
	case "HNSW":
		return entity.NewIndexHNSW(metricTypeOf(b.metric), 16, 200)
	case "FLAT":
		return entity.NewIndexFlat(metricTypeOf(b.metric))
	default:
		return entity.NewIndexAUTOINDEX(metricTypeOf(b.metric))
	}
}

func (b *MilvusBackend) newSearchParam() (entity.SearchParam, error) {
	switch b.indexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlatSearchParam(b.nprobe)
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(64)
	case "FLAT":
		return entity.NewIndexFlatSearchParam()
	default:
		return entity.NewIndexAUTOINDEXSearchParam(1)
	}
}
