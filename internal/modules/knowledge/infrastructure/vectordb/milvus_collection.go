package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"
	"KnowledgeHub/pkg/util"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

type milvusCollection struct {
	cli         mclient.Client
	name        string
	dim         int
	metric      string
	searchParam entity.SearchParam
}

func (c *milvusCollection) Name() string { return c.name }

func (c *milvusCollection) Write(ctx context.Context, records []repository.VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(records))
	contents := make([]string, 0, len(records))
	metas := make([][]byte, 0, len(records))
	vectors := make([][]float32, 0, len(records))

	for _, rec := range records {
		if len(rec.Vector) != c.dim {
			return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(rec.Vector), c.dim)
		}
		id := rec.ID
		if id == "" {
			id = util.GenerateUUID()
		}
		meta, err := json.Marshal(orEmpty(rec.Metadata))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		contents = append(contents, rec.Text)
		metas = append(metas, meta)
		vectors = append(vectors, rec.Vector)
	}

	_, err := c.cli.Insert(
		ctx,
		c.name,
		"",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnVarChar(FieldContent, contents),
		entity.NewColumnJSONBytes(FieldMetadata, metas),
		entity.NewColumnFloatVector(FieldEmbedding, c.dim, vectors),
	)
	if err != nil {
		return nil, err
	}
	if err := c.cli.Flush(ctx, c.name, false); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *milvusCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.cli.Delete(ctx, c.name, "", idInExpr(ids))
}

func (c *milvusCollection) Search(ctx context.Context, vector []float32, threshold float64, topK int) ([]repository.VectorHit, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), c.dim)
	}
	if topK <= 0 {
		topK = 5
	}
	res, err := c.cli.Search(
		ctx,
		c.name,
		[]string{},
		"",
		[]string{FieldContent, FieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		metricTypeOf(c.metric),
		topK,
		c.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return []repository.VectorHit{}, nil
	}
	return c.parseSearchResult(res[0], threshold)
}

func (c *milvusCollection) parseSearchResult(sr mclient.SearchResult, threshold float64) ([]repository.VectorHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	contentCol := columnByName(sr.Fields, FieldContent)
	metaCol := columnByName(sr.Fields, FieldMetadata)

	hits := make([]repository.VectorHit, 0, sr.ResultCount)
	for i := 0; i < sr.ResultCount; i++ {
		id, _ := sr.IDs.GetAsString(i)
		h := repository.VectorHit{ID: id}
		if i < len(sr.Scores) {
			d := ScoreToDistance(c.metric, sr.Scores[i])
			h.Distance = &d
		}
		if !KeepHit(h.Distance, threshold) {
			continue
		}
		if contentCol != nil {
			h.Text, _ = contentCol.GetAsString(i)
		}
		h.Metadata = decodeMetadata(metaCol, i)
		hits = append(hits, h)
	}
	sortVectorHits(hits)
	return hits, nil
}

func (c *milvusCollection) Get(ctx context.Context, ids []string) ([]repository.VectorRecord, error) {
	if len(ids) == 0 {
		return []repository.VectorRecord{}, nil
	}
	rs, err := c.cli.Query(ctx, c.name, []string{}, idInExpr(ids), []string{FieldID, FieldContent, FieldMetadata, FieldEmbedding})
	if err != nil {
		return nil, err
	}
	idCol := columnByName(rs, FieldID)
	if idCol == nil {
		return []repository.VectorRecord{}, nil
	}
	contentCol := columnByName(rs, FieldContent)
	metaCol := columnByName(rs, FieldMetadata)
	var vectors [][]float32
	if vc, ok := columnByName(rs, FieldEmbedding).(*entity.ColumnFloatVector); ok {
		vectors = vc.Data()
	}

	out := make([]repository.VectorRecord, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		rec := repository.VectorRecord{}
		rec.ID, _ = idCol.GetAsString(i)
		if contentCol != nil {
			rec.Text, _ = contentCol.GetAsString(i)
		}
		rec.Metadata = decodeMetadata(metaCol, i)
		if i < len(vectors) {
			rec.Vector = vectors[i]
		}
		out = append(out, rec)
	}
	return out, nil
}

func metricTypeOf(metric string) entity.MetricType {
	switch metric {
	case MetricIP:
		return entity.IP
	case MetricL2:
		return entity.L2
	default:
		return entity.COSINE
	}
}

func idInExpr(ids []string) string {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, strconv.Quote(id))
	}
	return fmt.Sprintf("%s in [%s]", FieldID, strings.Join(quoted, ","))
}

func decodeMetadata(col entity.Column, i int) map[string]any {
	if col == nil {
		return nil
	}
	v, err := col.Get(i)
	if err != nil {
		return nil
	}
	bs, ok := v.([]byte)
	if !ok || len(bs) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil
	}
	return m
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
