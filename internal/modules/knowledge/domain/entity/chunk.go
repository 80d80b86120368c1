package entity

// 向量元数据字段
const (
	MetaKnowledgeBaseID = "knowledgeBaseId"
	MetaFileName        = "fileName"
	MetaFileType        = "fileType"
	MetaChunkIndex      = "chunkIndex"
)

// DocumentChunk 切分后的文本片段，只随向量写入持久化
type DocumentChunk struct {
	Text     string
	Ordinal  int
	Metadata map[string]any
}

// RetrievedChunk 检索命中；Distance 越小越相似，可能缺失
type RetrievedChunk struct {
	Id              string         `json:"id"`
	KnowledgeBaseId int64          `json:"knowledgeBaseId"`
	Text            string         `json:"text"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Distance        *float64       `json:"distance,omitempty"`
}
