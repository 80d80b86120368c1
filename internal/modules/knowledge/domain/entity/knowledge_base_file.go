package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// VectorIDList 以 JSON 数组存储，保持写入顺序
type VectorIDList []string

func (l VectorIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *VectorIDList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = VectorIDList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported vector_ids type %T", src)
	}
	if len(raw) == 0 {
		*l = VectorIDList{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}

type KnowledgeBaseFile struct {
	Id              int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	KnowledgeBaseId int64        `gorm:"column:knowledge_base_id;not null;index:idx_kb_file_kb" json:"knowledgeBaseId"`
	StoredName      string       `gorm:"column:stored_name;type:varchar(255);not null" json:"storedName"`
	OriginalName    string       `gorm:"column:original_name;type:varchar(255);not null" json:"originalName"`
	BlobURL         string       `gorm:"column:blob_url;type:varchar(512);not null" json:"blobUrl"`
	SizeBytes       int64        `gorm:"column:size_bytes;not null" json:"sizeBytes"`
	FileType        string       `gorm:"column:file_type;type:varchar(20);not null" json:"fileType"`
	VectorIds       VectorIDList `gorm:"column:vector_ids;type:json" json:"vectorIds"`
	UploaderId      int64        `gorm:"column:uploader_id;not null" json:"uploaderId"`
	CreatedAt       time.Time    `gorm:"column:created_at;type:datetime;not null" json:"createdAt"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;type:datetime;not null" json:"updatedAt"`
}

func (KnowledgeBaseFile) TableName() string { return "tb_knowledge_base_file" }
