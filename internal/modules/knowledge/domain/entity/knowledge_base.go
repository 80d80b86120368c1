package entity

import (
	"fmt"
	"time"
)

type Visibility string

const (
	VisibilityPersonal Visibility = "PERSONAL"
	VisibilityPublic   Visibility = "PUBLIC"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPersonal || v == VisibilityPublic
}

type KnowledgeBase struct {
	Id                   int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name                 string     `gorm:"column:name;type:varchar(128);not null;uniqueIndex:uniq_kb_name" json:"name"`
	DisplayName          string     `gorm:"column:display_name;type:varchar(200);not null" json:"displayName"`
	Description          string     `gorm:"column:description;type:varchar(1000)" json:"description"`
	Visibility           Visibility `gorm:"column:visibility;type:varchar(20);not null;default:PERSONAL;index:idx_kb_visibility" json:"visibility"`
	OwnerId              int64      `gorm:"column:owner_id;not null;index:idx_kb_owner" json:"ownerId"`
	FileCount            int        `gorm:"column:file_count;type:int;not null;default:0" json:"fileCount"`
	VectorCollectionName string     `gorm:"column:vector_collection_name;type:varchar(64)" json:"vectorCollectionName"`
	CreatedAt            time.Time  `gorm:"column:created_at;type:datetime;not null" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;type:datetime;not null" json:"updatedAt"`
}

func (KnowledgeBase) TableName() string { return "tb_knowledge_base" }

// AccessibleBy 公开知识库所有人可读，个人知识库仅所有者可读
func (kb *KnowledgeBase) AccessibleBy(userID int64) bool {
	if kb == nil {
		return false
	}
	return kb.Visibility == VisibilityPublic || kb.OwnerId == userID
}

func (kb *KnowledgeBase) OwnedBy(userID int64) bool {
	return kb != nil && kb.OwnerId == userID
}

// CollectionName 知识库对应的向量集合名
func CollectionName(kbID int64) string {
	return fmt.Sprintf("kb_%d", kbID)
}
