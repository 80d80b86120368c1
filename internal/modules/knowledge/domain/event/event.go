package event

import (
	"context"
	"time"
)

type Type string

const (
	TypeFileIngested Type = "knowledge.file.ingested"
	TypeFileDeleted  Type = "knowledge.file.deleted"
	TypeBlobOrphaned Type = "knowledge.blob.orphaned"
)

// KnowledgeEvent 知识库领域事件
type KnowledgeEvent struct {
	Type            Type      `json:"type"`
	KnowledgeBaseId int64     `json:"knowledgeBaseId"`
	FileId          int64     `json:"fileId,omitempty"`
	FileName        string    `json:"fileName,omitempty"`
	BlobKey         string    `json:"blobKey,omitempty"`
	VectorCount     int       `json:"vectorCount,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Publisher 事件投递是尽力而为的，失败不影响主流程
type Publisher interface {
	Publish(ctx context.Context, ev KnowledgeEvent) error
}
