package respond

import "KnowledgeHub/internal/modules/knowledge/domain/entity"

// RetrieveRespond 检索结果，Chunks 按距离升序
type RetrieveRespond struct {
	Query      string                  `json:"query"`
	Chunks     []entity.RetrievedChunk `json:"chunks"`
	Total      int                     `json:"total"`
	DurationMs int64                   `json:"durationMs"`
}

// UploadItem 批量上传中单个文件的结果
type UploadItem struct {
	OriginalName string                    `json:"originalName"`
	File         *entity.KnowledgeBaseFile `json:"file,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

type BatchUploadRespond struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []UploadItem `json:"items"`
}

type DeleteAllFilesRespond struct {
	Deleted int `json:"deleted"`
}

type FileCountRespond struct {
	KnowledgeBaseId int64 `json:"knowledgeBaseId"`
	Count           int64 `json:"count"`
}

type FixFileCountRespond struct {
	Fixed int64 `json:"fixed"`
}
