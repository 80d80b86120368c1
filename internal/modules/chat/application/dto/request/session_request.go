package request

type UpdateSessionTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// CursorQuery 游标分页参数，cursor 为空表示从头开始
type CursorQuery struct {
	Cursor string `form:"cursor"`
	Size   int    `form:"size"`
}
