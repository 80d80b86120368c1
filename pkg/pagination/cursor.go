package pagination

// CursorPage 游标分页结果；NextCursor 为本页最后一条记录的 id
type CursorPage[T any] struct {
	Records    []T    `json:"records"`
	Cursor     string `json:"cursor,omitempty"`
	NextCursor string `json:"nextCursor,omitempty"`
	Size       int    `json:"size"`
	HasNext    bool   `json:"hasNext"`
}

// NormalizeSize size<=0 取默认值，超过上限截断
func NormalizeSize(size, def, max int) int {
	if size <= 0 {
		size = def
	}
	if max > 0 && size > max {
		size = max
	}
	return size
}

// Build rows 须按 size+1 条查询；多出的一条只用于判断 HasNext
func Build[T any](rows []T, cursor string, size int, idOf func(T) string) CursorPage[T] {
	page := CursorPage[T]{Cursor: cursor, Size: size}
	if len(rows) > size {
		page.HasNext = true
		rows = rows[:size]
	}
	if rows == nil {
		rows = []T{}
	}
	page.Records = rows
	if len(rows) > 0 {
		page.NextCursor = idOf(rows[len(rows)-1])
	}
	return page
}
