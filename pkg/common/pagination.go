package common

// Page size bounds shared by every list operation.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// PageRequest asks for one page of a cursor-paginated listing. Cursor is the
// opaque value returned as NextCursor by the previous page; empty means start.
type PageRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// EffectiveLimit clamps the requested limit, falling back to defaultSize.
func (p PageRequest) EffectiveLimit(defaultSize int) int32 {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return int32(limit)
}

// Page is one page of results plus the cursor for the next one.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// HasMore reports whether another page may follow.
func (p Page[T]) HasMore() bool {
	return p.NextCursor != ""
}
