package storage

// Pagination bounds. List queries never return more than MaxPageSize rows.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Normalize applies defaults and caps: page ≥ 1, size in [1, MaxPageSize].
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.Size
}

// Sort orders list queries. The zero value means "createdAt desc".
type Sort struct {
	Field string
	Desc  bool
}

// Normalize applies the default ordering.
func (s Sort) Normalize() Sort {
	if s.Field == "" {
		s.Field = "createdAt"
		s.Desc = true
	}
	return s
}

// Paged is the pagination envelope returned by list queries.
type Paged[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPaged builds the envelope for one page of results.
func NewPaged[T any](data []T, total int64, page Page) Paged[T] {
	page = page.Normalize()
	if data == nil {
		data = []T{}
	}
	totalPages := int(total) / page.Size
	if int(total)%page.Size != 0 {
		totalPages++
	}
	return Paged[T]{
		Data:       data,
		Total:      total,
		Page:       page.Number,
		Limit:      page.Size,
		TotalPages: totalPages,
	}
}
