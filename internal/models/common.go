package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Pages  int `json:"pages"`
}

// NewPagination derives page counts from a total and window.
func NewPagination(total, limit, offset int) *Pagination {
	if limit <= 0 {
		limit = 10
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &Pagination{Total: total, Limit: limit, Offset: offset, Pages: pages}
}
