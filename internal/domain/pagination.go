package domain

// PaginationParams selects one page of a list response.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset returns the 0-based index of the first element of the page.
func (p PaginationParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}
