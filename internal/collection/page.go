package collection

import "context"

// Item is anything the store can list. Key is the stable identifier
// consumers use as a rendering key; the store never interprets T further.
type Item interface {
	Key() string
}

// Page is one page of results as reported by the backend.
type Page[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	PageSize   int
	TotalItems int
}

// Fetcher loads one page of a filtered remote collection.
type Fetcher[T any] interface {
	FetchPage(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[T], error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[T], error)

// FetchPage calls f.
func (f FetcherFunc[T]) FetchPage(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[T], error) {
	return f(ctx, filters, page, pageSize)
}

// PaginationState is the server-reported paging position of the current page.
type PaginationState struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	PageSize    int `json:"page_size"`
	TotalItems  int `json:"total_items"`
}

// MaxPage is the highest page the current page may be set to.
// An empty result set still has page 1.
func (p PaginationState) MaxPage() int {
	if p.TotalPages < 1 {
		return 1
	}
	return p.TotalPages
}

// Contains reports whether page is a valid position.
func (p PaginationState) Contains(page int) bool {
	return page >= 1 && page <= p.MaxPage()
}

func (p PaginationState) clamp() PaginationState {
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.CurrentPage > p.MaxPage() {
		p.CurrentPage = p.MaxPage()
	}
	return p
}

func paginationFromPage[T any](res *Page[T], requestedPage, requestedSize int) PaginationState {
	p := PaginationState{
		CurrentPage: res.Page,
		TotalPages:  res.TotalPages,
		PageSize:    res.PageSize,
		TotalItems:  res.TotalItems,
	}
	if p.CurrentPage == 0 {
		p.CurrentPage = requestedPage
	}
	if p.PageSize == 0 {
		p.PageSize = requestedSize
	}
	return p.clamp()
}
