package service

// Page selects a window of a result list. A zero Limit means everything.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return p
}

// Bounds returns the [start, end) slice indexes of the page within total
// items.
func (p Page) Bounds(total int) (int, int) {
	p = p.normalized()
	if p.Limit == 0 {
		return 0, total
	}
	start := (p.Page - 1) * p.Limit
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}

// TotalPages is at least 1.
func (p Page) TotalPages(total int) int {
	p = p.normalized()
	if p.Limit == 0 || total == 0 {
		return 1
	}
	return (total + p.Limit - 1) / p.Limit
}

// Paginate returns the page's slice of items.
func Paginate[T any](items []T, p Page) []T {
	start, end := p.Bounds(len(items))
	return items[start:end]
}
