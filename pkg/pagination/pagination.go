// Package pagination converts between the catalog's skip/take windows and
// page numbers.
package pagination

const (
	// DefaultTake is the page size used when none is given.
	DefaultTake = 12
	// MaxTake caps the page size a caller may request.
	MaxTake = 100
)

// Page is a 1-based page of Size items.
type Page struct {
	Number int
	Size   int
}

// New normalises number and size. Non-positive values and sizes above
// MaxTake fall back to the first page and DefaultTake.
func New(number, size int) Page {
	p := Page{Number: 1, Size: DefaultTake}
	if number > 0 {
		p.Number = number
	}
	if size > 0 && size <= MaxTake {
		p.Size = size
	}
	return p
}

// FromSkipTake is the page a raw skip/take pair starts on.
func FromSkipTake(skip, take int) Page {
	p := New(1, take)
	if skip > 0 {
		p.Number = skip/p.Size + 1
	}
	return p
}

// Skip is the number of items before the page.
func (p Page) Skip() int { return (p.Number - 1) * p.Size }

// Take is the page size.
func (p Page) Take() int { return p.Size }

// Count is the number of pages total items fill. An empty listing still has
// one page.
func (p Page) Count(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + p.Size - 1) / p.Size
}

// HasNext reports whether another page follows for total items.
func (p Page) HasNext(total int) bool {
	return p.Number < p.Count(total)
}

// Window returns items[skip : skip+take] clamped to the slice bounds.
func Window[T any](items []T, skip, take int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if take > 0 && skip+take < end {
		end = skip + take
	}
	return items[skip:end]
}
