package database

import "github.com/thereayou/sellboard/internal/models"

// Page is one slice of an ordered feed plus what is needed to render page links.
type Page struct {
	Items   []models.Sell
	Page    int
	PerPage int
	Total   int64
}

func (p Page) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

func (p Page) HasPrev() bool { return p.Page > 1 }
func (p Page) HasNext() bool { return p.Page < p.Pages() }
func (p Page) PrevNum() int  { return p.Page - 1 }
func (p Page) NextNum() int  { return p.Page + 1 }

// IterPages yields page numbers for pagination links. A zero marks a gap
// between non-adjacent numbers.
func (p Page) IterPages(leftEdge, leftCurrent, rightCurrent, rightEdge int) []int {
	pages := p.Pages()
	out := make([]int, 0, pages)
	last := 0
	for num := 1; num <= pages; num++ {
		if num <= leftEdge ||
			(num > p.Page-leftCurrent-1 && num < p.Page+rightCurrent) ||
			num > pages-rightEdge {
			if last+1 != num {
				out = append(out, 0)
			}
			out = append(out, num)
			last = num
		}
	}
	return out
}

// Links is the link layout used by the feed templates.
func (p Page) Links() []int {
	return p.IterPages(1, 1, 2, 1)
}
