package render

import "fmt"

// PostsPerPage is the list page size.
const PostsPerPage = 10

// pageWindowEdge is the page count above which the index window collapses
// into the [1, …, current±1, …, N] ellipsis form.
const pageWindowEdge = 7

// Pagination describes one page of a chronological list.
type Pagination struct {
	Current int
	Total   int
	// Pages holds page numbers as strings with "..." sentinels for
	// skipped runs.
	Pages   []string
	HasPrev bool
	HasNext bool
	PrevURL string
	NextURL string
}

// TotalPages returns ceil(size / PostsPerPage), never less than 1.
func TotalPages(size int) int {
	if size <= 0 {
		return 1
	}
	return (size + PostsPerPage - 1) / PostsPerPage
}

// Paginate builds the pagination descriptor for page current of a list
// with size items. Page URLs follow the /page/<n>/ convention with page 1
// at /.
func Paginate(size, current int) *Pagination {
	total := TotalPages(size)
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	p := &Pagination{
		Current: current,
		Total:   total,
		Pages:   PageWindow(total, current),
		HasPrev: current > 1,
		HasNext: current < total,
	}
	if p.HasPrev {
		if current == 2 {
			p.PrevURL = "/"
		} else {
			p.PrevURL = fmt.Sprintf("/page/%d/", current-1)
		}
	}
	if p.HasNext {
		p.NextURL = fmt.Sprintf("/page/%d/", current+1)
	}
	return p
}

// PageWindow returns the visible page indices. Lists of at most
// pageWindowEdge pages show every index; longer lists show the first page,
// a window around the current page and the last page, with "..." standing
// in for each skipped run.
func PageWindow(total, current int) []string {
	if total <= pageWindowEdge {
		out := make([]string, total)
		for i := range out {
			out[i] = fmt.Sprintf("%d", i+1)
		}
		return out
	}

	show := func(n int) bool {
		return n == 1 || n == total || (n >= current-1 && n <= current+1)
	}

	var out []string
	gap := false
	for n := 1; n <= total; n++ {
		if show(n) {
			if gap {
				out = append(out, "...")
				gap = false
			}
			out = append(out, fmt.Sprintf("%d", n))
			continue
		}
		gap = true
	}
	return out
}

// PageSlice returns the half-open index range of page current.
func PageSlice(size, current int) (start, end int) {
	start = (current - 1) * PostsPerPage
	if start > size {
		start = size
	}
	end = start + PostsPerPage
	if end > size {
		end = size
	}
	return start, end
}
