package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{0, 1},
		{1, 1},
		{10, 1},
		{11, 2},
		{70, 7},
		{71, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, TotalPages(tt.size), "size %d", tt.size)
	}
}

func TestPageWindowShortList(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, PageWindow(3, 2))
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, PageWindow(7, 4), "no ellipsis at the edge")
}

func TestPageWindowEllipsis(t *testing.T) {
	// 71 entries make 8 pages, past the collapse edge.
	assert.Equal(t, []string{"1", "...", "3", "4", "5", "...", "8"}, PageWindow(8, 4))
	assert.Equal(t, []string{"1", "2", "...", "8"}, PageWindow(8, 1))
	assert.Equal(t, []string{"1", "...", "7", "8"}, PageWindow(8, 8))
}

func TestPaginate(t *testing.T) {
	p := Paginate(71, 4)
	assert.Equal(t, 4, p.Current)
	assert.Equal(t, 8, p.Total)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	assert.Equal(t, "/page/3/", p.PrevURL)
	assert.Equal(t, "/page/5/", p.NextURL)

	p = Paginate(71, 2)
	assert.Equal(t, "/", p.PrevURL, "page 1 lives at the root")

	p = Paginate(5, 1)
	assert.False(t, p.HasPrev)
	assert.False(t, p.HasNext)

	// Out-of-range requests clamp.
	assert.Equal(t, 8, Paginate(71, 99).Current)
	assert.Equal(t, 1, Paginate(71, -3).Current)
}

func TestPageSlice(t *testing.T) {
	start, end := PageSlice(25, 1)
	assert.Equal(t, 0, start)
	assert.Equal(t, 10, end)

	start, end = PageSlice(25, 3)
	assert.Equal(t, 20, start)
	assert.Equal(t, 25, end)

	start, end = PageSlice(25, 9)
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)
}
