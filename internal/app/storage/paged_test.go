package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, DefaultPageSize, p.Size)

	p = Page{Number: -3, Size: 10_000}.Normalize()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, MaxPageSize, p.Size)

	assert.Equal(t, 40, Page{Number: 3, Size: 20}.Offset())
	assert.Equal(t, 0, Page{}.Offset())
}

func TestSortNormalize(t *testing.T) {
	s := Sort{}.Normalize()
	assert.Equal(t, "createdAt", s.Field)
	assert.True(t, s.Desc)

	s = Sort{Field: "name"}.Normalize()
	assert.Equal(t, "name", s.Field)
	assert.False(t, s.Desc)
}

func TestNewPaged(t *testing.T) {
	paged := NewPaged([]int{1, 2, 3}, 45, Page{Number: 2, Size: 3})
	assert.Equal(t, int64(45), paged.Total)
	assert.Equal(t, 2, paged.Page)
	assert.Equal(t, 3, paged.Limit)
	assert.Equal(t, 15, paged.TotalPages)

	paged = NewPaged([]int{1}, 4, Page{Size: 3})
	assert.Equal(t, 2, paged.TotalPages)

	empty := NewPaged[int](nil, 0, Page{})
	assert.NotNil(t, empty.Data)
	assert.Empty(t, empty.Data)
	assert.Equal(t, 0, empty.TotalPages)
}
