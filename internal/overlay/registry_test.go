package overlay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(page int, x, y float64) *Shape {
	return &Shape{Type: KindRectangle, PageNo: page, X: x, Y: y, EndX: x + 10, EndY: y + 10, Colour: Red}
}

func TestRegistryAddListRemove(t *testing.T) {
	r := NewRegistry(2)
	a, b := rect(1, 0, 0), rect(1, 0, 0)

	require.NoError(t, r.Add(1, a))
	require.NoError(t, r.Add(1, b))

	list, err := r.List(1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Same(t, a, list[0])
	assert.Same(t, b, list[1])

	// identical fields, different identity
	assert.True(t, r.Remove(1, b))
	list, _ = r.List(1)
	require.Len(t, list, 1)
	assert.Same(t, a, list[0])

	assert.False(t, r.Remove(1, b))
	assert.False(t, r.Remove(5, a))
}

func TestRegistryListIsACopy(t *testing.T) {
	r := NewRegistry(1)
	require.NoError(t, r.Add(0, rect(0, 0, 0)))
	list, _ := r.List(0)
	list[0] = nil
	again, _ := r.List(0)
	assert.NotNil(t, again[0])
}

func TestRegistryOutOfRange(t *testing.T) {
	r := NewRegistry(3)
	for _, page := range []int{-1, 3, 10} {
		err := r.Add(page, rect(page, 0, 0))
		var oor *OutOfRangeError
		require.True(t, errors.As(err, &oor), "page %d", page)
		assert.Equal(t, page, oor.Page)
		assert.Equal(t, 3, oor.Count)

		_, err = r.List(page)
		assert.Error(t, err)
	}
}

func TestRegistryRejectsPageMismatchAndDuplicates(t *testing.T) {
	r := NewRegistry(3)
	a := rect(2, 0, 0)

	assert.ErrorIs(t, r.Add(1, a), ErrPageMismatch)
	list, _ := r.List(1)
	assert.Empty(t, list)

	require.NoError(t, r.Add(2, a))
	assert.ErrorIs(t, r.Add(2, a), ErrAlreadyAdded)
	list, _ = r.List(2)
	assert.Len(t, list, 1)
}

func TestRegistryReplaceAndRecords(t *testing.T) {
	r := NewRegistry(1)
	require.NoError(t, r.Add(0, rect(0, 0, 0)))

	c := NewComment(1, 0, 5, 6, 120, Blue, "good")
	require.NoError(t, r.Replace(0, []Annotation{c}))

	recs, err := r.Records(0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, KindComment, recs[0].Type)
	assert.Equal(t, "good", recs[0].RawText)
	require.NotNil(t, recs[0].Width)
	assert.Equal(t, 120.0, *recs[0].Width)

	assert.ErrorIs(t, r.Replace(0, []Annotation{rect(3, 0, 0)}), ErrPageMismatch)
}
