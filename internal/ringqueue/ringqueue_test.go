package ringqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/schema"
)

func item(id string) schema.BufferedItem {
	return schema.BufferedItem{ID: id, Payload: []byte(id)}
}

func TestAddGetOrdering(t *testing.T) {
	q := New(4)
	for _, id := range []string{"a", "b", "c"} {
		_, evicted := q.Add(item(id))
		require.False(t, evicted)
	}
	assert.Equal(t, 3, q.Size())

	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestAddEvictsOldestWhenFull(t *testing.T) {
	q := New(2)
	q.Add(item("a"))
	q.Add(item("b"))

	evicted, didEvict := q.Add(item("c"))
	require.True(t, didEvict)
	assert.Equal(t, "a", evicted.ID)
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, uint64(1), q.Evicted())

	first, _ := q.Get()
	assert.Equal(t, "b", first.ID)
	second, _ := q.Get()
	assert.Equal(t, "c", second.ID)
}

func TestGetOnEmptyReturnsErrEmpty(t *testing.T) {
	q := New(2)
	_, err := q.Get()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestGetBatchCapsAtSize(t *testing.T) {
	q := New(10)
	for _, id := range []string{"a", "b", "c"} {
		q.Add(item(id))
	}
	batch := q.GetBatch(5)
	assert.Len(t, batch, 3)
	assert.Equal(t, "a", batch[0].ID)
	assert.True(t, q.IsEmpty())
}

func TestAddFrontRequeue(t *testing.T) {
	q := New(3)
	q.Add(item("b"))
	q.Add(item("c"))
	q.AddFront(item("a"))

	first, _ := q.Get()
	assert.Equal(t, "a", first.ID)
}

func TestUsageAndCapacity(t *testing.T) {
	q := New(4)
	q.Add(item("a"))
	assert.Equal(t, 4, q.Capacity())
	assert.InDelta(t, 0.25, q.Usage(), 0.0001)
	assert.False(t, q.IsFull())
}
