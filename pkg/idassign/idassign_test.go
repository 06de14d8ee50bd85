package idassign

import (
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4: used ids {0, 2, 5} recycle the gaps (1, 3, 4) before growing past
// the prior maximum (6, 7, 8, ...).
func TestAssignDocumentIDRecyclesGaps(t *testing.T) {
	used := roaring.New()
	used.Add(0)
	used.Add(2)
	used.Add(5)

	a := New(used)
	var got []uint32
	for i := 0; i < 7; i++ {
		got = append(got, a.AssignDocumentID())
	}
	assert.Equal(t, []uint32{1, 3, 4, 6, 7, 8, 9}, got)
}

func TestNewWithNoUsedIDsStartsAtZero(t *testing.T) {
	a := New(nil)
	assert.Equal(t, uint32(0), a.AssignDocumentID())
	assert.Equal(t, uint32(1), a.AssignDocumentID())
}

func TestCacheLoadsOnlyOnce(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	cache := NewCache(func(account types.AccountID, collection types.Collection) (*roaring.Bitmap, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return roaring.New(), nil
	})

	var wg sync.WaitGroup
	ids := make([]types.DocumentID, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := cache.Assign(1, types.CollectionMailbox)
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	seen := make(map[types.DocumentID]struct{}, 20)
	for _, id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "id %d assigned twice", id)
		seen[id] = struct{}{}
	}
}

func TestCacheEvictForcesReload(t *testing.T) {
	calls := 0
	cache := NewCache(func(account types.AccountID, collection types.Collection) (*roaring.Bitmap, error) {
		calls++
		return roaring.New(), nil
	})

	_, err := cache.Assign(1, types.CollectionMailbox)
	require.NoError(t, err)
	cache.Evict(1, types.CollectionMailbox)
	_, err = cache.Assign(1, types.CollectionMailbox)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}
