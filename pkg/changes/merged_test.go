package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	mc := New()
	mc.Inserts.Add(1)
	mc.Inserts.Add(2)
	mc.Updates.Add(3)
	mc.Deletes.Add(4)

	data, err := mc.Serialize()
	require.NoError(t, err)

	got, err := DeserializeMergedChanges(data)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, got.Inserts.ToArray())
	assert.Equal(t, []uint32{3}, got.Updates.ToArray())
	assert.Equal(t, []uint32{4}, got.Deletes.ToArray())
}

func TestDeserializeRejectsBadVersion(t *testing.T) {
	_, err := DeserializeMergedChanges([]byte{9, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	_, err := DeserializeMergedChanges([]byte{formatVersion})
	require.Error(t, err)
}

func TestRollbackTurnsDeletesIntoInserts(t *testing.T) {
	mc := New()
	mc.Updates.Add(1)
	mc.Deletes.Add(2)
	mc.Deletes.Add(3)

	mc.Rollback()

	assert.Equal(t, []uint32{2, 3}, mc.Inserts.ToArray())
	assert.True(t, mc.Deletes.IsEmpty())
	assert.Equal(t, []uint32{1}, mc.Updates.ToArray())
}

func TestIsEmpty(t *testing.T) {
	mc := New()
	assert.True(t, mc.IsEmpty())
	mc.Inserts.Add(1)
	assert.False(t, mc.IsEmpty())
}
