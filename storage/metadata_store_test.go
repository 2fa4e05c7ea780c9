package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadataStore(t *testing.T, mds MetadataStore) {
	_, found, err := mds.GetDB()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mds.PutDBAndNode([]byte("db v1"), 0, []byte("node 0")))
	require.NoError(t, mds.PutNode(1, []byte("node 1")))
	require.NoError(t, mds.PutDB([]byte("db v2")))

	buf, found, err := mds.GetDB()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "db v2", string(buf))

	buf, found, err = mds.GetNode(0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "node 0", string(buf))

	require.NoError(t, mds.DeleteNode(0))
	_, found, err = mds.GetNode(0)
	require.NoError(t, err)
	assert.False(t, found)

	buf, found, err = mds.GetNode(1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "node 1", string(buf))
}

func TestSimpleMetadataStore(t *testing.T) {
	testMetadataStore(t, NewSimpleMetadataStore())
}

func TestBadgerMetadataStore(t *testing.T) {
	db := TestBadgerDB()
	defer db.Close()
	testMetadataStore(t, NewBadgerMetadataStore(db))
}

func TestBadgerMetadataStore_SharesInstanceWithBackend(t *testing.T) {
	db := TestBadgerDB()
	defer db.Close()
	mds := NewBadgerMetadataStore(db)
	backend := NewBadgerBackend(db)

	require.NoError(t, mds.PutNode(0, []byte("spec")))
	batch := NewWriteBatch()
	batch.Put(RowSpace, 0, []byte("k"), []byte("row"))
	require.NoError(t, backend.Write(batch))
	require.NoError(t, backend.DropNode(0))

	buf, found, err := mds.GetNode(0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "spec", string(buf))
}
