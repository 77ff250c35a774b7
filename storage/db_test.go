package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("a"), []byte("old")))

	entries := map[string][]byte{
		"a": []byte("new"),
		"b": []byte("fresh"),
	}
	require.NoError(t, db.WriteBatch(entries))

	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), value)
	value, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("fresh"), value)

	// The store must hold its own copies of batch values.
	entries["b"][0] = 'X'
	value, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("fresh"), value)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("v")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), stored)
}
