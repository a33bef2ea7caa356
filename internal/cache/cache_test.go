package cache

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/mayflower/rpg-explainer/internal/model"
)

func record(path string) model.FileRecord {
	rec := model.NewFileRecord(path)
	rec.Procedures = append(rec.Procedures, model.Procedure{
		Name:          "Main",
		Params:        []model.Parameter{},
		CallsInternal: []string{"Helper"},
		CallsExternal: []string{},
		UsesFiles:     []string{"CUSTFILE"},
	})
	return rec
}

func open(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	t.Parallel()
	s := open(t, filepath.Join(t.TempDir(), "cache.db"))
	src := []byte("**FREE\ndcl-proc Main;\nend-proc;\n")

	_, ok, err := s.Get("a.rpgle", src)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("a.rpgle", src, record("a.rpgle")))

	got, ok, err := s.Get("a.rpgle", src)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record("a.rpgle"), got)

	_, ok, err = s.Get("a.rpgle", append(src, ' '))
	require.NoError(t, err)
	assert.False(t, ok, "changed content must miss")

	_, ok, err = s.Get("b.rpgle", src)
	require.NoError(t, err)
	assert.False(t, ok, "other path must miss")

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetReturnsIndependentRecords(t *testing.T) {
	t.Parallel()
	s := open(t, filepath.Join(t.TempDir(), "cache.db"))
	src := []byte("x")
	require.NoError(t, s.Put("a.rpgle", src, record("a.rpgle")))

	first, _, err := s.Get("a.rpgle", src)
	require.NoError(t, err)
	first.Procedures[0].CallsInternal[0] = "Mutated"

	second, _, err := s.Get("a.rpgle", src)
	require.NoError(t, err)
	assert.Equal(t, "Helper", second.Procedures[0].CallsInternal[0])
}

func TestPersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	src := []byte("source")

	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Put("a.rpgle", src, record("a.rpgle")))
	require.NoError(t, s.Close())

	s = open(t, path)
	got, ok, err := s.Get("a.rpgle", src)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Main", got.Procedures[0].Name)
}

func setSchema(t *testing.T, path string, version uint64) {
	t.Helper()
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, version)
		return tx.Bucket(bucketMeta).Put(keySchema, v)
	}))
}

func TestNewerSchemaIsRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	setSchema(t, path, SchemaVersion+1)

	_, err = Open(path, 0)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOlderSchemaIsCleared(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Put("a.rpgle", []byte("x"), record("a.rpgle")))
	require.NoError(t, s.Close())

	setSchema(t, path, SchemaVersion-1)

	s = open(t, path)
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClear(t *testing.T) {
	t.Parallel()
	s := open(t, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, s.Put("a.rpgle", []byte("x"), record("a.rpgle")))
	require.NoError(t, s.Clear())

	_, ok, err := s.Get("a.rpgle", []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Key("a", []byte("b")), Key("a", []byte("b")))
	assert.NotEqual(t, Key("a", []byte("b")), Key("a", []byte("c")))
	assert.NotEqual(t, Key("ab", []byte("c")), Key("a", []byte("bc")))
	assert.Len(t, Key("a", nil), 64)
}
