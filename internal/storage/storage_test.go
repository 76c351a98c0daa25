package storage

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, KeyUserToken, "tok-1"))
	v, ok, err := b.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)

	require.NoError(t, b.Set(ctx, KeyUserToken, "tok-2"))
	v, _, err = b.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", v)

	require.NoError(t, b.Delete(ctx, KeyUserToken))
	_, ok, err = b.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error
	require.NoError(t, b.Delete(ctx, "missing"))
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	exerciseBackend(t, f)
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	ctx := context.Background()

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, KeyCaretSeenID, "42"))

	second, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, KeyCaretSeenID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestSQLiteBackend(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "recach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseBackend(t, s)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	r := NewRedisWithClient(client, "recach:")

	mock.ExpectGet("recach:" + KeyAdminToken).RedisNil()
	mock.ExpectSet("recach:"+KeyAdminToken, "adm", 0).SetVal("OK")
	mock.ExpectGet("recach:" + KeyAdminToken).SetVal("adm")
	mock.ExpectDel("recach:" + KeyAdminToken).SetVal(1)

	_, ok, err := r.Get(ctx, KeyAdminToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, KeyAdminToken, "adm"))

	v, ok, err := r.Get(ctx, KeyAdminToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "adm", v)

	require.NoError(t, r.Delete(ctx, KeyAdminToken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	b, err = Open(Options{Backend: "file", Path: filepath.Join(dir, "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, b)

	b, err = Open(Options{Backend: "sqlite", Path: filepath.Join(dir, "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	b.Close()

	_, err = Open(Options{Backend: "etcd"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "file"})
	assert.Error(t, err)
}

func TestFileWatchSeesForeignWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watching, err := NewFile(path)
	require.NoError(t, err)

	var changes atomic.Int32
	require.NoError(t, watching.Watch(ctx, func() { changes.Add(1) }))

	other, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, other.Set(ctx, KeyUserToken, "from-elsewhere"))

	require.Eventually(t, func() bool { return changes.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}
