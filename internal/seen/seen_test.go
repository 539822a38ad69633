package seen

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "seen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_MarkAndSeen(t *testing.T) {
	s := openTemp(t)

	ok, err := s.Seen("https://a/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Mark("https://a/1", "https://a/2"))

	ok, err = s.Seen("https://a/1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Seen("https://a/3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Prune(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return now.Add(-4 * time.Hour) }
	require.NoError(t, s.Mark("old"))
	s.now = func() time.Time { return now.Add(-time.Hour) }
	require.NoError(t, s.Mark("fresh"))

	s.now = func() time.Time { return now }
	removed, err := s.Prune(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ok, _ := s.Seen("old")
	assert.False(t, ok)
	ok, _ = s.Seen("fresh")
	assert.True(t, ok)
}

func TestStore_Nil(t *testing.T) {
	var s *Store

	ok, err := s.Seen("x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Mark("x"))
	n, err := s.Prune(time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Close())
}
