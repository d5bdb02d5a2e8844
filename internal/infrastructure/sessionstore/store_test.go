package sessionstore

import (
	"os"
	"path/filepath"
	"testing"

	"futarchy_wallet/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	s.Set("wallet.connected", "true")
	s.Set("wallet.lastAccount", "0xabc")
	s.Set("token.added.PLAY.0x1.0xabc", "true")

	v, ok := s.Get("wallet.connected")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	s.DeletePrefix("wallet.")
	assert.Equal(t, []string{"token.added.PLAY.0x1.0xabc"}, s.Keys())

	s.Delete("token.added.PLAY.0x1.0xabc")
	assert.Empty(t, s.Keys())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yml")

	s, err := NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	s.Set("wallet.session", "account: 0xabc")
	s.Set("wallet.connected", "true")

	reopened, err := NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	v, ok := reopened.Get("wallet.session")
	require.True(t, ok)
	assert.Equal(t, "account: 0xabc", v)

	reopened.DeletePrefix("wallet.")
	again, err := NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	assert.Empty(t, again.Keys())
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	s, err := NewFileStore(path, logger.NewDiscard())
	require.NoError(t, err)
	assert.Empty(t, s.Keys())
}
