package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStorage struct {
	data []byte
}

func (m *memStorage) GetSettings(context.Context) ([]byte, error) {
	return m.data, nil
}

func (m *memStorage) PutSettings(_ context.Context, data []byte) error {
	m.data = data
	return nil
}

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	repo := NewRepository(&memStorage{})
	require.NoError(t, repo.Load(context.Background()))

	got := repo.Get()
	require.True(t, got.MemoryEnabled)
	require.Equal(t, DefaultBalance, got.Balance)
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	storage := &memStorage{}
	repo := NewRepository(storage)

	err := repo.Update(context.Background(), func(s *Settings) {
		s.SystemInstruction = "be brief"
		s.Credentials.Search = "key-123"
		s.Balance = 2.5
	})
	require.NoError(t, err)

	fresh := NewRepository(storage)
	require.NoError(t, fresh.Load(context.Background()))
	got := fresh.Get()
	require.Equal(t, "be brief", got.SystemInstruction)
	require.Equal(t, "key-123", got.Credentials.Search)
	require.Equal(t, 2.5, got.Balance)
}

func TestAddPreferenceDeduplicates(t *testing.T) {
	repo := NewRepository(&memStorage{})

	require.NoError(t, repo.AddPreference(context.Background(), "User prefers concise and analytical tone"))
	require.NoError(t, repo.AddPreference(context.Background(), "User prefers concise and analytical tone"))
	require.NoError(t, repo.AddPreference(context.Background(), "User prefers warm and detailed tone"))

	require.Len(t, repo.Get().Preferences, 2)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := NewRepository(&memStorage{})
	require.NoError(t, repo.AddPreference(context.Background(), "note"))

	got := repo.Get()
	got.Preferences[0] = "mutated"
	require.Equal(t, "note", repo.Get().Preferences[0])
}
