package session

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data  map[string][]byte
	saves int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) SaveSession(identity string, cookies []byte) error {
	s.saves++
	s.data[identity] = cookies
	return nil
}

func (s *memStore) LoadSession(identity string) ([]byte, bool, error) {
	blob, ok := s.data[identity]
	return blob, ok, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "user_example_com"},
		{"User@Example.COM", "user_example_com"},
		{"plain", "plain"},
		{"a b+c", "a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in))
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store := newMemStore()
	adapter := NewAdapter(store, testLogger())

	cookies := []Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Secure: true},
		{Name: "pref", Value: "1", Domain: ".example.com", Path: "/"},
	}
	require.NoError(t, adapter.Save("user@example.com", cookies))

	loaded, found, err := adapter.Load("user@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cookies, loaded)
}

func TestSaveOverwritesPriorState(t *testing.T) {
	store := newMemStore()
	adapter := NewAdapter(store, testLogger())

	require.NoError(t, adapter.Save("u", []Cookie{{Name: "sid", Value: "old"}}))
	require.NoError(t, adapter.Save("u", []Cookie{{Name: "sid", Value: "new"}}))

	loaded, found, err := adapter.Load("u")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].Value)
	assert.Equal(t, 2, store.saves)
}

func TestLoadAbsentIdentity(t *testing.T) {
	adapter := NewAdapter(newMemStore(), testLogger())

	cookies, found, err := adapter.Load("nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, cookies)
}

func TestKeysNormalizedOnSaveAndLoad(t *testing.T) {
	store := newMemStore()
	adapter := NewAdapter(store, testLogger())

	require.NoError(t, adapter.Save("User@Example.com", []Cookie{{Name: "sid", Value: "v"}}))

	_, found, err := adapter.Load("user@example.com")
	require.NoError(t, err)
	assert.True(t, found)
}
