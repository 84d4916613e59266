package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/bls-blueprint/internal/store"
)

func TestSetThenGetRoundTripsByteForByte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.json")
	s, err := store.Open(path)
	require.NoError(t, err)

	var meta [32]byte
	meta[0] = 0xAB

	want := store.BlsState{
		SecretKeyBytes:  []byte{1, 2, 3, 4},
		PublicKeyBytes:  []byte{5, 6, 7, 8, 9},
		PublicPolyBytes: []byte{10, 11, 12},
		CallID:          42,
		Threshold:       3,
	}
	require.NoError(t, s.Set(meta, want))

	got, ok := s.Get(meta)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.json")
	s, err := store.Open(path)
	require.NoError(t, err)

	var meta [32]byte
	_, ok := s.Get(meta)
	require.False(t, ok)
}

func TestReopenLoadsPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.json")
	s1, err := store.Open(path)
	require.NoError(t, err)

	var meta [32]byte
	meta[5] = 7
	state := store.BlsState{SecretKeyBytes: []byte{9, 9, 9}, CallID: 1, Threshold: 2}
	require.NoError(t, s1.Set(meta, state))

	s2, err := store.Open(path)
	require.NoError(t, err)
	got, ok := s2.Get(meta)
	require.True(t, ok)
	require.Equal(t, state, got)
}

func TestDropZeroesSecretBytes(t *testing.T) {
	state := store.BlsState{SecretKeyBytes: []byte{1, 2, 3}}
	state.Drop()
	require.Equal(t, []byte{0, 0, 0}, state.SecretKeyBytes)
}

func TestGetReturnsIndependentCopyNotAliasedWithStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.json")
	s, err := store.Open(path)
	require.NoError(t, err)

	var meta [32]byte
	meta[0] = 0xCD
	state := store.BlsState{SecretKeyBytes: []byte{1, 2, 3, 4}, CallID: 1, Threshold: 2}
	require.NoError(t, s.Set(meta, state))

	first, ok := s.Get(meta)
	require.True(t, ok)
	first.Drop()
	require.Equal(t, []byte{0, 0, 0, 0}, first.SecretKeyBytes)

	second, ok := s.Get(meta)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, second.SecretKeyBytes)
}

func TestOpenOnMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	s, err := store.Open(path)
	require.NoError(t, err)

	var meta [32]byte
	_, ok := s.Get(meta)
	require.False(t, ok)
}
