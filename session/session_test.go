package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(3, 7, 42, KeygenSalt)
	b := Compute(3, 7, 42, KeygenSalt)
	require.Equal(t, a, b)
}

func TestComputeVariesBySalt(t *testing.T) {
	id := Compute(3, 7, 42, KeygenSalt)
	keygenForSigning := Compute(3, 7, 42, SigningSalt)

	require.Equal(t, id.MetaHash, keygenForSigning.MetaHash, "meta hash is salt-independent")
	require.NotEqual(t, id.ExecutionID, keygenForSigning.ExecutionID)
}

func TestComputeVariesByCallID(t *testing.T) {
	a := Compute(3, 7, 42, KeygenSalt)
	b := Compute(3, 7, 43, KeygenSalt)

	require.NotEqual(t, a.MetaHash, b.MetaHash)
	require.NotEqual(t, a.ExecutionID, b.ExecutionID)
}

func TestComputeVariesByN(t *testing.T) {
	a := Compute(3, 7, 42, KeygenSalt)
	b := Compute(4, 7, 42, KeygenSalt)
	require.NotEqual(t, a.MetaHash, b.MetaHash)
}

func TestComputeVariesByBlueprintID(t *testing.T) {
	a := Compute(3, 7, 42, KeygenSalt)
	b := Compute(3, 8, 42, KeygenSalt)
	require.NotEqual(t, a.MetaHash, b.MetaHash)
}
