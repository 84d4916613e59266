package bls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesKind(t *testing.T) {
	err := Wrap(ErrMPC, "bad commitment from party %d", 3)
	require.True(t, errors.Is(err, ErrMPC))
	require.False(t, errors.Is(err, ErrDelivery))
	require.Contains(t, err.Error(), "party 3")
}

func TestOtherIsStable(t *testing.T) {
	err := Wrap(ErrKeyRetrieval, "key entry not found")
	require.Equal(t, err.Error(), Other(err))
}
