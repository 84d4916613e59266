package transport_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	p2pcrypto "github.com/libp2p/go-libp2p-core/crypto"

	"github.com/tangle-network/bls-blueprint/common/log"
	"github.com/tangle-network/bls-blueprint/internal/roster"
	"github.com/tangle-network/bls-blueprint/internal/transport"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	priv0, err := transport.LoadOrCreateIdentity(path)
	require.NoError(t, err)

	priv1, err := transport.LoadOrCreateIdentity(path)
	require.NoError(t, err)

	require.True(t, priv0.Equals(priv1))
}

func TestLoadOrCreateIdentityCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "identity.key")
	_, err := transport.LoadOrCreateIdentity(path)
	require.NoError(t, err)

	_, err = transport.LoadOrCreateIdentity(path)
	require.NoError(t, err)
}

func newTestHost(t *testing.T) *transport.Host {
	t.Helper()
	priv, _, err := p2pcrypto.GenerateEd25519Key(nil)
	require.NoError(t, err)

	h, err := transport.NewHost(priv, "/ip4/127.0.0.1/tcp/0", nil, log.DefaultLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRoundAdapterConstructionDerivesPeerIDsFromRoster(t *testing.T) {
	hostA := newTestHost(t)
	hostB := newTestHost(t)

	selfA := roster.PeerIdentity{Bytes: hostA.LocalPeerID().Bytes, Label: "a"}
	selfB := roster.PeerIdentity{Bytes: hostB.LocalPeerID().Bytes, Label: "b"}

	r := roster.Roster{Self: 0, Peers: []roster.PeerIdentity{selfA, selfB}}
	adapter, err := hostA.RoundAdapter("bls/gennaro/1.0.0", r)
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	require.NotNil(t, adapter.Inbound())
}

func TestSendToAnUnreachablePeerReturnsDeliveryError(t *testing.T) {
	hostA := newTestHost(t)
	hostB := newTestHost(t)

	selfA := roster.PeerIdentity{Bytes: hostA.LocalPeerID().Bytes, Label: "a"}
	selfB := roster.PeerIdentity{Bytes: hostB.LocalPeerID().Bytes, Label: "b"}

	r := roster.Roster{Self: 0, Peers: []roster.PeerIdentity{selfA, selfB}}
	adapter, err := hostA.RoundAdapter("bls/gennaro/1.0.0", r)
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// hostA and hostB were never connected, so dialing party 1 by a peer ID
	// with no known address must fail rather than hang.
	err = adapter.SendTo(ctx, 0, 1, []byte("payload"))
	require.Error(t, err)
}

func TestSendToUnknownPartyIndexFailsFast(t *testing.T) {
	hostA := newTestHost(t)
	hostB := newTestHost(t)

	selfA := roster.PeerIdentity{Bytes: hostA.LocalPeerID().Bytes, Label: "a"}
	selfB := roster.PeerIdentity{Bytes: hostB.LocalPeerID().Bytes, Label: "b"}

	r := roster.Roster{Self: 0, Peers: []roster.PeerIdentity{selfA, selfB}}
	adapter, err := hostA.RoundAdapter("bls/gennaro/1.0.0", r)
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	err = adapter.SendTo(context.Background(), 0, 7, []byte("payload"))
	require.Error(t, err)
}
