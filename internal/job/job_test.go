package job_test

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/bls-blueprint/internal/job"
	"github.com/tangle-network/bls-blueprint/internal/roster"
)

type fakeNetwork struct {
	peers []roster.PeerIdentity
	self  roster.PeerIdentity
}

func (f fakeNetwork) Peers(ctx context.Context) ([]roster.PeerIdentity, error) { return f.peers, nil }
func (f fakeNetwork) LocalPeerID() roster.PeerIdentity                         { return f.self }

func mkNet(n int) fakeNetwork {
	peers := make([]roster.PeerIdentity, n)
	for i := range peers {
		peers[i] = roster.PeerIdentity{Bytes: []byte{byte(i)}, Label: string(rune('a' + i))}
	}
	return fakeNetwork{peers: peers, self: peers[0]}
}

func TestDecodeEncodeKeygenRoundTrip(t *testing.T) {
	req := job.KeygenRequest{T: 3}
	encoded, err := cbor.Marshal(req)
	require.NoError(t, err)

	decoded, err := job.DecodeKeygenRequest(encoded)
	require.NoError(t, err)
	require.Equal(t, req, decoded)

	result := job.KeygenResult{PublicKey: []byte{1, 2, 3}}
	encodedRes, err := job.EncodeKeygenResult(result)
	require.NoError(t, err)
	require.NotEmpty(t, encodedRes)
}

func TestDecodeEncodeSignRoundTrip(t *testing.T) {
	req := job.SignRequest{KeygenCallID: 7, Message: []byte("hello")}
	encoded, err := cbor.Marshal(req)
	require.NoError(t, err)

	decoded, err := job.DecodeSignRequest(encoded)
	require.NoError(t, err)
	require.Equal(t, req, decoded)

	result := job.SignResult{Signature: []byte{9, 9, 9}}
	encodedRes, err := job.EncodeSignResult(result)
	require.NoError(t, err)
	require.NotEmpty(t, encodedRes)
}

func TestDecodeKeygenRequestRejectsGarbage(t *testing.T) {
	_, err := job.DecodeKeygenRequest([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestResolveComputesConsistentMetaHashAcrossKeygenAndSigningSalts(t *testing.T) {
	net := mkNet(3)
	tracker := roster.NewTracker()

	kg, err := job.Resolve(context.Background(), net, tracker, 1, 42, "bls-keygen")
	require.NoError(t, err)

	sign, err := job.Resolve(context.Background(), net, tracker, 1, 42, "bls-signing")
	require.NoError(t, err)

	require.Equal(t, kg.MetaHash, sign.MetaHash)
	require.NotEqual(t, kg.ExecutionID, sign.ExecutionID)
}

func TestResolveRejectsPartySetSizeChangeForSameSession(t *testing.T) {
	tracker := roster.NewTracker()

	_, err := job.Resolve(context.Background(), mkNet(3), tracker, 1, 42, "bls-keygen")
	require.NoError(t, err)

	_, err = job.Resolve(context.Background(), mkNet(4), tracker, 1, 42, "bls-keygen")
	require.Error(t, err)
}

func TestResolveFailsOnTooFewParties(t *testing.T) {
	tracker := roster.NewTracker()
	_, err := job.Resolve(context.Background(), mkNet(1), tracker, 1, 42, "bls-keygen")
	require.Error(t, err)
}
