// Package signing drives one party's side of a threshold BLS signing job:
// load the persisted key share, produce a partial signature, collect and
// aggregate peer shares, and verify the recovered signature, following
// original_source/src/signing_state_machine.rs's bls_signing_protocol.
package signing

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/drand/kyber/share"

	"github.com/tangle-network/bls-blueprint/common/bls"
	"github.com/tangle-network/bls-blueprint/common/metrics"
	"github.com/tangle-network/bls-blueprint/crypto"
	"github.com/tangle-network/bls-blueprint/internal/gennaro"
	"github.com/tangle-network/bls-blueprint/internal/router"
	"github.com/tangle-network/bls-blueprint/internal/store"
)

// RoundShare is the single broadcast round signing needs.
const RoundShare = 0

// Descriptors returns the router.Descriptor sequence a router must be built
// with to drive a signing job. minShares, when less than n-1, lets the round
// complete as soon as that many peer shares have arrived instead of waiting
// for all n-1, per spec.md §4.5's early-completion note; pass 0 to wait for
// everyone.
func Descriptors(minShares int) []router.Descriptor {
	return []router.Descriptor{
		{Kind: router.Broadcast, MinCount: minShares},
	}
}

// Sender delivers this party's signature share onto the wire.
type Sender interface {
	SendBroadcast(ctx context.Context, round int, payload []byte) error
}

// Run executes one party's full signing job. t is the threshold and n the
// party-set size used at keygen time for metaHash; self is this party's
// zero-based index.
func Run(ctx context.Context, sch *crypto.Scheme, rtr *router.Router, send Sender, st *store.Store,
	metaHash [32]byte, message []byte, t, n int, self uint16) ([]byte, error) {

	metrics.JobsStarted.WithLabelValues("sign").Inc()
	metrics.PartySetSize.WithLabelValues("sign").Set(float64(n))

	start := time.Now()
	sig, err := run(ctx, sch, rtr, send, st, metaHash, message, t, n, self)
	metrics.JobDuration.WithLabelValues("sign").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobsFailed.WithLabelValues("sign", errKind(err)).Inc()
	}
	return sig, err
}

func run(ctx context.Context, sch *crypto.Scheme, rtr *router.Router, send Sender, st *store.Store,
	metaHash [32]byte, message []byte, t, n int, self uint16) ([]byte, error) {

	state, ok := st.Get(metaHash)
	if !ok {
		return nil, bls.Wrap(bls.ErrKeyRetrieval, "no key share for session %x", metaHash)
	}
	defer state.Drop()

	sk := sch.KeyGroup.Scalar()
	if err := sk.UnmarshalBinary(state.SecretKeyBytes); err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to unmarshal secret share: %v", err)
	}
	pub := sch.KeyGroup.Point()
	if err := pub.UnmarshalBinary(state.PublicKeyBytes); err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to unmarshal group public key: %v", err)
	}
	pubPoly, err := gennaro.UnmarshalPubPoly(sch.KeyGroup, state.PublicPolyBytes)
	if err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to unmarshal public commitment polynomial: %v", err)
	}

	digest := sha256.Sum256(message)

	priShare := &share.PriShare{I: int(self), V: sk}
	myShare, err := sch.Threshold.Sign(priShare, digest[:])
	if err != nil {
		return nil, bls.Wrap(bls.ErrMPC, "failed to produce signature share: %v", err)
	}

	if err := send.SendBroadcast(ctx, RoundShare, myShare); err != nil {
		return nil, bls.Wrap(bls.ErrDelivery, "failed to broadcast signature share: %v", err)
	}

	got, err := rtr.Complete(ctx, RoundShare)
	if err != nil {
		return nil, err
	}

	shares := make([][]byte, 0, len(got)+1)
	shares = append(shares, myShare)
	for _, payload := range got {
		shares = append(shares, payload)
	}

	sig, err := sch.Threshold.Recover(pubPoly, digest[:], shares, t, n)
	if err != nil {
		return nil, bls.Wrap(bls.ErrMPC, "failed to recover aggregate signature: %v", err)
	}

	if err := sch.Threshold.VerifyRecovered(pub, digest[:], sig); err != nil {
		return nil, bls.Wrap(bls.ErrMPC, "failed to verify signature locally: %v", err)
	}

	return sig, nil
}

func errKind(err error) string {
	switch {
	case bls.IsKind(err, bls.ErrMPC):
		return "mpc"
	case bls.IsKind(err, bls.ErrDelivery):
		return "delivery"
	case bls.IsKind(err, bls.ErrSerialization):
		return "serialization"
	case bls.IsKind(err, bls.ErrContext):
		return "context"
	case bls.IsKind(err, bls.ErrKeyRetrieval):
		return "key_retrieval"
	default:
		return "unknown"
	}
}
