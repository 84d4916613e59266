// Package keygen drives one party's side of a keygen job: the Gennaro DKG
// rounds, a PK-agreement confirmation round, and persistence of the
// resulting BlsState, in the same "materialize the round's outbound bundle,
// then send, then await" shape as original_source/src/keygen_state_machine.rs's
// bls_keygen_protocol.
package keygen

import (
	"bytes"
	"context"
	"time"

	"github.com/tangle-network/bls-blueprint/common/bls"
	"github.com/tangle-network/bls-blueprint/common/metrics"
	"github.com/tangle-network/bls-blueprint/crypto"
	"github.com/tangle-network/bls-blueprint/internal/gennaro"
	"github.com/tangle-network/bls-blueprint/internal/router"
	"github.com/tangle-network/bls-blueprint/internal/store"
)

// Round indices, in wire order. A router for a keygen job must be
// constructed with Descriptors() so these line up with what Run expects.
const (
	RoundR1 = iota
	RoundR2
	RoundR3
	RoundR4
	RoundPKConfirm
)

// Descriptors returns the router.Descriptor sequence a router must be built
// with to drive a keygen job.
func Descriptors() []router.Descriptor {
	return []router.Descriptor{
		{Kind: router.Broadcast},    // R1: commitment hashes
		{Kind: router.PointToPoint}, // R2: Shamir shares
		{Kind: router.Broadcast},    // R3: Feldman commitment reveal
		{Kind: router.Broadcast},    // R4: transcript confirmation
		{Kind: router.Broadcast},    // PK confirmation
	}
}

// Sender delivers one round's outbound payloads onto the wire. Implemented
// by internal/transport against a live libp2p roster.
type Sender interface {
	SendBroadcast(ctx context.Context, round int, payload []byte) error
	SendTo(ctx context.Context, round int, dest uint16, payload []byte) error
}

// Result is what a successful keygen job returns to its job adapter.
type Result struct {
	PublicKeyBytes []byte
}

// Run executes one party's full keygen job: DKG rounds, PK agreement, and
// persistence under metaHash. t and n are the threshold and party-set size;
// self is this party's zero-based index.
func Run(ctx context.Context, sch *crypto.Scheme, rtr *router.Router, send Sender, st *store.Store,
	metaHash [32]byte, callID uint64, t, n int, self uint16) (Result, error) {

	metrics.JobsStarted.WithLabelValues("keygen").Inc()
	metrics.PartySetSize.WithLabelValues("keygen").Set(float64(n))

	start := time.Now()
	result, err := run(ctx, sch, rtr, send, st, metaHash, callID, t, n, self)
	metrics.JobDuration.WithLabelValues("keygen").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobsFailed.WithLabelValues("keygen", errKind(err)).Inc()
	}
	return result, err
}

func run(ctx context.Context, sch *crypto.Scheme, rtr *router.Router, send Sender, st *store.Store,
	metaHash [32]byte, callID uint64, t, n int, self uint16) (Result, error) {

	p := gennaro.New(sch.KeyGroup, sch.IdentityHash, t, n, self)

	if err := runRound(ctx, rtr, send, RoundR1, p.RunR1, p.ReceiveR1, broadcastAll); err != nil {
		return Result{}, err
	}
	if err := runP2PRound(ctx, rtr, send, RoundR2, p.RunR2, p.ReceiveR2); err != nil {
		return Result{}, err
	}
	if err := runRound(ctx, rtr, send, RoundR3, p.RunR3, p.ReceiveR3, broadcastAll); err != nil {
		return Result{}, err
	}
	if err := runRound(ctx, rtr, send, RoundR4, p.RunR4, p.ReceiveR4, broadcastAll); err != nil {
		return Result{}, err
	}
	if err := p.RunR5(); err != nil {
		return Result{}, err
	}

	pkBytes, err := p.PublicKey.MarshalBinary()
	if err != nil {
		return Result{}, bls.Wrap(bls.ErrSerialization, "failed to marshal derived public key: %v", err)
	}
	if err := send.SendBroadcast(ctx, RoundPKConfirm, pkBytes); err != nil {
		return Result{}, bls.Wrap(bls.ErrDelivery, "failed to broadcast PK confirmation: %v", err)
	}
	peerPKs, err := rtr.Complete(ctx, RoundPKConfirm)
	if err != nil {
		return Result{}, err
	}
	for from, got := range peerPKs {
		if !bytes.Equal(got, pkBytes) {
			return Result{}, bls.Wrap(bls.ErrMPC, "public key disagreement with party %d", from)
		}
	}

	skBytes, err := p.SecretShare.MarshalBinary()
	if err != nil {
		return Result{}, bls.Wrap(bls.ErrSerialization, "failed to marshal secret share: %v", err)
	}

	pubPolyBytes, err := gennaro.MarshalPubPoly(p.PublicPoly)
	if err != nil {
		return Result{}, bls.Wrap(bls.ErrSerialization, "failed to marshal public commitment polynomial: %v", err)
	}

	state := store.BlsState{
		SecretKeyBytes:  skBytes,
		PublicKeyBytes:  pkBytes,
		PublicPolyBytes: pubPolyBytes,
		CallID:          callID,
		Threshold:       uint16(t),
	}
	if err := st.Set(metaHash, state); err != nil {
		return Result{}, err
	}

	return Result{PublicKeyBytes: pkBytes}, nil
}

func broadcastAll(ctx context.Context, send Sender, round int, payload []byte) error {
	return send.SendBroadcast(ctx, round, payload)
}

func runRound(ctx context.Context, rtr *router.Router, send Sender, round int,
	runFn func() ([]byte, error), receiveFn func(uint16, []byte) error,
	sendFn func(context.Context, Sender, int, []byte) error) error {

	payload, err := runFn()
	if err != nil {
		return err
	}
	if err := sendFn(ctx, send, round, payload); err != nil {
		return bls.Wrap(bls.ErrDelivery, "failed to send round %d: %v", round, err)
	}

	got, err := rtr.Complete(ctx, round)
	if err != nil {
		return err
	}
	for from, payload := range got {
		if err := receiveFn(from, payload); err != nil {
			return err
		}
	}
	return nil
}

func runP2PRound(ctx context.Context, rtr *router.Router, send Sender, round int,
	runFn func() ([]gennaro.PeerMsg, error), receiveFn func(uint16, []byte) error) error {

	msgs, err := runFn()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := send.SendTo(ctx, round, m.Dest, m.Payload); err != nil {
			return bls.Wrap(bls.ErrDelivery, "failed to send round %d to party %d: %v", round, m.Dest, err)
		}
	}

	got, err := rtr.Complete(ctx, round)
	if err != nil {
		return err
	}
	for from, payload := range got {
		if err := receiveFn(from, payload); err != nil {
			return err
		}
	}
	return nil
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
