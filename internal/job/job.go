// Package job translates between the chain-agnostic job dispatcher boundary
// (opaque request/result byte blobs keyed by call_id) and the keygen/signing
// drivers, resolving the party roster and computing session identifiers
// along the way, generalizing drand's internal/util/participant_utils.go
// fail-fast request-validation helpers from *drand.Participant to this
// repo's roster.PeerIdentity.
package job

import (
	"context"

	"github.com/fxamacker/cbor/v2"

	"github.com/tangle-network/bls-blueprint/common/bls"
	"github.com/tangle-network/bls-blueprint/internal/roster"
	"github.com/tangle-network/bls-blueprint/session"
)

// KeygenRequest is the decoded payload of a keygen job, chain-agnostic per
// spec.md §1 ("the real on-chain ABI codec is an external collaborator") —
// this port's own wire encoding for it is CBOR, see DecodeKeygenRequest.
type KeygenRequest struct {
	T uint16 `cbor:"t"`
}

// SignRequest is the decoded payload of a signing job. KeygenCallID names
// the earlier keygen job whose BlsState this signing job signs with.
type SignRequest struct {
	KeygenCallID uint64 `cbor:"keygen_call_id"`
	Message      []byte `cbor:"message"`
}

// KeygenResult is the encoded result of a successful keygen job.
type KeygenResult struct {
	PublicKey []byte `cbor:"public_key"`
}

// SignResult is the encoded result of a successful signing job.
type SignResult struct {
	Signature []byte `cbor:"signature"`
}

// DecodeKeygenRequest decodes a dispatcher-supplied keygen request payload.
func DecodeKeygenRequest(payload []byte) (KeygenRequest, error) {
	var req KeygenRequest
	if err := cbor.Unmarshal(payload, &req); err != nil {
		return KeygenRequest{}, bls.Wrap(bls.ErrSerialization, "failed to decode keygen request: %v", err)
	}
	return req, nil
}

// DecodeSignRequest decodes a dispatcher-supplied signing request payload.
func DecodeSignRequest(payload []byte) (SignRequest, error) {
	var req SignRequest
	if err := cbor.Unmarshal(payload, &req); err != nil {
		return SignRequest{}, bls.Wrap(bls.ErrSerialization, "failed to decode sign request: %v", err)
	}
	return req, nil
}

// EncodeKeygenResult encodes a successful keygen job's result for the
// dispatcher.
func EncodeKeygenResult(res KeygenResult) ([]byte, error) {
	b, err := cbor.Marshal(res)
	if err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to encode keygen result: %v", err)
	}
	return b, nil
}

// EncodeSignResult encodes a successful signing job's result for the
// dispatcher.
func EncodeSignResult(res SignResult) ([]byte, error) {
	b, err := cbor.Marshal(res)
	if err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to encode sign result: %v", err)
	}
	return b, nil
}

// Context bundles everything a job needs once its roster and session
// identifiers are resolved: the party-set parameters every driver call
// takes, plus the roster index each driver needs as PartyIndex.
type Context struct {
	Roster      roster.Roster
	MetaHash    [32]byte
	ExecutionID [32]byte
}

// Resolve validates the job's preconditions (spec.md §4.7's fail-fast
// checks) and computes the session identifiers a keygen or signing driver
// needs. blueprintID/callID/salt select which of the two session scopes
// (session.KeygenSalt / session.SigningSalt) this call belongs to; for a
// signing job callID must be the *keygen* call_id so MetaHash lines up with
// the stored key share, per spec.md §4.1's "a signing job reuses the keygen
// session's meta_hash" rule.
func Resolve(ctx context.Context, net roster.NetworkHandle, tracker *roster.Tracker,
	blueprintID, callID uint64, salt string) (Context, error) {

	r, err := roster.Resolve(ctx, net)
	if err != nil {
		return Context{}, err
	}

	ids := session.Compute(r.N(), blueprintID, callID, salt)

	if tracker != nil {
		// MetaHash mixes in n, so a changed n would never collide under it;
		// the tracker is keyed on the n-independent (blueprintID, callID) pair.
		trackKey := session.Compute(0, blueprintID, callID, "").MetaHash
		if err := tracker.CheckAndRecord(trackKey, r.N()); err != nil {
			return Context{}, err
		}
	}

	return Context{Roster: r, MetaHash: ids.MetaHash, ExecutionID: ids.ExecutionID}, nil
}
