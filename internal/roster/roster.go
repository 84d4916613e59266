// Package roster resolves the authenticated peer set advertised by the
// network handle into the PartyRoster every honest party must agree on,
// generalizing drand's internal/util.SortedByPublicKey from a
// *drand.Participant protobuf type to this repo's PeerIdentity.
package roster

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/tangle-network/bls-blueprint/common/bls"
)

// PeerIdentity is the stable, comparable public identity of a party, as
// advertised by the authenticated transport. Two PeerIdentity values are
// equal iff they name the same party.
type PeerIdentity struct {
	// Bytes is the raw public-key (or equivalent verification key) bytes
	// the transport authenticates connections against.
	Bytes []byte
	// Label is a human-readable rendering (e.g. a libp2p peer ID string)
	// used only for logging.
	Label string
}

func (p PeerIdentity) String() string { return p.Label }

// Equal reports whether p and o name the same party.
func (p PeerIdentity) Equal(o PeerIdentity) bool {
	return bytes.Equal(p.Bytes, o.Bytes)
}

// NetworkHandle is the minimum surface this package needs from the transport
// to resolve a roster: the currently advertised peer set and the local
// party's own identity within it.
type NetworkHandle interface {
	Peers(ctx context.Context) ([]PeerIdentity, error)
	LocalPeerID() PeerIdentity
}

// Roster is the PartyIndex -> PeerIdentity mapping agreed at the start of a
// job. Self is this node's own index within it.
type Roster struct {
	Self  uint16
	Peers []PeerIdentity // sorted; index i is PartyIndex i
}

// N returns the party-set size.
func (r Roster) N() uint16 { return uint16(len(r.Peers)) }

// PeerAt returns the identity at index i.
func (r Roster) PeerAt(i uint16) PeerIdentity { return r.Peers[i] }

// Resolve sorts the currently advertised peers (including the local peer)
// lexicographically by identity bytes — the same "every honest party
// computes the same roster" rule drand relies on by sorting participants by
// public key before building a DKG group. Fails fast per spec: local peer
// absent from the advertised set, or n < 2.
func Resolve(ctx context.Context, net NetworkHandle) (Roster, error) {
	peers, err := net.Peers(ctx)
	if err != nil {
		return Roster{}, bls.Wrap(bls.ErrContext, "failed to list peers: %v", err)
	}

	self := net.LocalPeerID()
	found := false
	all := make([]PeerIdentity, 0, len(peers)+1)
	for _, p := range peers {
		all = append(all, p)
		if p.Equal(self) {
			found = true
		}
	}
	if !found {
		all = append(all, self)
	}

	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(all[i].Bytes, all[j].Bytes) < 0
	})

	if len(all) < 2 {
		return Roster{}, bls.Wrap(bls.ErrContext, "party set too small: n=%d, need at least 2", len(all))
	}

	var selfIndex = -1
	for i, p := range all {
		if p.Equal(self) {
			selfIndex = i
			break
		}
	}
	if selfIndex < 0 {
		return Roster{}, bls.Wrap(bls.ErrContext, "local peer missing from sorted roster")
	}

	return Roster{Self: uint16(selfIndex), Peers: all}, nil
}

// Tracker enforces that n does not change between a keygen session and a
// later signing session for the same session key (internal/job derives it
// from blueprint id and call id, leaving n out of it), since the core keeps no
// persistent audit log (Non-goals) this state is process-local and reset on
// restart.
type Tracker struct {
	mu sync.Mutex
	n  map[[32]byte]uint16
}

// NewTracker constructs an empty n-per-session tracker.
func NewTracker() *Tracker {
	return &Tracker{n: make(map[[32]byte]uint16)}
}

// CheckAndRecord fails if metaHash was previously seen with a different n.
func (t *Tracker) CheckAndRecord(metaHash [32]byte, n uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.n[metaHash]; ok && prev != n {
		return bls.Wrap(bls.ErrContext, "party set size changed for session %x: was %d, now %d", metaHash, prev, n)
	}
	t.n[metaHash] = n
	return nil
}
