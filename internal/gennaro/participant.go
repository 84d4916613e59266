// Package gennaro implements the 5-round Gennaro distributed key generation
// protocol: commit-then-reveal Feldman verifiable secret sharing followed by
// a local combine step. It is built directly on kyber's share.PriPoly /
// share.PubPoly primitives rather than kyber's higher-level share/dkg/pedersen
// package, because Gennaro's round shape (commit-hash in R1, reveal
// commitments separately in R3, complaints folded into R4) does not match
// pedersen's deal/response/justification shape closely enough to reuse
// verbatim.
package gennaro

import (
	"bytes"
	"hash"
	"sort"

	"github.com/drand/kyber"
	"github.com/drand/kyber/share"
	"github.com/drand/kyber/util/random"

	"github.com/tangle-network/bls-blueprint/common/bls"
)

// State is one of the five protocol rounds, or a terminal state.
type State int

const (
	unstarted State = iota
	R1
	R2
	R3
	R4
	R5
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case unstarted:
		return "unstarted"
	case R1:
		return "R1"
	case R2:
		return "R2"
	case R3:
		return "R3"
	case R4:
		return "R4"
	case R5:
		return "R5"
	case Done:
		return "Done"
	default:
		return "Failed"
	}
}

// PeerMsg is one point-to-point R2 output addressed to a single party.
type PeerMsg struct {
	Dest    uint16
	Payload []byte
}

// Participant runs one party's side of the protocol. It is not safe for
// concurrent use; the keygen driver owns one per job and drives it through
// the round sequence single-threaded.
type Participant struct {
	group  kyber.Group
	hashFn func() hash.Hash
	t, n   int
	self   uint16

	state State

	priPoly *share.PriPoly
	pubPoly *share.PubPoly

	ownCommitHash []byte

	peerCommitHash map[uint16][]byte
	peerShare      map[uint16]kyber.Scalar
	peerPubPoly    map[uint16]*share.PubPoly
	peerTranscript map[uint16][]byte

	ownTranscript []byte

	SecretShare kyber.Scalar
	PublicKey   kyber.Point
	PublicPoly  *share.PubPoly
}

// New constructs a participant for a (t, n) Gennaro session over group,
// using hashFn for the R1 commit-then-reveal digest.
func New(group kyber.Group, hashFn func() hash.Hash, t, n int, self uint16) *Participant {
	return &Participant{
		group:          group,
		hashFn:         hashFn,
		t:              t,
		n:              n,
		self:           self,
		peerCommitHash: make(map[uint16][]byte),
		peerShare:      make(map[uint16]kyber.Scalar),
		peerPubPoly:    make(map[uint16]*share.PubPoly),
		peerTranscript: make(map[uint16][]byte),
	}
}

func (p *Participant) commitsDigest(commits []kyber.Point) ([]byte, error) {
	h := p.hashFn()
	for _, c := range commits {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		h.Write(b)
	}
	return h.Sum(nil), nil
}

// RunR1 picks this party's random degree-(t-1) polynomial, whose constant
// term is its secret contribution to the joint key, and returns the
// broadcast commitment-hash payload.
func (p *Participant) RunR1() ([]byte, error) {
	if p.state != unstarted {
		return nil, bls.Wrap(bls.ErrMPC, "RunR1 called out of order in state %s", p.state)
	}

	secret := p.group.Scalar().Pick(random.New())
	p.priPoly = share.NewPriPoly(p.group, p.t, secret, random.New())
	p.pubPoly = p.priPoly.Commit(p.group.Point().Base())

	_, commits := p.pubPoly.Info()
	digest, err := p.commitsDigest(commits)
	if err != nil {
		return nil, bls.Wrap(bls.ErrMPC, "failed to hash own commitments: %v", err)
	}
	p.ownCommitHash = digest

	p.state = R1
	return digest, nil
}

// ReceiveR1 records the commitment hash broadcast by from.
func (p *Participant) ReceiveR1(from uint16, payload []byte) error {
	if p.state != R1 {
		return bls.Wrap(bls.ErrMPC, "ReceiveR1 called out of order in state %s", p.state)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	p.peerCommitHash[from] = cp
	return nil
}

// RunR2 evaluates this party's polynomial at every other party's index and
// returns the point-to-point shares to send.
func (p *Participant) RunR2() ([]PeerMsg, error) {
	if p.state != R1 {
		return nil, bls.Wrap(bls.ErrMPC, "RunR2 called out of order in state %s", p.state)
	}

	out := make([]PeerMsg, 0, p.n-1)
	for j := 0; j < p.n; j++ {
		if uint16(j) == p.self {
			continue
		}
		sh := p.priPoly.Eval(j)
		b, err := sh.V.MarshalBinary()
		if err != nil {
			return nil, bls.Wrap(bls.ErrMPC, "failed to marshal share for party %d: %v", j, err)
		}
		out = append(out, PeerMsg{Dest: uint16(j), Payload: b})
	}

	p.state = R2
	return out, nil
}

// ReceiveR2 records the share from's polynomial evaluates to at this
// party's index.
func (p *Participant) ReceiveR2(from uint16, payload []byte) error {
	if p.state != R2 {
		return bls.Wrap(bls.ErrMPC, "ReceiveR2 called out of order in state %s", p.state)
	}
	sc := p.group.Scalar()
	if err := sc.UnmarshalBinary(payload); err != nil {
		return bls.Wrap(bls.ErrSerialization, "bad share from party %d: %v", from, err)
	}
	p.peerShare[from] = sc
	return nil
}

// RunR3 reveals this party's Feldman commitments, whose hash it committed to
// in R1.
func (p *Participant) RunR3() ([]byte, error) {
	if p.state != R2 {
		return nil, bls.Wrap(bls.ErrMPC, "RunR3 called out of order in state %s", p.state)
	}

	payload, err := marshalPubPoly(p.pubPoly)
	if err != nil {
		return nil, bls.Wrap(bls.ErrMPC, "failed to marshal own commitments: %v", err)
	}

	p.state = R3
	return payload, nil
}

// ReceiveR3 verifies from's revealed commitments against the hash it
// broadcast in R1, and verifies the share it sent this party in R2 against
// those commitments (the Feldman check g^{s_ij} == C_i(j)).
func (p *Participant) ReceiveR3(from uint16, payload []byte) error {
	if p.state != R3 {
		return bls.Wrap(bls.ErrMPC, "ReceiveR3 called out of order in state %s", p.state)
	}

	pub, commits, err := unmarshalPubPoly(p.group, payload)
	if err != nil {
		return bls.Wrap(bls.ErrSerialization, "bad commitments from party %d: %v", from, err)
	}

	digest, err := p.commitsDigest(commits)
	if err != nil {
		return bls.Wrap(bls.ErrMPC, "failed to hash commitments from party %d: %v", from, err)
	}
	wantHash, ok := p.peerCommitHash[from]
	if !ok {
		return bls.Wrap(bls.ErrMPC, "no R1 commitment hash on file for party %d", from)
	}
	if !bytes.Equal(digest, wantHash) {
		return bls.Wrap(bls.ErrMPC, "commitment hash opening mismatch for party %d", from)
	}

	sc, ok := p.peerShare[from]
	if !ok {
		return bls.Wrap(bls.ErrMPC, "no R2 share on file for party %d", from)
	}
	expect := pub.Eval(int(p.self))
	got := p.group.Point().Mul(sc, nil)
	if !got.Equal(expect.V) {
		return bls.Wrap(bls.ErrMPC, "Feldman verification failed for share from party %d", from)
	}

	p.peerPubPoly[from] = pub
	return nil
}

// RunR4 broadcasts a transcript digest over every accepted commitment set
// (this party's own included), so all honest parties can detect disagreement
// before combining.
func (p *Participant) RunR4() ([]byte, error) {
	if p.state != R3 {
		return nil, bls.Wrap(bls.ErrMPC, "RunR4 called out of order in state %s", p.state)
	}

	digest, err := p.transcriptDigest()
	if err != nil {
		return nil, err
	}
	p.ownTranscript = digest

	p.state = R4
	return digest, nil
}

func (p *Participant) transcriptDigest() ([]byte, error) {
	h := p.hashFn()

	indices := make([]uint16, 0, p.n)
	for j := 0; j < p.n; j++ {
		indices = append(indices, uint16(j))
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })

	for _, j := range indices {
		var commit kyber.Point
		if j == p.self {
			commit = p.pubPoly.Commit()
		} else {
			pub, ok := p.peerPubPoly[j]
			if !ok {
				return nil, bls.Wrap(bls.ErrMPC, "missing accepted commitments for party %d at transcript time", j)
			}
			commit = pub.Commit()
		}
		b, err := commit.MarshalBinary()
		if err != nil {
			return nil, bls.Wrap(bls.ErrMPC, "failed to marshal transcript commitment for party %d: %v", j, err)
		}
		h.Write(b)
	}
	return h.Sum(nil), nil
}

// ReceiveR4 checks from's transcript digest against this party's own; any
// mismatch is a fatal, unattributed protocol failure per the Gennaro design
// used here.
func (p *Participant) ReceiveR4(from uint16, payload []byte) error {
	if p.state != R4 {
		return bls.Wrap(bls.ErrMPC, "ReceiveR4 called out of order in state %s", p.state)
	}
	if !bytes.Equal(payload, p.ownTranscript) {
		return bls.Wrap(bls.ErrMPC, "transcript mismatch with party %d", from)
	}
	p.peerTranscript[from] = payload
	return nil
}

// RunR5 combines every accepted contribution into this party's final secret
// share and the joint group public key. It is local only: no message is
// produced.
func (p *Participant) RunR5() error {
	if p.state != R4 {
		return bls.Wrap(bls.ErrMPC, "RunR5 called out of order in state %s", p.state)
	}

	sk := p.priPoly.Eval(int(p.self)).V.Clone()
	for j := 0; j < p.n; j++ {
		if uint16(j) == p.self {
			continue
		}
		sk = p.group.Scalar().Add(sk, p.peerShare[j])
	}

	// The combined public polynomial Q(x) = Sum_k f_k(x) is recovered
	// coefficient-wise from every party's revealed Feldman commitments.
	// Q.Commit() is the joint group public key; Q.Eval(i) is party i's
	// public share, the value tbls.Recover needs to verify each signature
	// share against during signing.
	_, ownCommits := p.pubPoly.Info()
	combinedCommits := make([]kyber.Point, len(ownCommits))
	for k, c := range ownCommits {
		combinedCommits[k] = c.Clone()
	}
	for j := 0; j < p.n; j++ {
		if uint16(j) == p.self {
			continue
		}
		_, peerCommits := p.peerPubPoly[j].Info()
		if len(peerCommits) != len(combinedCommits) {
			p.state = Failed
			return bls.Wrap(bls.ErrMPC, "commitment degree mismatch from party %d", j)
		}
		for k, c := range peerCommits {
			combinedCommits[k] = p.group.Point().Add(combinedCommits[k], c)
		}
	}
	combinedPoly := share.NewPubPoly(p.group, p.group.Point().Base(), combinedCommits)

	check := p.group.Point().Mul(sk, nil)
	if !check.Equal(combinedPoly.Eval(int(p.self)).V) {
		p.state = Failed
		return bls.Wrap(bls.ErrMPC, "combined public key does not match own secret share")
	}

	p.SecretShare = sk
	p.PublicKey = combinedPoly.Commit()
	p.PublicPoly = combinedPoly
	p.state = Done
	return nil
}

// State returns the participant's current round.
func (p *Participant) State() State { return p.state }

// MarshalPubPoly encodes pub's commitment points as a flat byte string,
// reusable by any caller (the keygen driver persists the combined public
// polynomial; the signing driver reloads it) that needs to put a PubPoly on
// the wire or on disk.
func MarshalPubPoly(pub *share.PubPoly) ([]byte, error) {
	return marshalPubPoly(pub)
}

// UnmarshalPubPoly is the inverse of MarshalPubPoly for a given group.
func UnmarshalPubPoly(group kyber.Group, payload []byte) (*share.PubPoly, error) {
	pub, _, err := unmarshalPubPoly(group, payload)
	return pub, err
}

func marshalPubPoly(pub *share.PubPoly) ([]byte, error) {
	_, commits := pub.Info()
	var buf bytes.Buffer
	for _, c := range commits {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func unmarshalPubPoly(group kyber.Group, payload []byte) (*share.PubPoly, []kyber.Point, error) {
	size := group.Point().MarshalSize()
	if len(payload)%size != 0 || len(payload) == 0 {
		return nil, nil, bls.Wrap(bls.ErrSerialization, "commitment payload has unexpected length %d", len(payload))
	}
	n := len(payload) / size
	commits := make([]kyber.Point, n)
	for i := 0; i < n; i++ {
		pt := group.Point()
		if err := pt.UnmarshalBinary(payload[i*size : (i+1)*size]); err != nil {
			return nil, nil, err
		}
		commits[i] = pt
	}
	pub := share.NewPubPoly(group, group.Point().Base(), commits)
	return pub, commits, nil
}
