// Package crypto wires the BLS12-381 pairing suite and the kyber signature
// schemes this service runs on, the same way drand's own crypto/schemes.go
// wires a Scheme struct around a pairing.Suite — trimmed to the one scheme
// this service needs instead of drand's selectable family of beacon schemes.
package crypto

import (
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign"
	"github.com/drand/kyber/sign/tbls"
)

// SchemeID names the single pairing convention this service runs: public
// keys on G1 (48-byte compressed), signatures on G2 (96-byte compressed) —
// the same group assignment as drand's default "pedersen-bls-chained"
// scheme.
const SchemeID = "bls12381-g1-keys-g2-sigs"

// Scheme bundles the pairing suite and the threshold signature scheme
// derived from it.
type Scheme struct {
	Name string

	// KeyGroup is the group secret/public keys live in.
	KeyGroup kyber.Group

	// Threshold is used by the signing driver to produce, verify, and
	// recover threshold BLS signature shares.
	Threshold sign.ThresholdScheme

	// IdentityHash is the hash used by internal/gennaro to fold round
	// commitments into a fixed digest for the R1 commit-then-reveal step.
	IdentityHash func() hash.Hash
}

// New builds the single Scheme this service runs. It is not parameterized by
// name because, unlike drand, this service only ever speaks one scheme; a
// second scheme would need a new SchemeID and a matching entry in the wire
// protocol version, not a runtime switch.
func New() *Scheme {
	suite := bls12381.NewBLS12381SuiteWithDST(
		[]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"),
		[]byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"),
	)

	return &Scheme{
		Name:         SchemeID,
		KeyGroup:     suite.G1(),
		Threshold:    tbls.NewThresholdSchemeOnG2(suite),
		IdentityHash: func() hash.Hash { h, _ := blake2b.New256(nil); return h },
	}
}
