// Package bls defines the error-kind taxonomy shared by every driver in this
// service, following the same "small set of sentinel kinds, rich wrapped
// detail" shape drand uses for its own DKG errors.
package bls

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the reason a job failed. The dispatcher only ever sees one
// of these, wrapped as Error::Other(kind_string) — nothing is retried
// locally, and the dispatcher is expected to resubmit with a fresh call_id.
var (
	// ErrContext covers misconfiguration: missing blueprint/service id, a
	// missing operator mapping, or anything else about the job's context
	// that is wrong before any protocol round starts.
	ErrContext = errors.New("context error")

	// ErrSerialization covers bad wire bytes: a ProtocolMessage or inner
	// crypto payload that failed to decode.
	ErrSerialization = errors.New("serialization error")

	// ErrMPC covers cryptographic or round-protocol failure: bad
	// commitment, bad share, verification mismatch, a participant that
	// never reached Done, or a combined public key that doesn't match.
	ErrMPC = errors.New("mpc error")

	// ErrDelivery covers the transport failing to accept or deliver an
	// outbound message.
	ErrDelivery = errors.New("delivery error")

	// ErrKeyRetrieval covers signing against an unknown meta_hash, or a
	// signature that failed local verification.
	ErrKeyRetrieval = errors.New("key retrieval error")
)

// Wrap annotates one of the sentinel kinds above with job-specific detail,
// keeping errors.Is(err, ErrMPC) (etc.) working for callers that only care
// about the kind, while the job-specific detail stays in the error text for
// logging.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsKind reports whether err was built from kind via Wrap (or is kind
// itself), the same check errors.Is(err, kind) performs, kept as a named
// helper so callers classifying errors for metrics labels read clearly.
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}

// Other renders err the way the dispatcher contract expects: a single
// "Error::Other(kind_string)"-shaped string that loses no information a log
// line would want, but carries no structured type across the job boundary.
func Other(err error) string {
	return err.Error()
}
