// Package store persists key-share state to a single JSON file, the way
// spec.md §6 requires ("a single file bls.json... preserve the exact byte
// layout"), using the same temp-file-then-rename durability discipline
// drand's chain/boltdb package relies on for its own single-file store, even
// though the encoding here is JSON rather than bbolt's page format — see
// DESIGN.md for why bbolt itself was not kept as a dependency.
package store

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/tangle-network/bls-blueprint/common/bls"
	"github.com/tangle-network/bls-blueprint/common/metrics"
)

// BlsState is the per-session record persisted after a successful keygen and
// read back during signing.
type BlsState struct {
	// SecretKeyBytes is this party's share of the joint secret key, 32-byte
	// big-endian.
	SecretKeyBytes []byte `json:"secret_key_bytes"`
	// PublicKeyBytes is the joint group public key, compressed encoding.
	PublicKeyBytes []byte `json:"public_key_bytes"`
	// PublicPolyBytes is the combined Feldman commitment polynomial (every
	// party's revealed commitments summed coefficient-wise), marshaled via
	// gennaro.MarshalPubPoly. Signing needs this to look up each party's
	// individual public share when verifying and recovering partial
	// signatures; PublicKeyBytes alone (the polynomial's constant term) isn't
	// enough for that.
	PublicPolyBytes []byte `json:"public_poly_bytes"`
	// CallID is the keygen job's call_id.
	CallID uint64 `json:"call_id"`
	// Threshold is the t used for this session.
	Threshold uint16 `json:"t"`
}

// Drop zeroes the secret material in place. Callers that are done with a
// BlsState value (e.g. after a signing job completes) should call this
// before letting it go out of scope.
func (s *BlsState) Drop() {
	for i := range s.SecretKeyBytes {
		s.SecretKeyBytes[i] = 0
	}
}

// clone returns a copy of s whose byte slices share no backing array with s,
// so the clone's Drop cannot scrub the original's bytes.
func (s BlsState) clone() BlsState {
	cp := s
	cp.SecretKeyBytes = append([]byte(nil), s.SecretKeyBytes...)
	cp.PublicKeyBytes = append([]byte(nil), s.PublicKeyBytes...)
	cp.PublicPolyBytes = append([]byte(nil), s.PublicPolyBytes...)
	return cp
}

// Store is an append-mostly hex(meta_hash) -> BlsState mapping backed by a
// single JSON file. The zero value is not usable; construct with Open.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]BlsState
}

// Open loads (or creates) the store file at path, named bls.json by
// spec.md §6's requirement.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]BlsState)}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, bls.Wrap(bls.ErrContext, "failed to read store file %s: %v", path, err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, bls.Wrap(bls.ErrSerialization, "failed to decode store file %s: %v", path, err)
	}
	metrics.StoreEntries.Set(float64(len(s.data)))
	return s, nil
}

// Get returns a deep copy of the state for metaHash, if present. The copy is
// necessary because callers (e.g. the signing driver) call Drop on the
// returned value to scrub its secret bytes once done; without a copy that
// would zero the store's own backing array, corrupting every later Get for
// the same meta_hash.
func (s *Store) Get(metaHash [32]byte) (BlsState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data[hex.EncodeToString(metaHash[:])]
	if !ok {
		return BlsState{}, false
	}
	return st.clone(), true
}

// Set writes state under metaHash and fsyncs the file before returning, so a
// successful Set is durable before the caller's job reports success.
func (s *Store) Set(metaHash [32]byte, state BlsState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(metaHash[:])
	s.data[key] = state

	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return bls.Wrap(bls.ErrSerialization, "failed to encode store: %v", err)
	}

	if err := writeFileAtomic(s.path, b); err != nil {
		return bls.Wrap(bls.ErrContext, "failed to persist store file %s: %v", s.path, err)
	}

	metrics.StoreEntries.Set(float64(len(s.data)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bls-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
