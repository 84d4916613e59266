// Package session computes the deterministic session identifiers that let
// independent parties agree on which run of a protocol a message belongs to,
// without any coordination beyond the job parameters they were each given by
// the dispatcher.
package session

import (
	"crypto/sha256"
	"encoding/binary"
)

// metaSalt is mixed into every meta-hash so that this scheme's hashes never
// collide with some other protocol's hash of the same (n, blueprintID, callID).
const metaSalt = "bls-protocol"

// ID is a session identifier: the persisted key-share lookup key paired with
// the hash that scopes in-flight protocol messages for one run.
type ID struct {
	MetaHash    [32]byte
	ExecutionID [32]byte
}

// Compute derives (metaHash, executionID) from the job parameters. It is a
// pure function: independent of local state and of the order in which
// parties call it, so every honest party arrives at the same identifiers.
//
//	metaHash    = SHA-256(n || blueprintID || callID || "bls-protocol")
//	executionID = SHA-256(metaHash || salt)
func Compute(n uint16, blueprintID, callID uint64, salt string) ID {
	buf := make([]byte, 0, 2+8+8+len(metaSalt))
	buf = binary.BigEndian.AppendUint16(buf, n)
	buf = binary.BigEndian.AppendUint64(buf, blueprintID)
	buf = binary.BigEndian.AppendUint64(buf, callID)
	buf = append(buf, metaSalt...)

	metaHash := sha256.Sum256(buf)

	eidInput := make([]byte, 0, 32+len(salt))
	eidInput = append(eidInput, metaHash[:]...)
	eidInput = append(eidInput, salt...)
	executionID := sha256.Sum256(eidInput)

	return ID{MetaHash: metaHash, ExecutionID: executionID}
}

// KeygenSalt and SigningSalt are the two scopes a call_id can be hashed
// under. A keygen call_id and a later signing job referencing it as
// keygen_call_id hash to the same MetaHash but different ExecutionIDs.
const (
	KeygenSalt  = "bls-keygen"
	SigningSalt = "bls-signing"
)
