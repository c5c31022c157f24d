// Package audit records every checker invocation without ever blocking the
// request path. Records flow through a bounded queue with an explicit
// backpressure policy; a worker drains the queue into a pluggable store.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	id "veristry/pkg/domain"
)

// Action distinguishes the two records of an invocation pair.
type Action string

const (
	ActionStart   Action = "start"
	ActionSuccess Action = "success"
	ActionError   Action = "error"
)

// Record is one append-only audit entry. Every checker invocation produces
// exactly one start record and one terminal (success or error) record, in
// that order.
type Record struct {
	ID         id.AuditRecordID
	RequestID  id.RequestID
	Dependency string
	Operation  string
	Action     Action
	Outcome    string
	// EvidenceHash fingerprints the outcome payload for change detection
	// across repeated verifications of the same entity.
	EvidenceHash string
	Duration     time.Duration
	Timestamp    time.Time
}

// HashEvidence produces the hex SHA-256 fingerprint stored on terminal
// records.
func HashEvidence(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
