package database

import "errors"

// Set of rejection errors the admission pipeline can report. Every failure
// is a local rejection returned to the caller. The chain and pool are never
// mutated on rejection.
var (
	ErrInvalidInput         = errors.New("transaction requires at least one output")
	ErrInvalidSignature     = errors.New("invalid transaction signature")
	ErrDuplicateTransaction = errors.New("transaction sender and nonce already accepted")
	ErrAnomalyDetected      = errors.New("configuration delta exceeds anomaly baseline")
	ErrLinkage              = errors.New("previous block hash does not match parent")
	ErrMerkleMismatch       = errors.New("merkle root does not match transactions")
	ErrProofInvalid         = errors.New("consensus proof does not satisfy the target")
	ErrStaleOrphan          = errors.New("orphan block exceeded the retry horizon")
	ErrEmptyBlock           = errors.New("empty blocks are not permitted")
)
