// Package errtypes registers the named, coded errors for the chain using
// cosmossdk.io/errors and a per-domain codespace.
package errtypes

import "cosmossdk.io/errors"

const codespace = "creditchain"

var (
	// Authorization
	ErrOnlyAuthorizedOracle = errors.Register(codespace, 1, "only authorized oracle")
	ErrOnlyTreasury         = errors.Register(codespace, 2, "only treasury")
	ErrNotOwner             = errors.Register(codespace, 3, "not owner")

	// Registration
	ErrSystemAlreadyRegistered = errors.Register(codespace, 10, "identity already registered")
	ErrProducerNotFound        = errors.Register(codespace, 11, "producer not found")
	ErrConsumerNotFound        = errors.Register(codespace, 12, "consumer not found")
	ErrZeroAddress             = errors.Register(codespace, 13, "zero address")

	// Stake / activation
	ErrZeroAmount              = errors.Register(codespace, 20, "amount must be > 0")
	ErrInsufficientStakeBalance = errors.Register(codespace, 21, "insufficient stake-token balance")
	ErrInsufficientStake       = errors.Register(codespace, 22, "stake below minimum")
	ErrVerifierAlreadyActive   = errors.Register(codespace, 23, "verifier already active")
	ErrVerifierNotActive       = errors.Register(codespace, 24, "verifier not active")
	ErrVerifierNotAllowlisted  = errors.Register(codespace, 25, "verifier not allowlisted")
	ErrNoActiveVerifiers       = errors.Register(codespace, 26, "no active verifiers")
	ErrActiveSetFull           = errors.Register(codespace, 27, "active verifier set is at capacity")

	// Snapshot
	ErrSnapshotAlreadyExists = errors.Register(codespace, 30, "snapshot already exists for claim key")
	ErrSnapshotNotFound      = errors.Register(codespace, 31, "snapshot not found")
	ErrVerifierNotInSnapshot = errors.Register(codespace, 32, "verifier not in snapshot")

	// Submission
	ErrClaimAlreadyFinalized  = errors.Register(codespace, 40, "claim already finalized")
	ErrClaimDeadlinePassed    = errors.Register(codespace, 41, "claim deadline passed")
	ErrDuplicateSubmission    = errors.Register(codespace, 42, "duplicate submission")
	ErrInvalidSignature       = errors.Register(codespace, 43, "invalid signature")
	ErrProducerNotRegistered  = errors.Register(codespace, 44, "producer not registered")
	ErrConsumerNotRegistered  = errors.Register(codespace, 45, "consumer not registered")
	ErrClaimNotFound          = errors.Register(codespace, 46, "claim not found")

	// Finalization
	ErrClaimDeadlineNotReached  = errors.Register(codespace, 50, "claim deadline not reached")
	ErrClaimNotDisputed         = errors.Register(codespace, 51, "claim not disputed")
	ErrEnergyExceedsMaxSubmitted = errors.Register(codespace, 52, "energy exceeds max submitted")
	ErrEvidenceRootNotSubmitted = errors.Register(codespace, 53, "evidence root not submitted")

	// Treasury
	ErrInsufficientRewardPool   = errors.Register(codespace, 60, "insufficient reward pool")
	ErrFaultThresholdNotReached = errors.Register(codespace, 61, "fault threshold not reached")
	ErrAlreadySlashed           = errors.Register(codespace, 62, "verifier already slashed")
	ErrInsufficientPoolBalance  = errors.Register(codespace, 63, "insufficient pool balance")

	// Config
	ErrInvalidQuorumBps = errors.Register(codespace, 70, "quorum bps must be in (0, 10000]")
	ErrInvalidConfig    = errors.Register(codespace, 71, "invalid configuration")

	// Auth
	ErrNonceReplayed  = errors.Register(codespace, 80, "nonce already used or not increasing")
	ErrInvalidNonce   = errors.Register(codespace, 81, "nonce must be a positive decimal integer")
)
