package state

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/wattverify/chain/internal/bitmap"
	"github.com/wattverify/chain/internal/errtypes"
	"github.com/wattverify/chain/internal/wire"
)

// OracleKind distinguishes the generic Oracle's two (production/consumption)
// wire instances and the retirement extension, which share every mechanic
// except the post-finalization effect.
type OracleKind string

const (
	KindProduction  OracleKind = "production"
	KindConsumption OracleKind = "consumption"
	KindRetirement  OracleKind = "retirement"
)

// FaultKind names the reason a fault was recorded against a verifier.
type FaultKind string

const (
	FaultLateSubmission      FaultKind = "LateSubmission"
	FaultDuplicateSubmission FaultKind = "DuplicateSubmission"
	FaultWrongValue          FaultKind = "WrongValue"
)

// ValueTally aggregates submissions that agree on a single (wh, evidenceRoot)
// pair within one claim bucket.
type ValueTally struct {
	Count          uint32 `json:"count"`
	VerifierBitmap uint16 `json:"verifierBitmap"`
	EvidenceRoot   string `json:"evidenceRoot"`
	Wh             uint64 `json:"wh"`
}

// ClaimBucket tracks one (subjectId, hourId) claim from first submission
// through finalization or dispute.
type ClaimBucket struct {
	ClaimKey  string `json:"claimKey"`
	SubjectID string `json:"subjectId"`
	HourID    uint64 `json:"hourId"`

	Deadline        int64  `json:"deadline"`
	SnapshotID      uint64 `json:"snapshotId"`
	SubmissionCount uint32 `json:"submissionCount"`

	Finalized bool `json:"finalized"`
	Disputed  bool `json:"disputed"`

	VerifiedWh       uint64 `json:"verifiedWh"`
	MaxSubmittedWh   uint64 `json:"maxSubmittedWh"`
	WinningValueHash string `json:"winningValueHash"`
	EvidenceRoot     string `json:"evidenceRoot"`

	AllSubmittersBitmap   uint16 `json:"allSubmittersBitmap"`
	WinningVerifierBitmap uint16 `json:"winningVerifierBitmap"`

	HasSubmitted           map[string]bool        `json:"hasSubmitted"`           // verifier addr -> true
	SubmittedEvidenceRoots map[string]bool        `json:"submittedEvidenceRoots"` // evidenceRoot -> true
	ValueOrder             []string               `json:"valueOrder"`             // valueHash, first-seen order
	Tallies                map[string]*ValueTally `json:"tallies"`                // valueHash -> tally
}

// OracleState is the generic Oracle: one instance each for production,
// consumption, and retirement, sharing the same submit/finalize mechanics.
type OracleState struct {
	Kind    OracleKind              `json:"kind"`
	Buckets map[string]*ClaimBucket `json:"buckets"`
}

func NewOracleState(kind OracleKind) *OracleState {
	return &OracleState{Kind: kind, Buckets: map[string]*ClaimBucket{}}
}

func normHash(h string) string {
	return common.HexToHash(h).Hex()
}

// FaultEvent reports one fault recorded by TreasuryState.RecordFault so the
// caller can build the FaultRecorded event.
type FaultEvent struct {
	Verifier    string
	Kind        FaultKind
	TotalFaults uint32
}

// SubmitResult reports what Submit did so the caller (internal/app) can
// build the exact events a submission should emit.
type SubmitResult struct {
	Bucket          *ClaimBucket
	SnapshotCreated bool
	Snapshot        *Snapshot
	ValueHash       string
	Finalize        *FinalizeResult // set only when the baseline shortcut fired
}

func (o *OracleState) subjectRegistered(reg *RegistryState, subjectID string) bool {
	switch o.Kind {
	case KindProduction, KindRetirement:
		p, ok := reg.Producers[subjectID]
		return ok && p.Active
	case KindConsumption:
		c, ok := reg.Consumers[subjectID]
		return ok && c.Active
	default:
		return false
	}
}

// Submit validates and records one verifier's claim submission against a
// claim bucket, creating the bucket and its snapshot on first submission and
// updating the value tally. It finalizes the bucket only through the
// baseline shortcut; quorum and dispute resolution happen in Finalize.
// Signature recovery has already happened by the time Submit is called;
// signer is the recovered, normalized verifier address.
func (o *OracleState) Submit(reg *RegistryState, claimKey, subjectID string, hourID, wh uint64, evidenceRoot, signer string, now int64) (*SubmitResult, error) {
	ck := normHash(claimKey)
	signer = normAddr(signer)
	er := normHash(evidenceRoot)

	bucket, exists := o.Buckets[ck]
	if exists && bucket.Finalized {
		return nil, errtypes.ErrClaimAlreadyFinalized
	}
	if !o.subjectRegistered(reg, subjectID) {
		if o.Kind == KindConsumption {
			return nil, errtypes.ErrConsumerNotRegistered
		}
		return nil, errtypes.ErrProducerNotRegistered
	}
	v := reg.Verifier(signer)
	if v == nil || !v.Active {
		return nil, errtypes.ErrVerifierNotActive
	}

	result := &SubmitResult{}

	if !exists {
		snap, err := reg.CreateSnapshot(ck, now)
		if err != nil {
			return nil, err
		}
		bucket = &ClaimBucket{
			ClaimKey:               ck,
			SubjectID:              subjectID,
			HourID:                 hourID,
			Deadline:               now + reg.Params.ClaimWindowSeconds,
			SnapshotID:             snap.ID,
			HasSubmitted:           map[string]bool{},
			SubmittedEvidenceRoots: map[string]bool{},
			ValueOrder:             []string{},
			Tallies:                map[string]*ValueTally{},
		}
		o.Buckets[ck] = bucket
		result.SnapshotCreated = true
		result.Snapshot = snap
	}

	if now > bucket.Deadline {
		totalFaults, ferr := reg.IncrementFaults(TreasuryAuthority, signer)
		if ferr != nil {
			return nil, ferr
		}
		result.Bucket = bucket
		_ = totalFaults
		return result, errtypes.ErrClaimDeadlinePassed
	}

	verifierIndex, err := reg.GetVerifierIndex(bucket.SnapshotID, signer)
	if err != nil {
		return nil, err
	}

	if bucket.HasSubmitted[signer] {
		if _, ferr := reg.IncrementFaults(TreasuryAuthority, signer); ferr != nil {
			return nil, ferr
		}
		result.Bucket = bucket
		return result, errtypes.ErrDuplicateSubmission
	}

	bucket.HasSubmitted[signer] = true
	bucket.AllSubmittersBitmap = bitmap.Set(bucket.AllSubmittersBitmap, verifierIndex)
	bucket.SubmissionCount++
	if wh > bucket.MaxSubmittedWh {
		bucket.MaxSubmittedWh = wh
	}
	bucket.SubmittedEvidenceRoots[er] = true

	valueHash := wire.ValueHash(wh, common.HexToHash(er)).Hex()
	tally, ok := bucket.Tallies[valueHash]
	if !ok {
		tally = &ValueTally{EvidenceRoot: er, Wh: wh}
		bucket.Tallies[valueHash] = tally
		bucket.ValueOrder = append(bucket.ValueOrder, valueHash)
	}
	tally.Count++
	tally.VerifierBitmap = bitmap.Set(tally.VerifierBitmap, verifierIndex)

	result.Bucket = bucket
	result.ValueHash = valueHash

	if reg.Params.BaselineMode && reg.Params.SingleVerifierOverride != "" &&
		normAddr(reg.Params.SingleVerifierOverride) == signer {
		fr := &FinalizeResult{
			Bucket:       bucket,
			SnapshotID:   bucket.SnapshotID,
			VerifiedWh:   wh,
			EvidenceRoot: er,
			WinnerBitmap: bucket.AllSubmittersBitmap,
			LoserBitmap:  0,
			Finalized:    true,
			Baseline:     true,
		}
		bucket.Finalized = true
		bucket.Disputed = false
		bucket.VerifiedWh = wh
		bucket.EvidenceRoot = er
		bucket.WinningValueHash = valueHash
		bucket.WinningVerifierBitmap = bucket.AllSubmittersBitmap
		result.Finalize = fr
	}

	return result, nil
}

// FinalizeResult reports the outcome of Finalize/ForceFinalize so the caller
// can run the post-finalization effect and drive Treasury.
type FinalizeResult struct {
	Bucket       *ClaimBucket
	SnapshotID   uint64
	VerifiedWh   uint64
	EvidenceRoot string
	WinnerBitmap uint16
	LoserBitmap  uint16
	Finalized    bool // false means the bucket transitioned to disputed instead
	Disputed     bool
	Forced       bool
	Baseline     bool
}

// Finalize computes quorum against the submitted values, resolving ties by
// first-seen order, and transitions the bucket to finalized or disputed.
func (o *OracleState) Finalize(reg *RegistryState, claimKey string, now int64) (*FinalizeResult, error) {
	ck := normHash(claimKey)
	bucket, exists := o.Buckets[ck]
	if !exists {
		return nil, errtypes.ErrClaimNotFound
	}
	if bucket.Finalized {
		return nil, errtypes.ErrClaimAlreadyFinalized
	}
	if now < bucket.Deadline {
		return nil, errtypes.ErrClaimDeadlineNotReached
	}

	snap, ok := reg.Snapshots[bucket.SnapshotID]
	if !ok {
		return nil, errtypes.ErrSnapshotNotFound
	}
	quorumRequired := reg.Params.QuorumRequired(len(snap.Verifiers))

	var winnerHash string
	var maxCount uint32
	for _, vh := range bucket.ValueOrder {
		t := bucket.Tallies[vh]
		if t.Count > maxCount {
			maxCount = t.Count
			winnerHash = vh
		}
	}

	if int(maxCount) < quorumRequired {
		bucket.Disputed = true
		return &FinalizeResult{Bucket: bucket, Disputed: true}, nil
	}

	winner := bucket.Tallies[winnerHash]
	bucket.Finalized = true
	bucket.Disputed = false
	bucket.VerifiedWh = winner.Wh
	bucket.EvidenceRoot = winner.EvidenceRoot
	bucket.WinningValueHash = winnerHash
	bucket.WinningVerifierBitmap = winner.VerifierBitmap

	loserBitmap := bitmap.AndNot(bucket.AllSubmittersBitmap, bucket.WinningVerifierBitmap)

	return &FinalizeResult{
		Bucket:       bucket,
		SnapshotID:   bucket.SnapshotID,
		VerifiedWh:   bucket.VerifiedWh,
		EvidenceRoot: bucket.EvidenceRoot,
		WinnerBitmap: bucket.WinningVerifierBitmap,
		LoserBitmap:  loserBitmap,
		Finalized:    true,
	}, nil
}

// ForceFinalize is the admin override: only callable while disputed and
// after the deadline, with wh no greater than the largest submitted wh and
// an evidenceRoot that some submission carried. The two are checked
// independently; the (wh, evidenceRoot) pair itself need not have been seen.
func (o *OracleState) ForceFinalize(reg *RegistryState, claimKey string, wh uint64, evidenceRoot string, now int64) (*FinalizeResult, error) {
	ck := normHash(claimKey)
	bucket, exists := o.Buckets[ck]
	if !exists {
		return nil, errtypes.ErrClaimNotFound
	}
	if !bucket.Disputed {
		return nil, errtypes.ErrClaimNotDisputed
	}
	if now < bucket.Deadline {
		return nil, errtypes.ErrClaimDeadlineNotReached
	}
	if wh > bucket.MaxSubmittedWh {
		return nil, errtypes.ErrEnergyExceedsMaxSubmitted
	}
	er := normHash(evidenceRoot)
	if !bucket.SubmittedEvidenceRoots[er] {
		return nil, errtypes.ErrEvidenceRootNotSubmitted
	}

	bucket.Finalized = true
	bucket.Disputed = false
	bucket.VerifiedWh = wh
	bucket.EvidenceRoot = er
	bucket.WinningVerifierBitmap = 0 // zero bitmap signals the forced path

	return &FinalizeResult{
		Bucket:       bucket,
		SnapshotID:   bucket.SnapshotID,
		VerifiedWh:   wh,
		EvidenceRoot: er,
		WinnerBitmap: 0,
		LoserBitmap:  0,
		Finalized:    true,
		Forced:       true,
	}, nil
}
