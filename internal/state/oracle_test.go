package state

import (
	"testing"

	"github.com/wattverify/chain/internal/bitmap"
)

const testClaimKey = "0x" + "1234"

func setupOracleFixture(t *testing.T, nVerifiers int) (*RegistryState, *OracleState, string, []string) {
	t.Helper()
	reg := newTestRegistry()
	reg.Params.PermissionedMode = false

	verifiers := make([]string, nVerifiers)
	for i := 0; i < nVerifiers; i++ {
		addr := addrN(i + 1)
		if err := reg.StakeAsVerifier(addr, reg.Params.MinStake); err != nil {
			t.Fatalf("stake %d: %v", i, err)
		}
		if err := reg.ActivateVerifier(addr); err != nil {
			t.Fatalf("activate %d: %v", i, err)
		}
		verifiers[i] = addr
	}

	producer, err := reg.RegisterProducer(addrN(100), "0xfeed", "0xmeta", addrN(101))
	if err != nil {
		t.Fatalf("register producer: %v", err)
	}

	o := NewOracleState(KindProduction)
	return reg, o, producer.ID, verifiers
}

func TestSubmit_FirstSubmissionCreatesSnapshot(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 3)

	res, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[0], 1000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.SnapshotCreated {
		t.Fatalf("expected first submission to create a snapshot")
	}
	if res.Bucket.SubmissionCount != 1 {
		t.Fatalf("expected submission count 1, got %d", res.Bucket.SubmissionCount)
	}
}

func TestSubmit_DuplicateSubmissionFaultsButIsRejected(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 3)

	if _, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[0], 1000); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[0], 1001)
	if err == nil {
		t.Fatalf("expected duplicate submission to be rejected")
	}
	if reg.Verifier(verifiers[0]).Faults != 1 {
		t.Fatalf("expected the rejected duplicate to still record a fault, got %d", reg.Verifier(verifiers[0]).Faults)
	}
}

func TestSubmit_LateSubmissionFaultsButIsRejected(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 3)

	if _, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[0], 1000); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	late := 1000 + reg.Params.ClaimWindowSeconds + 1
	_, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[1], late)
	if err == nil {
		t.Fatalf("expected late submission to be rejected")
	}
	if reg.Verifier(verifiers[1]).Faults != 1 {
		t.Fatalf("expected the rejected late submission to still record a fault, got %d", reg.Verifier(verifiers[1]).Faults)
	}
}

func TestFinalize_HonestMajorityWins(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 5)

	for i, v := range verifiers {
		wh := uint64(5000)
		evidence := "0xaa"
		if i == 4 {
			wh = 9999
			evidence = "0xbb"
		}
		if _, err := o.Submit(reg, testClaimKey, subjectID, 100, wh, evidence, v, 1000); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	fr, err := o.Finalize(reg, testClaimKey, 1000+reg.Params.ClaimWindowSeconds+1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !fr.Finalized || fr.Disputed {
		t.Fatalf("expected finalized, non-disputed result: %#v", fr)
	}
	if fr.VerifiedWh != 5000 {
		t.Fatalf("expected the 4-of-5 majority value 5000, got %d", fr.VerifiedWh)
	}
	if bitmap.PopCount(fr.WinnerBitmap) != 4 {
		t.Fatalf("expected 4 winners, got %d", bitmap.PopCount(fr.WinnerBitmap))
	}
	if bitmap.PopCount(fr.LoserBitmap) != 1 {
		t.Fatalf("expected 1 loser, got %d", bitmap.PopCount(fr.LoserBitmap))
	}
}

func TestFinalize_BelowQuorumIsDisputed(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 5)

	// Three distinct values among 5 verifiers: quorum at default 6667bps of 5
	// verifiers is ceil(5*6667/10000) = 4, and no single value reaches 4.
	values := []uint64{1000, 2000, 3000, 1000, 2000}
	for i, v := range verifiers {
		if _, err := o.Submit(reg, testClaimKey, subjectID, 100, values[i], "0xaa", v, 1000); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	fr, err := o.Finalize(reg, testClaimKey, 1000+reg.Params.ClaimWindowSeconds+1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !fr.Disputed {
		t.Fatalf("expected disputed result when no value reaches quorum")
	}
}

func TestFinalize_BeforeDeadlineFails(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 3)
	if _, err := o.Submit(reg, testClaimKey, subjectID, 100, 5000, "0xaa", verifiers[0], 1000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := o.Finalize(reg, testClaimKey, 1000); err == nil {
		t.Fatalf("expected finalize before deadline to fail")
	}
}

func TestForceFinalize_RequiresDisputedAndSeenEvidence(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 5)
	values := []uint64{1000, 2000, 3000, 1000, 2000}
	for i, v := range verifiers {
		if _, err := o.Submit(reg, testClaimKey, subjectID, 100, values[i], "0xaa", v, 1000); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	deadlinePassed := 1000 + reg.Params.ClaimWindowSeconds + 1
	if _, err := o.ForceFinalize(reg, testClaimKey, 1000, "0xaa", deadlinePassed); err == nil {
		t.Fatalf("expected force-finalize on a not-yet-disputed bucket to fail")
	}
	fr, err := o.Finalize(reg, testClaimKey, deadlinePassed)
	if err != nil || !fr.Disputed {
		t.Fatalf("expected disputed precondition, got fr=%#v err=%v", fr, err)
	}

	if _, err := o.ForceFinalize(reg, testClaimKey, 9999, "0xaa", deadlinePassed); err == nil {
		t.Fatalf("expected force-finalize with wh above the max submitted wh to fail")
	}
	if _, err := o.ForceFinalize(reg, testClaimKey, 1000, "0xbb", deadlinePassed); err == nil {
		t.Fatalf("expected force-finalize onto an unsubmitted evidence root to fail")
	}

	ffr, err := o.ForceFinalize(reg, testClaimKey, 1000, "0xaa", deadlinePassed)
	if err != nil {
		t.Fatalf("force finalize: %v", err)
	}
	if !ffr.Forced || !ffr.Bucket.Finalized {
		t.Fatalf("expected forced, finalized result: %#v", ffr)
	}
}

func TestSubmit_BaselineModeShortCircuitsToFinalized(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 1)
	reg.Params.BaselineMode = true
	reg.Params.SingleVerifierOverride = verifiers[0]

	res, err := o.Submit(reg, testClaimKey, subjectID, 100, 4000, "0xaa", verifiers[0], 1000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Finalize == nil || !res.Finalize.Baseline || !res.Finalize.Finalized {
		t.Fatalf("expected baseline shortcut to finalize immediately: %#v", res.Finalize)
	}
	if res.Finalize.VerifiedWh != 4000 {
		t.Fatalf("expected verified wh 4000, got %d", res.Finalize.VerifiedWh)
	}
}

func TestSubmit_RejectsUnregisteredSubject(t *testing.T) {
	reg, o, _, verifiers := setupOracleFixture(t, 1)
	_, err := o.Submit(reg, testClaimKey, "not-a-producer", 100, 1000, "0xaa", verifiers[0], 1000)
	if err == nil {
		t.Fatalf("expected unregistered subject to be rejected")
	}
}

func TestSubmit_RejectsInactiveVerifier(t *testing.T) {
	reg, o, subjectID, _ := setupOracleFixture(t, 1)
	_, err := o.Submit(reg, testClaimKey, subjectID, 100, 1000, "0xaa", addrN(999), 1000)
	if err == nil {
		t.Fatalf("expected submission from an inactive (unknown) verifier to be rejected")
	}
}

func TestSubmit_AlreadyFinalizedBucketRejectsFurtherSubmissions(t *testing.T) {
	reg, o, subjectID, verifiers := setupOracleFixture(t, 1)
	reg.Params.BaselineMode = true
	reg.Params.SingleVerifierOverride = verifiers[0]

	if _, err := o.Submit(reg, testClaimKey, subjectID, 100, 4000, "0xaa", verifiers[0], 1000); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := o.Submit(reg, testClaimKey, subjectID, 100, 4000, "0xaa", verifiers[0], 1001)
	if err == nil {
		t.Fatalf("expected submission onto an already-finalized bucket to be rejected")
	}
}

func TestQuorumRequired_RoundsUp(t *testing.T) {
	p := DefaultParams()
	p.QuorumBps = 6667
	if got := p.QuorumRequired(3); got != 3 {
		t.Fatalf("quorum(3) = %d, want 3", got)
	}
	if got := p.QuorumRequired(5); got != 4 {
		t.Fatalf("quorum(5) = %d, want 4", got)
	}
	if got := p.QuorumRequired(1); got != 1 {
		t.Fatalf("quorum(1) = %d, want 1", got)
	}
}
