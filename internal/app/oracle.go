package app

import (
	"encoding/json"
	"math/big"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/errtypes"
	"github.com/wattverify/chain/internal/state"
	"github.com/wattverify/chain/internal/wire"
)

func oracleKind(label string) (state.OracleKind, error) {
	switch label {
	case "production":
		return state.KindProduction, nil
	case "consumption":
		return state.KindConsumption, nil
	case "retirement":
		return state.KindRetirement, nil
	default:
		return "", errUnknownOracle
	}
}

var errUnknownOracle = unknownOracleErr{}

type unknownOracleErr struct{}

func (unknownOracleErr) Error() string { return "unknown oracle: must be production, consumption, or retirement" }

func claimKeyFor(kind state.OracleKind, oracleAddr common.Address, subjectID string, hourID uint64) string {
	var tag wire.ClaimTypeTag
	switch kind {
	case state.KindProduction:
		tag = wire.ClaimTypeProduction
	case state.KindConsumption:
		tag = wire.ClaimTypeConsumption
	case state.KindRetirement:
		tag = wire.ClaimTypeRetirement
	}
	return wire.ClaimKey(tag, oracleAddr, common.HexToHash(subjectID), hourID).Hex()
}

func handleSubmitClaim(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.SubmitClaimTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad oracle/submit value")
	}
	kind, err := oracleKind(msg.Oracle)
	if err != nil {
		return failResult(err)
	}
	oracleAddr := wire.OracleAddress(msg.Oracle)
	ck := claimKeyFor(kind, oracleAddr, msg.SubjectID, msg.HourID)

	signer, err := wire.RecoverSigner(
		big.NewInt(st.ChainID),
		oracleAddr,
		common.HexToHash(msg.SubjectID),
		msg.HourID,
		msg.Wh,
		common.HexToHash(msg.EvidenceRoot),
		msg.Signature,
	)
	if err != nil {
		return failResult(errtypes.ErrInvalidSignature.Wrap(err.Error()))
	}

	o := st.Oracle(kind)
	result, err := o.Submit(st.Registry, ck, msg.SubjectID, msg.HourID, msg.Wh, msg.EvidenceRoot, signer.Hex(), now)
	if err != nil {
		// LateSubmission and DuplicateSubmission have a pre-abort side
		// effect: the fault has already been written into st.Registry by
		// Submit even though this tx fails, and that mutation must still
		// be committed.
		return failResult(err)
	}

	events := make([]abci.Event, 0, 4)
	if result.SnapshotCreated {
		events = append(events, evSnapshotCreated(ck, result.Snapshot.ID, len(result.Snapshot.Verifiers)))
	}
	events = append(events, evSubmitted(ck, signer.Hex(), msg.Wh, result.ValueHash))

	if result.Finalize != nil {
		effectEvents, err := runPostFinalizeEffects(st, kind, result.Bucket.SubjectID, result.Bucket.HourID, ck, result.Finalize)
		if err != nil {
			return failResult(err)
		}
		events = append(events, effectEvents...)
	}

	return okResult(events...)
}

func handleFinalizeClaim(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.FinalizeClaimTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad oracle/finalize value")
	}
	kind, err := oracleKind(msg.Oracle)
	if err != nil {
		return failResult(err)
	}
	oracleAddr := wire.OracleAddress(msg.Oracle)
	ck := claimKeyFor(kind, oracleAddr, msg.SubjectID, msg.HourID)

	o := st.Oracle(kind)
	fr, err := o.Finalize(st.Registry, ck, now)
	if err != nil {
		return failResult(err)
	}

	if fr.Disputed {
		return okResult(evClaimDisputed(ck, msg.SubjectID, msg.HourID, "quorum not reached"))
	}

	events, err := runPostFinalizeEffects(st, kind, msg.SubjectID, msg.HourID, ck, fr)
	if err != nil {
		return failResult(err)
	}
	return okResult(events...)
}

func handleForceFinalizeClaim(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.ForceFinalizeClaimTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad oracle/force_finalize value")
	}
	if err := requireAdminAuth(st, env); err != nil {
		return failResult(err)
	}
	kind, err := oracleKind(msg.Oracle)
	if err != nil {
		return failResult(err)
	}
	oracleAddr := wire.OracleAddress(msg.Oracle)
	ck := claimKeyFor(kind, oracleAddr, msg.SubjectID, msg.HourID)

	o := st.Oracle(kind)
	fr, err := o.ForceFinalize(st.Registry, ck, msg.Wh, msg.EvidenceRoot, now)
	if err != nil {
		return failResult(err)
	}

	events := []abci.Event{evForceFinalized(ck, st.Registry.Params.Admin, fr.VerifiedWh)}
	events = append(events, postFinalizeEffectEvent(st, kind, msg.SubjectID, msg.HourID, ck, fr))
	return okResult(events...)
}

// runPostFinalizeEffects applies the oracle-kind-specific post-finalization
// effect, then drives Treasury.distributeRewards/recordFaults unless the
// bucket was resolved via the forced admin path (which distributes nothing).
// Either treasury step failing (e.g. an underfunded reward pool) aborts the
// whole tx instead of silently finalizing without payout.
func runPostFinalizeEffects(st *state.State, kind state.OracleKind, subjectID string, hourID uint64, claimKey string, fr *state.FinalizeResult) ([]abci.Event, error) {
	events := []abci.Event{evFinalized(claimKey, subjectID, hourID, fr.VerifiedWh, fr.EvidenceRoot)}
	events = append(events, postFinalizeEffectEvent(st, kind, subjectID, hourID, claimKey, fr))

	if fr.Forced {
		return events, nil
	}

	dr, err := st.Treasury.DistributeRewards(st.Registry, fr.WinnerBitmap, fr.SnapshotID, fr.VerifiedWh)
	if err != nil {
		return nil, err
	}
	if dr.TotalDistributed.Sign() > 0 {
		events = append(events, evRewardsDistributed(fr.WinnerBitmap, fr.SnapshotID, dr.TotalDistributed.String()))
	}

	if fr.LoserBitmap != 0 {
		faults, slashes, err := st.Treasury.RecordFaults(st.Registry, fr.LoserBitmap, fr.SnapshotID, state.FaultWrongValue)
		if err != nil {
			return nil, err
		}
		for _, f := range faults {
			if f != nil {
				events = append(events, evFaultRecorded(f.Verifier, string(f.Kind), f.TotalFaults))
			}
		}
		for _, sEv := range slashes {
			if sEv != nil {
				events = append(events, evSlashed(sEv.Verifier, sEv.Amount.String()))
			}
		}
	}

	return events, nil
}

func postFinalizeEffectEvent(st *state.State, kind state.OracleKind, subjectID string, hourID uint64, claimKey string, fr *state.FinalizeResult) abci.Event {
	switch kind {
	case state.KindProduction:
		producer := st.Registry.Producers[subjectID]
		payout := subjectID
		if producer != nil {
			payout = producer.PayoutAddr
		}
		st.CreditToken.Mint(payout, hourID, fr.VerifiedWh)
		return evCreditMinted(hourID, payout, fr.VerifiedWh, claimKey)
	case state.KindRetirement:
		producer := st.Registry.Producers[subjectID]
		holder := subjectID
		if producer != nil {
			holder = producer.PayoutAddr
		}
		_ = st.CreditToken.Burn(holder, hourID, fr.VerifiedWh)
		return evCreditBurned(hourID, holder, fr.VerifiedWh, claimKey)
	default: // consumption
		return evConsumptionRecorded(subjectID, hourID, fr.VerifiedWh, claimKey)
	}
}
