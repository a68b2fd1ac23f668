package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
)

// Event builders use an explicit, ordered attribute list rather than a
// sorted-map helper: attribute order is part of the event contract, not
// just event order.

func attr(key, value string) abci.EventAttribute {
	return abci.EventAttribute{Key: key, Value: value, Index: true}
}

func evSubmitted(claimKey, verifier string, wh uint64, valueHash string) abci.Event {
	return abci.Event{
		Type: "Submitted",
		Attributes: []abci.EventAttribute{
			attr("claimKey", claimKey),
			attr("verifier", verifier),
			attr("wh", fmt.Sprintf("%d", wh)),
			attr("valueHash", valueHash),
		},
	}
}

func evFinalized(claimKey, subjectID string, hourID, wh uint64, evidenceRoot string) abci.Event {
	return abci.Event{
		Type: "Finalized",
		Attributes: []abci.EventAttribute{
			attr("claimKey", claimKey),
			attr("subjectId", subjectID),
			attr("hourId", fmt.Sprintf("%d", hourID)),
			attr("wh", fmt.Sprintf("%d", wh)),
			attr("evidenceRoot", evidenceRoot),
		},
	}
}

func evClaimDisputed(claimKey, subjectID string, hourID uint64, reason string) abci.Event {
	return abci.Event{
		Type: "ClaimDisputed",
		Attributes: []abci.EventAttribute{
			attr("claimKey", claimKey),
			attr("subjectId", subjectID),
			attr("hourId", fmt.Sprintf("%d", hourID)),
			attr("reason", reason),
		},
	}
}

func evForceFinalized(claimKey, admin string, wh uint64) abci.Event {
	return abci.Event{
		Type: "ForceFinalized",
		Attributes: []abci.EventAttribute{
			attr("claimKey", claimKey),
			attr("admin", admin),
			attr("wh", fmt.Sprintf("%d", wh)),
		},
	}
}

func evSnapshotCreated(claimKey string, snapshotID uint64, count int) abci.Event {
	return abci.Event{
		Type: "SnapshotCreated",
		Attributes: []abci.EventAttribute{
			attr("claimKey", claimKey),
			attr("snapshotId", fmt.Sprintf("%d", snapshotID)),
			attr("count", fmt.Sprintf("%d", count)),
		},
	}
}

func evRewardsDistributed(winnerBitmap uint16, snapshotID uint64, totalDistributed string) abci.Event {
	return abci.Event{
		Type: "RewardsDistributed",
		Attributes: []abci.EventAttribute{
			attr("winnerBitmap", fmt.Sprintf("%d", winnerBitmap)),
			attr("snapshotId", fmt.Sprintf("%d", snapshotID)),
			attr("totalDistributed", totalDistributed),
		},
	}
}

func evFaultRecorded(verifier string, kind string, totalFaults uint32) abci.Event {
	return abci.Event{
		Type: "FaultRecorded",
		Attributes: []abci.EventAttribute{
			attr("verifier", verifier),
			attr("type", kind),
			attr("totalFaults", fmt.Sprintf("%d", totalFaults)),
		},
	}
}

func evSlashed(verifier string, amount string) abci.Event {
	return abci.Event{
		Type: "Slashed",
		Attributes: []abci.EventAttribute{
			attr("verifier", verifier),
			attr("amount", amount),
		},
	}
}

func evCreditMinted(hourID uint64, payoutAddr string, wh uint64, claimKey string) abci.Event {
	return abci.Event{
		Type: "HCN Minted",
		Attributes: []abci.EventAttribute{
			attr("hourId", fmt.Sprintf("%d", hourID)),
			attr("payoutAddr", payoutAddr),
			attr("wh", fmt.Sprintf("%d", wh)),
			attr("claimKey", claimKey),
		},
	}
}

func evCreditBurned(hourID uint64, fromAddr string, wh uint64, claimKey string) abci.Event {
	return abci.Event{
		Type: "HCN Burned",
		Attributes: []abci.EventAttribute{
			attr("hourId", fmt.Sprintf("%d", hourID)),
			attr("from", fromAddr),
			attr("wh", fmt.Sprintf("%d", wh)),
			attr("claimKey", claimKey),
		},
	}
}

func evConsumptionRecorded(subjectID string, hourID, wh uint64, claimKey string) abci.Event {
	return abci.Event{
		Type: "ConsumptionRecorded",
		Attributes: []abci.EventAttribute{
			attr("subjectId", subjectID),
			attr("hourId", fmt.Sprintf("%d", hourID)),
			attr("wh", fmt.Sprintf("%d", wh)),
			attr("claimKey", claimKey),
		},
	}
}

// okResult wraps the given events into a successful ExecTxResult.
func okResult(events ...abci.Event) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: 0, Events: events}
}

func failResult(err error) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: 1, Log: err.Error()}
}

func failLog(log string) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: 1, Log: log}
}
