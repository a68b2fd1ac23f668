package app

import (
	"encoding/json"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/state"
)

func handleClaimRewards(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.ClaimRewardsTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad treasury/claim_rewards value")
	}
	if err := requireCallerAuth(st, env, msg.Caller); err != nil {
		return failResult(err)
	}
	amt := st.Treasury.ClaimRewards(msg.Caller)
	return okResult(abci.Event{
		Type: "RewardsClaimed",
		Attributes: []abci.EventAttribute{
			attr("caller", msg.Caller),
			attr("amount", amt.String()),
		},
	})
}

func handleFundTreasury(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.FundTreasuryTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad treasury/fund value")
	}
	if err := requireAdminAuth(st, env); err != nil {
		return failResult(err)
	}
	amount, ok := parseBigInt(msg.Amount)
	if !ok {
		return failLog("invalid amount")
	}
	st.Treasury.Fund(amount)
	return okResult(abci.Event{
		Type:       "TreasuryFunded",
		Attributes: []abci.EventAttribute{attr("amount", amount.String())},
	})
}

func handleSlash(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.SlashVerifierTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad treasury/slash value")
	}
	if err := requireAdminAuth(st, env); err != nil {
		return failResult(err)
	}
	sEv, err := st.Treasury.Slash(st.Registry, msg.Verifier)
	if err != nil {
		return failResult(err)
	}
	if sEv == nil {
		return okResult(abci.Event{
			Type:       "SlashSkipped",
			Attributes: []abci.EventAttribute{attr("verifier", msg.Verifier)},
		})
	}
	return okResult(evSlashed(sEv.Verifier, sEv.Amount.String()))
}
