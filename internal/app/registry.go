package app

import (
	"encoding/json"
	"math/big"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/state"
)

func parseBigInt(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

func handleRegisterProducer(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.RegisterProducerTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/register_producer value")
	}
	if err := requireCallerAuth(st, env, msg.Owner); err != nil {
		return failResult(err)
	}
	p, err := st.Registry.RegisterProducer(msg.Owner, msg.IdentityHash, msg.MetaHash, msg.PayoutAddr)
	if err != nil {
		return failResult(err)
	}
	return okResult(abci.Event{
		Type: "ProducerRegistered",
		Attributes: []abci.EventAttribute{
			attr("producerId", p.ID),
			attr("owner", p.Owner),
		},
	})
}

func handleRegisterConsumer(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.RegisterConsumerTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/register_consumer value")
	}
	if err := requireCallerAuth(st, env, msg.Owner); err != nil {
		return failResult(err)
	}
	c, err := st.Registry.RegisterConsumer(msg.Owner, msg.IdentityHash, msg.MetaHash, msg.PayoutAddr)
	if err != nil {
		return failResult(err)
	}
	return okResult(abci.Event{
		Type: "ConsumerRegistered",
		Attributes: []abci.EventAttribute{
			attr("consumerId", c.ID),
			attr("owner", c.Owner),
		},
	})
}

func handleStake(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.StakeAsVerifierTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/stake value")
	}
	if err := requireCallerAuth(st, env, msg.Verifier); err != nil {
		return failResult(err)
	}
	amount, ok := parseBigInt(msg.Amount)
	if !ok {
		return failLog("invalid amount")
	}
	if err := st.StakeToken.Debit(msg.Verifier, amount); err != nil {
		return failResult(err)
	}
	if err := st.Registry.StakeAsVerifier(msg.Verifier, amount); err != nil {
		st.StakeToken.Credit(msg.Verifier, amount)
		return failResult(err)
	}
	return okResult(abci.Event{
		Type: "Staked",
		Attributes: []abci.EventAttribute{
			attr("verifier", msg.Verifier),
			attr("amount", amount.String()),
		},
	})
}

func handleUnstake(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.UnstakeTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/unstake value")
	}
	if err := requireCallerAuth(st, env, msg.Verifier); err != nil {
		return failResult(err)
	}
	amount, ok := parseBigInt(msg.Amount)
	if !ok {
		return failLog("invalid amount")
	}
	if err := st.Registry.Unstake(msg.Verifier, amount); err != nil {
		return failResult(err)
	}
	st.StakeToken.Credit(msg.Verifier, amount)
	return okResult(abci.Event{
		Type: "Unstaked",
		Attributes: []abci.EventAttribute{
			attr("verifier", msg.Verifier),
			attr("amount", amount.String()),
		},
	})
}

func handleActivate(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.ActivateVerifierTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/activate value")
	}
	if err := requireCallerAuth(st, env, msg.Verifier); err != nil {
		return failResult(err)
	}
	if err := st.Registry.ActivateVerifier(msg.Verifier); err != nil {
		return failResult(err)
	}
	return okResult(abci.Event{
		Type:       "VerifierActivated",
		Attributes: []abci.EventAttribute{attr("verifier", msg.Verifier)},
	})
}

func handleDeactivate(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.DeactivateVerifierTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/deactivate value")
	}
	if err := requireCallerAuth(st, env, msg.Verifier); err != nil {
		return failResult(err)
	}
	if err := st.Registry.DeactivateVerifier(msg.Verifier); err != nil {
		return failResult(err)
	}
	return okResult(abci.Event{
		Type:       "VerifierDeactivated",
		Attributes: []abci.EventAttribute{attr("verifier", msg.Verifier)},
	})
}

func handleAllowlist(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.AllowlistVerifierTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/allowlist value")
	}
	if err := requireAdminAuth(st, env); err != nil {
		return failResult(err)
	}
	st.Registry.AllowlistVerifier(msg.Verifier, msg.Allowed)
	return okResult(abci.Event{
		Type: "VerifierAllowlisted",
		Attributes: []abci.EventAttribute{
			attr("verifier", msg.Verifier),
			attr("allowed", boolStr(msg.Allowed)),
		},
	})
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func handleAdminSetParams(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.AdminSetParamsTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad registry/admin_set_params value")
	}
	if err := requireAdminAuth(st, env); err != nil {
		return failResult(err)
	}
	r := st.Registry
	if msg.QuorumBps != nil {
		if err := r.SetQuorumBps(*msg.QuorumBps); err != nil {
			return failResult(err)
		}
	}
	if msg.ClaimWindowSeconds != nil {
		if err := r.SetClaimWindowSeconds(*msg.ClaimWindowSeconds); err != nil {
			return failResult(err)
		}
	}
	if msg.RewardPerWhWei != nil {
		amt, ok := parseBigInt(*msg.RewardPerWhWei)
		if !ok {
			return failLog("invalid rewardPerWhWei")
		}
		if err := r.SetRewardPerWhWei(amt); err != nil {
			return failResult(err)
		}
	}
	if msg.SlashBps != nil {
		if err := r.SetSlashBps(*msg.SlashBps); err != nil {
			return failResult(err)
		}
	}
	if msg.FaultThreshold != nil {
		if err := r.SetFaultThreshold(*msg.FaultThreshold); err != nil {
			return failResult(err)
		}
	}
	if msg.MinStake != nil {
		amt, ok := parseBigInt(*msg.MinStake)
		if !ok {
			return failLog("invalid minStake")
		}
		if err := r.SetMinStake(amt); err != nil {
			return failResult(err)
		}
	}
	if msg.PermissionedMode != nil {
		r.SetPermissionedMode(*msg.PermissionedMode)
	}
	if msg.BaselineMode != nil {
		r.SetBaselineMode(*msg.BaselineMode)
	}
	if msg.SlashingDisabled != nil {
		r.SetSlashingDisabled(*msg.SlashingDisabled)
	}
	if msg.SingleVerifierOverride != nil {
		r.SetSingleVerifierOverride(*msg.SingleVerifierOverride)
	}
	return okResult(abci.Event{Type: "ParamsUpdated"})
}

func handleRegisterAccount(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.AuthRegisterAccountTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return failLog("bad auth/register_account value")
	}
	if err := requireRegisterAccountAuth(st, env, msg); err != nil {
		return failResult(err)
	}
	if existing := st.AccountKeys[msg.Account]; len(existing) != 0 {
		if string(existing) != string(msg.PubKey) {
			return failLog("account pubKey already set (rotation not supported)")
		}
		return okResult(abci.Event{
			Type:       "AccountKeyRegistered",
			Attributes: []abci.EventAttribute{attr("account", msg.Account), attr("existing", "true")},
		})
	}
	st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
	return okResult(abci.Event{
		Type:       "AccountKeyRegistered",
		Attributes: []abci.EventAttribute{attr("account", msg.Account)},
	})
}
