// Package app wires the Registry/Oracle/Treasury state machine up to
// CometBFT's ABCI: one mutex-guarded *state.State, one FinalizeBlock per
// block delivering transactions strictly in order, one AppHash per Commit.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/rs/zerolog"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/state"
)

const AppVersion uint64 = 1

// App is the CreditChain ABCI application.
type App struct {
	*abci.BaseApplication

	home string
	log  zerolog.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, log zerolog.Logger) (*App, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		log:             log,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "creditchain",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Structural validation only; signature/auth checks run in deliverTx,
	// keeping mempool admission cheap relative to execution.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *App) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(req.AppStateBytes) > 0 {
		var seed state.State
		if err := json.Unmarshal(req.AppStateBytes, &seed); err != nil {
			return nil, fmt.Errorf("invalid genesis app_state: %w", err)
		}
		a.st = &seed
		a.lastHash = a.st.AppHash()
	}
	return &abci.InitChainResponse{AppHash: a.lastHash}, nil
}

func (a *App) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	now := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, now)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		return nil, err
	}
	a.log.Debug().Int64("height", a.st.Height).Hex("appHash", a.lastHash).Msg("committed")
	return &abci.CommitResponse{}, nil
}

// Query supports a handful of read paths useful for operators and off-chain
// submitters: /verifier/<addr>, /producer/<id>, /consumer/<id>,
// /claim/<kind>/<claimKey>, /pending/<addr>, /balance/<addr>/<hourId>.
func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := strings.TrimSpace(req.Path)
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	notFound := func(log string) (*abci.QueryResponse, error) {
		return &abci.QueryResponse{Code: 1, Log: log, Height: a.st.Height}, nil
	}
	ok := func(v any) (*abci.QueryResponse, error) {
		b, _ := json.Marshal(v)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	}

	if len(parts) < 2 {
		return notFound("unknown query path")
	}

	switch parts[0] {
	case "verifier":
		v := a.st.Registry.Verifier(parts[1])
		if v == nil {
			return notFound("verifier not found")
		}
		return ok(v)
	case "producer":
		p, found := a.st.Registry.Producers[parts[1]]
		if !found {
			return notFound("producer not found")
		}
		return ok(p)
	case "consumer":
		c, found := a.st.Registry.Consumers[parts[1]]
		if !found {
			return notFound("consumer not found")
		}
		return ok(c)
	case "claim":
		if len(parts) < 3 {
			return notFound("missing claim key")
		}
		kind, err := oracleKind(parts[1])
		if err != nil {
			return notFound(err.Error())
		}
		b, found := a.st.Oracle(kind).Buckets[parts[2]]
		if !found {
			return notFound("claim not found")
		}
		return ok(b)
	case "pending":
		return ok(a.st.Treasury.PendingRewards[parts[1]])
	case "balance":
		if len(parts) < 3 {
			return notFound("missing hourId")
		}
		hourID, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return notFound("invalid hourId")
		}
		return ok(a.st.CreditToken.Balance(parts[1], hourID))
	default:
		return notFound("unknown query path")
	}
}

func (a *App) deliverTx(txBytes []byte, now int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return failLog(err.Error())
	}

	switch env.Type {
	case "auth/register_account":
		return handleRegisterAccount(a.st, env)
	case "registry/register_producer":
		return handleRegisterProducer(a.st, env)
	case "registry/register_consumer":
		return handleRegisterConsumer(a.st, env)
	case "registry/stake":
		return handleStake(a.st, env)
	case "registry/unstake":
		return handleUnstake(a.st, env)
	case "registry/activate":
		return handleActivate(a.st, env)
	case "registry/deactivate":
		return handleDeactivate(a.st, env)
	case "registry/allowlist":
		return handleAllowlist(a.st, env)
	case "registry/admin_set_params":
		return handleAdminSetParams(a.st, env)
	case "oracle/submit":
		return handleSubmitClaim(a.st, env, now)
	case "oracle/finalize":
		return handleFinalizeClaim(a.st, env, now)
	case "oracle/force_finalize":
		return handleForceFinalizeClaim(a.st, env, now)
	case "treasury/claim_rewards":
		return handleClaimRewards(a.st, env)
	case "treasury/fund":
		return handleFundTreasury(a.st, env)
	case "treasury/slash":
		return handleSlash(a.st, env)
	default:
		return failLog("unknown tx type: " + env.Type)
	}
}

// DeliverTx runs a single transaction against the app's state outside of a
// FinalizeBlock call, for tests that don't need a full block lifecycle.
func (a *App) DeliverTx(txBytes []byte, now int64) *abci.ExecTxResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deliverTx(txBytes, now)
}

// State exposes the app's state for tests, under the same mutex the
// FinalizeBlock path uses.
func (a *App) State() *state.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st
}
