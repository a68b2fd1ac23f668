package state

import (
	"math/big"

	"github.com/wattverify/chain/internal/bitmap"
	"github.com/wattverify/chain/internal/errtypes"
)

// TreasuryState owns the reward pool, the pending-reward ledger, and the
// slashed set. Fault counters live on Verifier in RegistryState; Treasury
// only decides when a fault crosses into a slash.
type TreasuryState struct {
	RewardPool     *big.Int            `json:"rewardPool"`
	PendingRewards map[string]*big.Int `json:"pendingRewards"`
	Slashed        map[string]bool     `json:"slashed"`
}

func NewTreasuryState() *TreasuryState {
	return &TreasuryState{
		RewardPool:     big.NewInt(0),
		PendingRewards: map[string]*big.Int{},
		Slashed:        map[string]bool{},
	}
}

// Fund escrows stake-token (or an independently funded reward-token pool)
// into the reward pool. Apart from Fund, the pool grows only by slashed
// stake (slashIfEligible).
func (t *TreasuryState) Fund(amount *big.Int) {
	t.RewardPool = new(big.Int).Add(t.RewardPool, amount)
}

func (t *TreasuryState) pendingBalance(addr string) *big.Int {
	v, ok := t.PendingRewards[addr]
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// DistributeResult reports the per-winner split so the caller can build the
// RewardsDistributed event.
type DistributeResult struct {
	Winners          int
	PerWinner        *big.Int
	TotalDistributed *big.Int
}

// DistributeRewards splits a finalized claim's reward across its winning
// verifiers: zero-reward short circuit, floor-division split, dust left in
// the pool.
func (t *TreasuryState) DistributeRewards(reg *RegistryState, winnerBitmap uint16, snapshotID uint64, wh uint64) (*DistributeResult, error) {
	winners := bitmap.PopCount(winnerBitmap)
	if winners == 0 || wh == 0 || reg.Params.RewardPerWhWei.Sign() == 0 {
		return &DistributeResult{Winners: winners, PerWinner: big.NewInt(0), TotalDistributed: big.NewInt(0)}, nil
	}

	total := new(big.Int).Mul(new(big.Int).SetUint64(wh), reg.Params.RewardPerWhWei)
	if total.Cmp(t.RewardPool) > 0 {
		return nil, errtypes.ErrInsufficientRewardPool
	}

	perWinner := new(big.Int).Div(total, big.NewInt(int64(winners)))
	if perWinner.Sign() == 0 {
		return &DistributeResult{Winners: winners, PerWinner: big.NewInt(0), TotalDistributed: big.NewInt(0)}, nil
	}

	snap, ok := reg.Snapshots[snapshotID]
	if !ok {
		return nil, errtypes.ErrSnapshotNotFound
	}
	for _, idx := range bitmap.Indices(winnerBitmap) {
		if int(idx) >= len(snap.Verifiers) {
			continue
		}
		addr := snap.Verifiers[idx]
		t.PendingRewards[addr] = new(big.Int).Add(t.pendingBalance(addr), perWinner)
	}

	distributed := new(big.Int).Mul(perWinner, big.NewInt(int64(winners)))
	t.RewardPool = new(big.Int).Sub(t.RewardPool, distributed)

	return &DistributeResult{Winners: winners, PerWinner: perWinner, TotalDistributed: distributed}, nil
}

// slashIfEligible is the shared slash arithmetic used by both the automatic
// (fault-threshold-triggered) and manual paths. Idempotent: a verifier
// already in the slashed set is a silent no-op.
func (t *TreasuryState) slashIfEligible(reg *RegistryState, verifier string) (*SlashEvent, error) {
	a := normAddr(verifier)
	if t.Slashed[a] {
		return nil, nil
	}
	v := reg.Verifier(a)
	if v == nil {
		return nil, nil
	}
	slashAmount := new(big.Int).Div(new(big.Int).Mul(v.Stake, big.NewInt(int64(reg.Params.SlashBps))), big.NewInt(10000))
	if err := reg.ReduceStake(TreasuryAuthority, a, slashAmount); err != nil {
		return nil, err
	}
	t.Slashed[a] = true
	t.RewardPool = new(big.Int).Add(t.RewardPool, slashAmount)
	return &SlashEvent{Verifier: a, Amount: slashAmount}, nil
}

// Slash is the manual admin override. Suppressed entirely (no state change,
// no error) when the baseline slashingDisabled switch is set; otherwise an
// already-slashed verifier surfaces AlreadySlashed explicitly, unlike the
// silent auto-slash path inside RecordFault.
func (t *TreasuryState) Slash(reg *RegistryState, verifier string) (*SlashEvent, error) {
	if reg.Params.SlashingDisabled {
		return nil, nil
	}
	a := normAddr(verifier)
	if t.Slashed[a] {
		return nil, errtypes.ErrAlreadySlashed
	}
	return t.slashIfEligible(reg, verifier)
}

// SlashEvent reports a slash so the caller can build the Slashed event.
type SlashEvent struct {
	Verifier string
	Amount   *big.Int
}

// RecordFault bumps the fault counter and auto-slashes once the threshold
// is crossed (unless slashing is disabled).
func (t *TreasuryState) RecordFault(reg *RegistryState, verifier string, kind FaultKind) (*FaultEvent, *SlashEvent, error) {
	totalFaults, err := reg.IncrementFaults(TreasuryAuthority, verifier)
	if err != nil {
		return nil, nil, err
	}
	fe := &FaultEvent{Verifier: normAddr(verifier), Kind: kind, TotalFaults: totalFaults}

	var se *SlashEvent
	if !reg.Params.SlashingDisabled && totalFaults >= reg.Params.FaultThreshold {
		se, err = t.slashIfEligible(reg, verifier)
		if err != nil {
			return fe, nil, err
		}
	}
	return fe, se, nil
}

// RecordFaults runs RecordFault once per set bit in loserBitmap, resolved
// against the same snapshot the bucket finalized against.
func (t *TreasuryState) RecordFaults(reg *RegistryState, loserBitmap uint16, snapshotID uint64, kind FaultKind) ([]*FaultEvent, []*SlashEvent, error) {
	if loserBitmap == 0 {
		return nil, nil, nil
	}
	snap, ok := reg.Snapshots[snapshotID]
	if !ok {
		return nil, nil, errtypes.ErrSnapshotNotFound
	}
	var faults []*FaultEvent
	var slashes []*SlashEvent
	for _, idx := range bitmap.Indices(loserBitmap) {
		if int(idx) >= len(snap.Verifiers) {
			continue
		}
		fe, se, err := t.RecordFault(reg, snap.Verifiers[idx], kind)
		if err != nil {
			return faults, slashes, err
		}
		faults = append(faults, fe)
		if se != nil {
			slashes = append(slashes, se)
		}
	}
	return faults, slashes, nil
}

// ClaimRewards transfers the caller's pending balance out and zeroes the
// entry.
func (t *TreasuryState) ClaimRewards(caller string) *big.Int {
	a := normAddr(caller)
	amt := t.pendingBalance(a)
	t.PendingRewards[a] = big.NewInt(0)
	return amt
}
