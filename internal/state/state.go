// Package state holds the application's entire mutable world: the Registry
// (verifiers, producers, consumers, snapshots), one Oracle instance per
// claim kind, the Treasury, and the two token ledgers the core is the sole
// minter/escrow of. It is loaded once at startup, mutated by one
// FinalizeBlock at a time, and hashed into an AppHash every commit.
package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
)

// State aggregates the three core components plus the token ledgers that
// stand in for the external credit-token and stake-token contracts.
type State struct {
	Height  int64 `json:"height"`
	ChainID int64 `json:"chainId"`

	// AccountKeys authenticates tx envelopes: addr -> ed25519 pubkey,
	// registered once via auth/register_account, then checked against
	// every envelope signature naming that address as caller.
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"`

	// NonceMax is the highest envelope nonce accepted so far per signer
	// address, enforced strictly increasing to reject replays.
	NonceMax map[string]uint64 `json:"nonceMax,omitempty"`

	Registry *RegistryState `json:"registry"`

	Production  *OracleState `json:"production"`
	Consumption *OracleState `json:"consumption"`
	Retirement  *OracleState `json:"retirement"`

	Treasury *TreasuryState `json:"treasury"`

	CreditToken *CreditToken `json:"creditToken"`
	StakeToken  *StakeToken  `json:"stakeToken"`
}

// NewState returns a fresh State seeded with default params.
func NewState() *State {
	return NewStateWithParams(DefaultParams())
}

func NewStateWithParams(params Params) *State {
	return &State{
		Height:      0,
		ChainID:     1,
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Registry:    NewRegistryState(params),
		Production:  NewOracleState(KindProduction),
		Consumption: NewOracleState(KindConsumption),
		Retirement:  NewOracleState(KindRetirement),
		Treasury:    NewTreasuryState(),
		CreditToken: NewCreditToken(),
		StakeToken:  NewStakeToken(),
	}
}

func fillZeroValues(s *State) {
	if s.ChainID == 0 {
		s.ChainID = 1
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Registry == nil {
		s.Registry = NewRegistryState(DefaultParams())
	}
	if s.Registry.Verifiers == nil {
		s.Registry.Verifiers = map[string]*Verifier{}
	}
	if s.Registry.Producers == nil {
		s.Registry.Producers = map[string]*Producer{}
	}
	if s.Registry.ProducerByIdentity == nil {
		s.Registry.ProducerByIdentity = map[string]string{}
	}
	if s.Registry.Consumers == nil {
		s.Registry.Consumers = map[string]*Consumer{}
	}
	if s.Registry.Snapshots == nil {
		s.Registry.Snapshots = map[uint64]*Snapshot{}
	}
	if s.Registry.ClaimSnapshot == nil {
		s.Registry.ClaimSnapshot = map[string]uint64{}
	}
	if s.Registry.NextSnapshotID == 0 {
		s.Registry.NextSnapshotID = 1
	}
	if s.Production == nil {
		s.Production = NewOracleState(KindProduction)
	}
	if s.Consumption == nil {
		s.Consumption = NewOracleState(KindConsumption)
	}
	if s.Retirement == nil {
		s.Retirement = NewOracleState(KindRetirement)
	}
	if s.Treasury == nil {
		s.Treasury = NewTreasuryState()
	}
	if s.Treasury.RewardPool == nil {
		s.Treasury.RewardPool = big.NewInt(0)
	}
	if s.Treasury.PendingRewards == nil {
		s.Treasury.PendingRewards = map[string]*big.Int{}
	}
	if s.Treasury.Slashed == nil {
		s.Treasury.Slashed = map[string]bool{}
	}
	if s.CreditToken == nil {
		s.CreditToken = NewCreditToken()
	}
	if s.StakeToken == nil {
		s.StakeToken = NewStakeToken()
	}
}

// Load reads state.json from home, or returns a fresh default State if the
// file has never been written (first boot).
func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	fillZeroValues(&st)
	return &st, nil
}

// Save writes state.json into home, creating the directory if needed.
func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy via JSON round-trip, suitable for staged
// transaction execution ahead of commit.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	fillZeroValues(&out)
	return &out, nil
}

// AppHash produces a deterministic digest of the whole state. Top-level
// maps are normalized into address/id-sorted slices before marshaling so
// the hash never depends on map iteration order.
func (s *State) AppHash() []byte {
	type verifierKV struct {
		Addr string    `json:"addr"`
		V    *Verifier `json:"v"`
	}
	type producerKV struct {
		ID string    `json:"id"`
		P  *Producer `json:"p"`
	}
	type consumerKV struct {
		ID string    `json:"id"`
		C  *Consumer `json:"c"`
	}
	type snapshotKV struct {
		ID uint64    `json:"id"`
		S  *Snapshot `json:"s"`
	}
	type bucketKV struct {
		Key string       `json:"key"`
		B   *ClaimBucket `json:"b"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type creditBalanceKV struct {
		HourID uint64 `json:"hourId"`
		Amount string `json:"amount"`
	}
	type creditTokenKV struct {
		Addr     string            `json:"addr"`
		Balances []creditBalanceKV `json:"balances"`
	}
	type stakeTokenKV struct {
		Addr   string `json:"addr"`
		Amount string `json:"amount"`
	}

	normRegistry := func(r *RegistryState) any {
		verifiers := make([]verifierKV, 0, len(r.Verifiers))
		for a, v := range r.Verifiers {
			verifiers = append(verifiers, verifierKV{a, v})
		}
		sort.Slice(verifiers, func(i, j int) bool { return verifiers[i].Addr < verifiers[j].Addr })

		producers := make([]producerKV, 0, len(r.Producers))
		for id, p := range r.Producers {
			producers = append(producers, producerKV{id, p})
		}
		sort.Slice(producers, func(i, j int) bool { return producers[i].ID < producers[j].ID })

		consumers := make([]consumerKV, 0, len(r.Consumers))
		for id, c := range r.Consumers {
			consumers = append(consumers, consumerKV{id, c})
		}
		sort.Slice(consumers, func(i, j int) bool { return consumers[i].ID < consumers[j].ID })

		snapshots := make([]snapshotKV, 0, len(r.Snapshots))
		for id, snap := range r.Snapshots {
			snapshots = append(snapshots, snapshotKV{id, snap})
		}
		sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })

		return struct {
			Params         Params       `json:"params"`
			Verifiers      []verifierKV `json:"verifiers"`
			ActiveSet      []string     `json:"activeSet"`
			Producers      []producerKV `json:"producers"`
			Consumers      []consumerKV `json:"consumers"`
			Snapshots      []snapshotKV `json:"snapshots"`
			NextSnapshotID uint64       `json:"nextSnapshotId"`
		}{r.Params, verifiers, r.ActiveSet, producers, consumers, snapshots, r.NextSnapshotID}
	}

	normOracle := func(o *OracleState) any {
		buckets := make([]bucketKV, 0, len(o.Buckets))
		for k, b := range o.Buckets {
			buckets = append(buckets, bucketKV{k, b})
		}
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
		return struct {
			Kind    OracleKind `json:"kind"`
			Buckets []bucketKV `json:"buckets"`
		}{o.Kind, buckets}
	}

	type pendingKV struct {
		Addr   string `json:"addr"`
		Amount string `json:"amount"`
	}
	pending := make([]pendingKV, 0, len(s.Treasury.PendingRewards))
	for a, amt := range s.Treasury.PendingRewards {
		pending = append(pending, pendingKV{a, amt.String()})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Addr < pending[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for a, pk := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{a, pk})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	type nonceKV struct {
		Addr string `json:"addr"`
		Max  uint64 `json:"max"`
	}
	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for a, n := range s.NonceMax {
		nonces = append(nonces, nonceKV{a, n})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Addr < nonces[j].Addr })

	slashed := make([]string, 0, len(s.Treasury.Slashed))
	for a, v := range s.Treasury.Slashed {
		if v {
			slashed = append(slashed, a)
		}
	}
	sort.Strings(slashed)

	creditToken := make([]creditTokenKV, 0, len(s.CreditToken.Balances))
	for a, byHour := range s.CreditToken.Balances {
		balances := make([]creditBalanceKV, 0, len(byHour))
		for hourID, amt := range byHour {
			balances = append(balances, creditBalanceKV{hourID, amt.String()})
		}
		sort.Slice(balances, func(i, j int) bool { return balances[i].HourID < balances[j].HourID })
		creditToken = append(creditToken, creditTokenKV{a, balances})
	}
	sort.Slice(creditToken, func(i, j int) bool { return creditToken[i].Addr < creditToken[j].Addr })

	stakeToken := make([]stakeTokenKV, 0, len(s.StakeToken.Balances))
	for a, amt := range s.StakeToken.Balances {
		stakeToken = append(stakeToken, stakeTokenKV{a, amt.String()})
	}
	sort.Slice(stakeToken, func(i, j int) bool { return stakeToken[i].Addr < stakeToken[j].Addr })

	normalized := struct {
		Height      int64           `json:"height"`
		ChainID     int64           `json:"chainId"`
		AccountKeys []accountKeyKV  `json:"accountKeys"`
		NonceMax    []nonceKV       `json:"nonceMax"`
		Registry    any             `json:"registry"`
		Production  any             `json:"production"`
		Consumption any             `json:"consumption"`
		Retirement  any             `json:"retirement"`
		RewardPool  string          `json:"rewardPool"`
		Pending     []pendingKV     `json:"pending"`
		Slashed     []string        `json:"slashed"`
		CreditToken []creditTokenKV `json:"creditToken"`
		StakeToken  []stakeTokenKV  `json:"stakeToken"`
	}{
		Height:      s.Height,
		ChainID:     s.ChainID,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
		Registry:    normRegistry(s.Registry),
		Production:  normOracle(s.Production),
		Consumption: normOracle(s.Consumption),
		Retirement:  normOracle(s.Retirement),
		RewardPool:  s.Treasury.RewardPool.String(),
		Pending:     pending,
		Slashed:     slashed,
		CreditToken: creditToken,
		StakeToken:  stakeToken,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

func (s *State) oracleByKind(kind OracleKind) *OracleState {
	switch kind {
	case KindProduction:
		return s.Production
	case KindConsumption:
		return s.Consumption
	case KindRetirement:
		return s.Retirement
	default:
		return nil
	}
}

// Oracle exposes the Oracle instance for a claim kind, used by internal/app
// so the transaction dispatcher never switches on kind itself.
func (s *State) Oracle(kind OracleKind) *OracleState {
	return s.oracleByKind(kind)
}
