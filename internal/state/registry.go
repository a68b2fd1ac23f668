package state

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wattverify/chain/internal/bitmap"
	"github.com/wattverify/chain/internal/errtypes"
)

// TreasuryAuthority is the caller token IncrementFaults and ReduceStake
// require. TreasuryState's fault and slash paths pass it, and so does
// OracleState.Submit when it records a late or duplicate submission fault;
// a fault recorded by Submit only bumps the counter and never triggers an
// auto-slash.
const TreasuryAuthority = "treasury"

// Verifier is a staked, activatable claim verifier. Stake is modeled as an
// arbitrary-precision integer (math/big) to match a uint256 stake token.
type Verifier struct {
	Address     string   `json:"address"`
	Stake       *big.Int `json:"stake"`
	Faults      uint32   `json:"faults"`
	Active      bool     `json:"active"`
	Allowlisted bool     `json:"allowlisted"`
}

// Producer is a registered generation/retirement subject.
type Producer struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	IdentityHash string `json:"identityHash"`
	MetaHash     string `json:"metaHash"`
	PayoutAddr   string `json:"payoutAddr"`
	Active       bool   `json:"active"`
}

// Consumer is a registered consumption subject (no identity-hash uniqueness).
type Consumer struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	IdentityHash string `json:"identityHash"`
	MetaHash     string `json:"metaHash"`
	PayoutAddr   string `json:"payoutAddr"`
	Active       bool   `json:"active"`
}

// Snapshot is the immutable, sorted verifier set captured at the moment of
// a claim's first submission.
type Snapshot struct {
	ID        uint64   `json:"id"`
	Verifiers []string `json:"verifiers"` // ascending by address
	Timestamp int64    `json:"timestamp"`
}

// RegistryState owns verifier/producer/consumer records and snapshots.
type RegistryState struct {
	Params Params `json:"params"`

	Verifiers map[string]*Verifier `json:"verifiers"`
	ActiveSet []string             `json:"activeSet"` // activation order, except that deactivation moves the last entry into the freed slot; len <= bitmap.MaxVerifiers

	Producers          map[string]*Producer `json:"producers"`
	ProducerByIdentity map[string]string    `json:"producerByIdentity"` // identityHash -> producerId

	Consumers map[string]*Consumer `json:"consumers"`

	NextSnapshotID uint64               `json:"nextSnapshotId"`
	Snapshots      map[uint64]*Snapshot `json:"snapshots"`
	ClaimSnapshot  map[string]uint64    `json:"claimSnapshot"` // claimKey hex -> snapshot id

	NextEntityNonce uint64 `json:"nextEntityNonce"`
}

// NewRegistryState returns a RegistryState seeded with the given params.
func NewRegistryState(params Params) *RegistryState {
	return &RegistryState{
		Params:             params,
		Verifiers:          map[string]*Verifier{},
		ActiveSet:          []string{},
		Producers:          map[string]*Producer{},
		ProducerByIdentity: map[string]string{},
		Consumers:          map[string]*Consumer{},
		NextSnapshotID:     1,
		Snapshots:          map[uint64]*Snapshot{},
		ClaimSnapshot:      map[string]uint64{},
	}
}

func normAddr(addr string) string {
	return common.HexToAddress(addr).Hex()
}

func (r *RegistryState) getOrCreateVerifier(addr string) *Verifier {
	a := normAddr(addr)
	v, ok := r.Verifiers[a]
	if !ok {
		v = &Verifier{Address: a, Stake: big.NewInt(0)}
		r.Verifiers[a] = v
	}
	return v
}

func deriveEntityID(owner string, identityHash string, nonce uint64) string {
	nonceBz := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBz[7-i] = byte(nonce >> (8 * i))
	}
	buf := make([]byte, 0, 20+32+8)
	buf = append(buf, common.HexToAddress(owner).Bytes()...)
	buf = append(buf, common.HexToHash(identityHash).Bytes()...)
	buf = append(buf, nonceBz...)
	return crypto.Keccak256Hash(buf).Hex()
}

// RegisterProducer assigns a fresh producerId and records the producer as
// active. identityHash must be globally unique among producers.
func (r *RegistryState) RegisterProducer(owner, identityHash, metaHash, payoutAddr string) (*Producer, error) {
	if owner == "" || payoutAddr == "" {
		return nil, errtypes.ErrZeroAddress
	}
	ih := common.HexToHash(identityHash).Hex()
	if _, exists := r.ProducerByIdentity[ih]; exists {
		return nil, errtypes.ErrSystemAlreadyRegistered
	}
	r.NextEntityNonce++
	id := deriveEntityID(owner, ih, r.NextEntityNonce)
	p := &Producer{
		ID:           id,
		Owner:        normAddr(owner),
		IdentityHash: ih,
		MetaHash:     common.HexToHash(metaHash).Hex(),
		PayoutAddr:   normAddr(payoutAddr),
		Active:       true,
	}
	r.Producers[id] = p
	r.ProducerByIdentity[ih] = id
	return p, nil
}

// RegisterConsumer is analogous to RegisterProducer without the
// identity-hash global-uniqueness constraint.
func (r *RegistryState) RegisterConsumer(owner, identityHash, metaHash, payoutAddr string) (*Consumer, error) {
	if owner == "" || payoutAddr == "" {
		return nil, errtypes.ErrZeroAddress
	}
	ih := common.HexToHash(identityHash).Hex()
	r.NextEntityNonce++
	id := deriveEntityID(owner, ih, r.NextEntityNonce)
	c := &Consumer{
		ID:           id,
		Owner:        normAddr(owner),
		IdentityHash: ih,
		MetaHash:     common.HexToHash(metaHash).Hex(),
		PayoutAddr:   normAddr(payoutAddr),
		Active:       true,
	}
	r.Consumers[id] = c
	return c, nil
}

// StakeAsVerifier escrows stake-token amount into verifier.Stake. Activation
// is a separate step.
func (r *RegistryState) StakeAsVerifier(addr string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errtypes.ErrZeroAmount
	}
	v := r.getOrCreateVerifier(addr)
	v.Stake = new(big.Int).Add(v.Stake, amount)
	return nil
}

// Unstake returns amount to the verifier; fails if active or over-drawn.
func (r *RegistryState) Unstake(addr string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errtypes.ErrZeroAmount
	}
	a := normAddr(addr)
	v, ok := r.Verifiers[a]
	if !ok {
		return errtypes.ErrInsufficientStakeBalance
	}
	if v.Active {
		return errtypes.ErrVerifierAlreadyActive.Wrap("cannot unstake while active")
	}
	if amount.Cmp(v.Stake) > 0 {
		return errtypes.ErrInsufficientStakeBalance
	}
	v.Stake = new(big.Int).Sub(v.Stake, amount)
	return nil
}

// ActivateVerifier appends addr to the ActiveVerifierSet, enforcing the
// permissioned/minStake/capacity gates.
func (r *RegistryState) ActivateVerifier(addr string) error {
	a := normAddr(addr)
	v, ok := r.Verifiers[a]
	if !ok {
		v = r.getOrCreateVerifier(a)
	}
	if v.Active {
		return errtypes.ErrVerifierAlreadyActive
	}
	if r.Params.PermissionedMode && !v.Allowlisted {
		return errtypes.ErrVerifierNotAllowlisted
	}
	if v.Stake.Cmp(r.Params.MinStake) < 0 {
		return errtypes.ErrInsufficientStake
	}
	// A 17th active verifier would silently corrupt bitmap-based treasury
	// accounting, so the cap is enforced explicitly here rather than left
	// to overflow.
	if len(r.ActiveSet) >= bitmap.MaxVerifiers {
		return errtypes.ErrActiveSetFull
	}
	v.Active = true
	r.ActiveSet = append(r.ActiveSet, a)
	return nil
}

// DeactivateVerifier removes addr from the ActiveVerifierSet via
// swap-and-pop. No position index is kept: the entry is first located by a
// linear scan of the set (at most bitmap.MaxVerifiers entries), so removal
// is not O(1). Stake is preserved.
func (r *RegistryState) DeactivateVerifier(addr string) error {
	a := normAddr(addr)
	v, ok := r.Verifiers[a]
	if !ok || !v.Active {
		return errtypes.ErrVerifierNotActive
	}
	pos := -1
	for i, s := range r.ActiveSet {
		if s == a {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errtypes.ErrVerifierNotActive
	}
	last := len(r.ActiveSet) - 1
	r.ActiveSet[pos] = r.ActiveSet[last]
	r.ActiveSet = r.ActiveSet[:last]
	v.Active = false
	return nil
}

// CreateSnapshot copies the current ActiveVerifierSet, sorts it ascending by
// address, and stores it under a fresh monotonic id keyed by claimKey.
// Authorization (oracle-only) is enforced by the caller (internal/app).
func (r *RegistryState) CreateSnapshot(claimKey string, now int64) (*Snapshot, error) {
	ck := common.HexToHash(claimKey).Hex()
	if _, exists := r.ClaimSnapshot[ck]; exists {
		return nil, errtypes.ErrSnapshotAlreadyExists
	}
	if len(r.ActiveSet) == 0 {
		return nil, errtypes.ErrNoActiveVerifiers
	}
	verifiers := append([]string(nil), r.ActiveSet...)
	// Entries are EIP-55 checksummed (mixed case); lowercased fixed-width hex
	// orders the same way as the addresses' unsigned integer values.
	sort.Slice(verifiers, func(i, j int) bool {
		return strings.ToLower(verifiers[i]) < strings.ToLower(verifiers[j])
	})

	id := r.NextSnapshotID
	r.NextSnapshotID++
	snap := &Snapshot{ID: id, Verifiers: verifiers, Timestamp: now}
	r.Snapshots[id] = snap
	r.ClaimSnapshot[ck] = id
	return snap, nil
}

// GetVerifierIndex linearly scans the (<=16 entry) snapshot for verifier.
func (r *RegistryState) GetVerifierIndex(snapshotID uint64, verifier string) (uint8, error) {
	snap, ok := r.Snapshots[snapshotID]
	if !ok {
		return 0, errtypes.ErrSnapshotNotFound
	}
	a := normAddr(verifier)
	for i, v := range snap.Verifiers {
		if v == a {
			return uint8(i), nil
		}
	}
	return 0, errtypes.ErrVerifierNotInSnapshot
}

// IncrementFaults bumps a verifier's fault counter. Only TreasuryAuthority
// may call this.
func (r *RegistryState) IncrementFaults(caller, addr string) (uint32, error) {
	if caller != TreasuryAuthority {
		return 0, errtypes.ErrOnlyTreasury
	}
	v := r.getOrCreateVerifier(addr)
	v.Faults++
	return v.Faults, nil
}

// ReduceStake subtracts amount from a verifier's stake (slashing). Only
// TreasuryAuthority may call this.
func (r *RegistryState) ReduceStake(caller, addr string, amount *big.Int) error {
	if caller != TreasuryAuthority {
		return errtypes.ErrOnlyTreasury
	}
	v := r.getOrCreateVerifier(addr)
	if amount.Cmp(v.Stake) > 0 {
		amount = new(big.Int).Set(v.Stake)
	}
	v.Stake = new(big.Int).Sub(v.Stake, amount)
	return nil
}

// Verifier returns the (possibly nil) verifier record for addr.
func (r *RegistryState) Verifier(addr string) *Verifier {
	return r.Verifiers[normAddr(addr)]
}

// SetQuorumBps validates and sets Params.QuorumBps.
func (r *RegistryState) SetQuorumBps(bps uint32) error {
	if bps == 0 || bps > 10000 {
		return errtypes.ErrInvalidQuorumBps
	}
	r.Params.QuorumBps = bps
	return nil
}

// SetClaimWindowSeconds sets Params.ClaimWindowSeconds.
func (r *RegistryState) SetClaimWindowSeconds(seconds int64) error {
	if seconds <= 0 {
		return errtypes.ErrInvalidConfig.Wrap("claimWindowSeconds must be > 0")
	}
	r.Params.ClaimWindowSeconds = seconds
	return nil
}

// SetRewardPerWhWei sets Params.RewardPerWhWei.
func (r *RegistryState) SetRewardPerWhWei(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errtypes.ErrInvalidConfig.Wrap("rewardPerWhWei must be >= 0")
	}
	r.Params.RewardPerWhWei = amount
	return nil
}

// SetSlashBps sets Params.SlashBps.
func (r *RegistryState) SetSlashBps(bps uint32) error {
	if bps > 10000 {
		return errtypes.ErrInvalidConfig.Wrap("slashBps must be <= 10000")
	}
	r.Params.SlashBps = bps
	return nil
}

// SetFaultThreshold sets Params.FaultThreshold.
func (r *RegistryState) SetFaultThreshold(threshold uint32) error {
	if threshold == 0 {
		return errtypes.ErrInvalidConfig.Wrap("faultThreshold must be > 0")
	}
	r.Params.FaultThreshold = threshold
	return nil
}

// SetMinStake sets Params.MinStake.
func (r *RegistryState) SetMinStake(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errtypes.ErrInvalidConfig.Wrap("minStake must be >= 0")
	}
	r.Params.MinStake = amount
	return nil
}

// SetPermissionedMode toggles Params.PermissionedMode.
func (r *RegistryState) SetPermissionedMode(on bool) {
	r.Params.PermissionedMode = on
}

// SetBaselineMode toggles Params.BaselineMode.
func (r *RegistryState) SetBaselineMode(on bool) {
	r.Params.BaselineMode = on
}

// SetSlashingDisabled toggles Params.SlashingDisabled.
func (r *RegistryState) SetSlashingDisabled(on bool) {
	r.Params.SlashingDisabled = on
}

// SetSingleVerifierOverride sets Params.SingleVerifierOverride.
func (r *RegistryState) SetSingleVerifierOverride(addr string) {
	if addr == "" {
		r.Params.SingleVerifierOverride = ""
		return
	}
	r.Params.SingleVerifierOverride = normAddr(addr)
}

// AllowlistVerifier sets or clears a verifier's allowlisted flag.
func (r *RegistryState) AllowlistVerifier(addr string, allowed bool) {
	v := r.getOrCreateVerifier(addr)
	v.Allowlisted = allowed
}
