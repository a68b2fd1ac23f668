package state

import (
	"math/big"

	"github.com/wattverify/chain/internal/errtypes"
)

// Params holds the Registry's shared configuration, mutable only through
// the administrative setters.
type Params struct {
	QuorumBps              uint32   `json:"quorumBps"`
	ClaimWindowSeconds     int64    `json:"claimWindowSeconds"`
	RewardPerWhWei         *big.Int `json:"rewardPerWhWei"`
	SlashBps               uint32   `json:"slashBps"`
	FaultThreshold         uint32   `json:"faultThreshold"`
	MinStake               *big.Int `json:"minStake"`
	PermissionedMode       bool     `json:"permissionedMode"`
	BaselineMode           bool     `json:"baselineMode"`
	SlashingDisabled       bool     `json:"slashingDisabled"`
	SingleVerifierOverride string   `json:"singleVerifierOverride,omitempty"`

	// Admin is the privileged caller authorized for forceFinalize and the
	// administrative setters, modeled as a single address the same way
	// Treasury-only calls are restricted elsewhere in this package.
	Admin string `json:"admin,omitempty"`
}

// DefaultParams returns the documented production-network defaults.
func DefaultParams() Params {
	return Params{
		QuorumBps:          6667,
		ClaimWindowSeconds: 3600,
		RewardPerWhWei:     big.NewInt(1e12),
		SlashBps:           1000,
		FaultThreshold:     3,
		MinStake:           new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		PermissionedMode:   true,
	}
}

// Validate enforces quorumBps must be in (0, 10000], plus the other
// non-negativity and bounds constraints on the remaining fields.
func (p Params) Validate() error {
	if p.QuorumBps == 0 || p.QuorumBps > 10000 {
		return errtypes.ErrInvalidQuorumBps
	}
	if p.RewardPerWhWei == nil || p.RewardPerWhWei.Sign() < 0 {
		return errtypes.ErrInvalidConfig.Wrap("rewardPerWhWei must be >= 0")
	}
	if p.MinStake == nil || p.MinStake.Sign() < 0 {
		return errtypes.ErrInvalidConfig.Wrap("minStake must be >= 0")
	}
	if p.SlashBps > 10000 {
		return errtypes.ErrInvalidConfig.Wrap("slashBps must be <= 10000")
	}
	return nil
}

// QuorumRequired computes ⌈n·quorumBps/10000⌉ using the integer
// rounding-up formula (n*bps + 9999) / 10000.
func (p Params) QuorumRequired(n int) int {
	num := uint64(n) * uint64(p.QuorumBps)
	return int((num + 9999) / 10000)
}
