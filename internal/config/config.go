// Package config loads the recognized configuration keys via viper.
package config

import (
	"math/big"

	"github.com/spf13/viper"
)

// Config holds the recognized, documented configuration keys and their
// defaults.
type Config struct {
	QuorumBps              uint32 `mapstructure:"quorum_bps"`
	ClaimWindowSeconds     int64  `mapstructure:"claim_window_seconds"`
	RewardPerWhWei         string `mapstructure:"reward_per_wh_wei"`
	SlashBps               uint32 `mapstructure:"slash_bps"`
	FaultThreshold         uint32 `mapstructure:"fault_threshold"`
	MinStake               string `mapstructure:"min_stake"`
	PermissionedMode       bool   `mapstructure:"permissioned_mode"`
	BaselineMode           bool   `mapstructure:"baseline_mode"`
	SlashingDisabled       bool   `mapstructure:"slashing_disabled"`
	SingleVerifierOverride string `mapstructure:"single_verifier_override"`
	ChainID                int64  `mapstructure:"chain_id"`
	ABCIAddr               string `mapstructure:"abci_addr"`
	ABCITransport          string `mapstructure:"abci_transport"`
	Home                   string `mapstructure:"home"`
}

// Default returns the recognized configuration keys with their defaults.
func Default() Config {
	return Config{
		QuorumBps:              6667,
		ClaimWindowSeconds:     3600,
		RewardPerWhWei:         "1000000000000", // 1e12
		SlashBps:               1000,
		FaultThreshold:         3,
		MinStake:               "100000000000000000000", // 100 * 10^18
		PermissionedMode:       true,
		BaselineMode:           false,
		SlashingDisabled:       false,
		SingleVerifierOverride: "",
		ChainID:                1,
		ABCIAddr:               "tcp://127.0.0.1:26658",
		ABCITransport:          "socket",
		Home:                   ".creditchain",
	}
}

// Load reads configuration from viper (flags, env, and an optional config
// file already bound by the caller) layered over Default().
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v == nil {
		return cfg, nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RewardPerWhWeiInt parses RewardPerWhWei as a base-10 big.Int.
func (c Config) RewardPerWhWeiInt() (*big.Int, bool) {
	return new(big.Int).SetString(c.RewardPerWhWei, 10)
}

// MinStakeInt parses MinStake as a base-10 big.Int.
func (c Config) MinStakeInt() (*big.Int, bool) {
	return new(big.Int).SetString(c.MinStake, 10)
}
