// Package codec defines the wire envelope and the typed message bodies it
// carries. CometBFT transactions are opaque bytes; this package encodes them
// as plain JSON rather than reaching for a protobuf/Amino pipeline.
package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the transaction container every FinalizeBlock tx decodes
// into before being routed by Type.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Signer is the submitting account for auth-gated message types
	// (registry admin setters, treasury claim). Claim submissions carry
	// their own ECDSA signature inside Value and do not need Signer.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Auth ----

// AuthRegisterAccountTx binds an ed25519 pubkey to an address for envelope
// signature verification.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"`
}

// ---- Registry ----

type RegisterProducerTx struct {
	Owner        string `json:"owner"`
	IdentityHash string `json:"identityHash"`
	MetaHash     string `json:"metaHash"`
	PayoutAddr   string `json:"payoutAddr"`
}

type RegisterConsumerTx struct {
	Owner        string `json:"owner"`
	IdentityHash string `json:"identityHash"`
	MetaHash     string `json:"metaHash"`
	PayoutAddr   string `json:"payoutAddr"`
}

type StakeAsVerifierTx struct {
	Verifier string `json:"verifier"`
	Amount   string `json:"amount"` // base-10 big.Int
}

type UnstakeTx struct {
	Verifier string `json:"verifier"`
	Amount   string `json:"amount"`
}

type ActivateVerifierTx struct {
	Verifier string `json:"verifier"`
}

type DeactivateVerifierTx struct {
	Verifier string `json:"verifier"`
}

type AllowlistVerifierTx struct {
	Verifier string `json:"verifier"`
	Allowed  bool   `json:"allowed"`
}

// AdminSetParamsTx carries a sparse param patch: every field is a pointer,
// a field absent from the JSON stays nil and leaves that param unchanged,
// and a field present in the JSON (an explicit zero or false included) is
// applied.
type AdminSetParamsTx struct {
	QuorumBps              *uint32 `json:"quorumBps,omitempty"`
	ClaimWindowSeconds      *int64  `json:"claimWindowSeconds,omitempty"`
	RewardPerWhWei          *string `json:"rewardPerWhWei,omitempty"`
	SlashBps                *uint32 `json:"slashBps,omitempty"`
	FaultThreshold          *uint32 `json:"faultThreshold,omitempty"`
	MinStake                *string `json:"minStake,omitempty"`
	PermissionedMode        *bool   `json:"permissionedMode,omitempty"`
	BaselineMode            *bool   `json:"baselineMode,omitempty"`
	SlashingDisabled        *bool   `json:"slashingDisabled,omitempty"`
	SingleVerifierOverride  *string `json:"singleVerifierOverride,omitempty"`
}

// ---- Oracle (shared by production, consumption, retirement) ----

// SubmitClaimTx is the signed-claim envelope. Oracle selects which of
// {production, consumption, retirement} this lands in.
type SubmitClaimTx struct {
	Oracle       string `json:"oracle"`       // claim-type tag: "production" | "consumption" | "retirement"
	SubjectID    string `json:"subjectId"`    // producer or consumer id (bytes32 hex)
	HourID       uint64 `json:"hourId"`
	Wh           uint64 `json:"wh"`
	EvidenceRoot string `json:"evidenceRoot"` // bytes32 hex
	Signature    []byte `json:"signature"`    // 65-byte ECDSA signature
}

type FinalizeClaimTx struct {
	Oracle    string `json:"oracle"`
	SubjectID string `json:"subjectId"`
	HourID    uint64 `json:"hourId"`
}

type ForceFinalizeClaimTx struct {
	Oracle       string `json:"oracle"`
	SubjectID    string `json:"subjectId"`
	HourID       uint64 `json:"hourId"`
	Wh           uint64 `json:"wh"`
	EvidenceRoot string `json:"evidenceRoot"`
}

// ---- Treasury ----

type ClaimRewardsTx struct {
	Caller string `json:"caller"`
}

type FundTreasuryTx struct {
	Amount string `json:"amount"`
}

type SlashVerifierTx struct {
	Verifier string `json:"verifier"`
}
