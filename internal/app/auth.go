package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/errtypes"
	"github.com/wattverify/chain/internal/state"
)

// txAuthDomain: every registry/treasury tx that names a "caller" must carry
// an ed25519 signature over (type, nonce, signer, sha256(value)) checked
// against a pubkey registered once via auth/register_account. Claim
// submissions are the exception -- they carry their own ECDSA signature
// over the wire digest (internal/wire), verified independently in oracle.go.
const txAuthDomain = "creditchain/tx/v0"

func txAuthSignBytes(typ string, value []byte, nonce, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomain)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomain)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// parseNonce requires a positive decimal integer: nonce 0 is never valid,
// which leaves it free as the State.NonceMax zero-value sentinel for an
// address that has never transacted.
func parseNonce(nonce string) (uint64, error) {
	n, err := strconv.ParseUint(nonce, 10, 64)
	if err != nil || n == 0 {
		return 0, errtypes.ErrInvalidNonce
	}
	return n, nil
}

// requireCallerAuth checks that env is signed by the account named caller,
// using its previously registered ed25519 pubkey, and that env.Nonce is
// strictly greater than the highest nonce caller has used before. The nonce
// is only advanced once the signature itself verifies, so a forged envelope
// never burns a legitimate nonce slot.
func requireCallerAuth(st *state.State, env codec.TxEnvelope, caller string) error {
	if caller == "" {
		return fmt.Errorf("missing caller")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != caller {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, caller)
	}
	pub := st.AccountKeys[caller]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("account %q missing pubKey (auth/register_account required)", caller)
	}
	nonce, err := parseNonce(env.Nonce)
	if err != nil {
		return err
	}
	if nonce <= st.NonceMax[caller] {
		return errtypes.ErrNonceReplayed
	}
	msg := txAuthSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	st.NonceMax[caller] = nonce
	return nil
}

// requireAdminAuth checks that env is signed by the configured Params.Admin,
// the privileged caller forceFinalize and the admin setters require.
func requireAdminAuth(st *state.State, env codec.TxEnvelope) error {
	admin := st.Registry.Params.Admin
	if admin == "" {
		return fmt.Errorf("no admin configured")
	}
	return requireCallerAuth(st, env, admin)
}

func requireRegisterAccountAuth(st *state.State, env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if msg.Account == "" {
		return fmt.Errorf("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	nonce, err := parseNonce(env.Nonce)
	if err != nil {
		return err
	}
	if nonce <= st.NonceMax[msg.Account] {
		return errtypes.ErrNonceReplayed
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := txAuthSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	st.NonceMax[msg.Account] = nonce
	return nil
}
