package app

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wattverify/chain/internal/codec"
	"github.com/wattverify/chain/internal/wire"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return a
}

// testAddr returns a distinct, valid 20-byte hex address for seed. Accounts
// in this package are normalized through common.HexToAddress, which silently
// collapses any non-hex label (e.g. "admin") to the zero address, so every
// synthetic identity in these tests must be built from one of these instead
// of an arbitrary string.
func testAddr(seed int) string {
	return fmt.Sprintf("0x%040x", seed)
}

// ed25519Account is a tx-envelope-auth identity: an address string bound to
// an ed25519 keypair via auth/register_account.
type ed25519Account struct {
	addr string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newAccount(t *testing.T, addr string) ed25519Account {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return ed25519Account{addr: addr, priv: priv, pub: pub}
}

func signedTx(t *testing.T, typ string, value any, signer ed25519Account, nonce string) []byte {
	t.Helper()
	valBytes, err := json.Marshal(value)
	require.NoError(t, err)
	sigMsg := txAuthSignBytes(typ, valBytes, nonce, signer.addr)
	sig := ed25519.Sign(signer.priv, sigMsg)

	env := struct {
		Type   string          `json:"type"`
		Value  json.RawMessage `json:"value"`
		Nonce  string          `json:"nonce"`
		Signer string          `json:"signer"`
		Sig    []byte          `json:"sig"`
	}{typ, valBytes, nonce, signer.addr, sig}

	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func registerAccount(t *testing.T, a *App, acct ed25519Account, now int64) {
	t.Helper()
	tx := signedTx(t, "auth/register_account", codec.AuthRegisterAccountTx{Account: acct.addr, PubKey: acct.pub}, acct, "1")
	res := a.DeliverTx(tx, now)
	require.Zerof(t, res.Code, "register account %s: %s", acct.addr, res.Log)
}

// verifierIdentity pairs the envelope-auth account with the ECDSA keypair
// used to sign claim submissions (the wire digest, independent of the
// tx-envelope auth scheme).
type verifierIdentity struct {
	ed25519Account
	ecdsaPriv *ecdsa.PrivateKey
}

func newVerifier(t *testing.T) verifierIdentity {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(priv.PublicKey).Hex()
	acct := newAccount(t, addr)
	return verifierIdentity{ed25519Account: acct, ecdsaPriv: priv}
}

func stakeAndActivate(t *testing.T, a *App, v verifierIdentity, amount *big.Int, now int64) {
	t.Helper()
	registerAccount(t, a, v.ed25519Account, now)
	tx := signedTx(t, "registry/stake", codec.StakeAsVerifierTx{Verifier: v.addr, Amount: amount.String()}, v.ed25519Account, "2")
	res := a.DeliverTx(tx, now)
	require.Zerof(t, res.Code, "stake %s: %s", v.addr, res.Log)

	activateTx := signedTx(t, "registry/activate", codec.ActivateVerifierTx{Verifier: v.addr}, v.ed25519Account, "3")
	res = a.DeliverTx(activateTx, now)
	require.Zerof(t, res.Code, "activate %s: %s", v.addr, res.Log)
}

func setUpAdminAndVerifiers(t *testing.T, a *App, n int, now int64) (ed25519Account, []verifierIdentity) {
	t.Helper()
	admin := newAccount(t, testAddr(1))
	registerAccount(t, a, admin, now)
	st := a.State()
	st.Registry.Params.Admin = admin.addr
	st.Registry.Params.PermissionedMode = false
	// Fund generously: DistributeRewards refuses to pay out more than the
	// pool holds, and these fixtures finalize sizeable verifiedWh amounts.
	st.Treasury.Fund(new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))

	verifiers := make([]verifierIdentity, n)
	for i := 0; i < n; i++ {
		v := newVerifier(t)
		st.StakeToken.Credit(v.addr, st.Registry.Params.MinStake)
		stakeAndActivate(t, a, v, st.Registry.Params.MinStake, now)
		verifiers[i] = v
	}
	return admin, verifiers
}

func registerProducer(t *testing.T, a *App, owner ed25519Account, now int64) string {
	t.Helper()
	registerAccount(t, a, owner, now)
	tx := signedTx(t, "registry/register_producer", codec.RegisterProducerTx{
		Owner:        owner.addr,
		IdentityHash: "0xfeed",
		MetaHash:     "0xmeta",
		PayoutAddr:   owner.addr,
	}, owner, "2")
	res := a.DeliverTx(tx, now)
	require.Zerof(t, res.Code, "register producer: %s", res.Log)

	for _, ev := range res.Events {
		if ev.Type == "ProducerRegistered" {
			for _, at := range ev.Attributes {
				if at.Key == "producerId" {
					return at.Value
				}
			}
		}
	}
	t.Fatalf("ProducerRegistered event missing producerId")
	return ""
}

// personalSignedClaimHash reproduces wire's unexported personal-message-hash
// convention so tests can sign exactly what wire.RecoverSigner expects.
func personalSignedClaimHash(digest common.Hash) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))
	return crypto.Keccak256Hash([]byte(prefix), digest.Bytes())
}

func claimTxBytes(t *testing.T, st *App, v verifierIdentity, subjectID string, hourID, wh uint64, evidenceRoot string) []byte {
	t.Helper()
	chainID := big.NewInt(st.State().ChainID)
	oracleAddr := wire.OracleAddress("production")

	digest := wire.ClaimDigest(chainID, oracleAddr, common.HexToHash(subjectID), hourID, wh, common.HexToHash(evidenceRoot))
	signedHash := personalSignedClaimHash(digest)
	sig, err := crypto.Sign(signedHash.Bytes(), v.ecdsaPriv)
	require.NoError(t, err)
	sig[64] += 27 // wire.RecoverSigner expects the 27/28 recovery-id convention

	msg := codec.SubmitClaimTx{
		Oracle:       "production",
		SubjectID:    subjectID,
		HourID:       hourID,
		Wh:           wh,
		EvidenceRoot: evidenceRoot,
		Signature:    sig,
	}
	valBytes, _ := json.Marshal(msg)
	env := struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}{"oracle/submit", valBytes}
	b, _ := json.Marshal(env)
	return b
}

func finalizeTxBytes(subjectID string, hourID uint64) []byte {
	msg := codec.FinalizeClaimTx{Oracle: "production", SubjectID: subjectID, HourID: hourID}
	valBytes, _ := json.Marshal(msg)
	env := struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}{"oracle/finalize", valBytes}
	b, _ := json.Marshal(env)
	return b
}

func TestApp_HappyPath_FinalizesAndMintsCredit(t *testing.T) {
	a := newTestApp(t)
	now := int64(1000)
	_, verifiers := setUpAdminAndVerifiers(t, a, 3, now)
	owner := newAccount(t, testAddr(2))
	producerID := registerProducer(t, a, owner, now)

	for i, v := range verifiers {
		tx := claimTxBytes(t, a, v, producerID, 500, 4000, "0xaaaa")
		res := a.DeliverTx(tx, now)
		require.Zerof(t, res.Code, "submit claim %d: %s", i, res.Log)
	}

	st := a.State()
	claimWindow := st.Registry.Params.ClaimWindowSeconds
	res := a.DeliverTx(finalizeTxBytes(producerID, 500), now+claimWindow+1)
	require.Zerof(t, res.Code, "finalize: %s", res.Log)

	st = a.State()
	producer := st.Registry.Producers[producerID]
	require.Equal(t, 0, st.CreditToken.Balance(producer.PayoutAddr, 500).Cmp(big.NewInt(4000)),
		"expected 4000 HCN minted to payout addr, got %s", st.CreditToken.Balance(producer.PayoutAddr, 500))
	for _, v := range verifiers {
		// v.addr is crypto.PubkeyToAddress(...).Hex(), already in the
		// canonical checksummed form the state package keys its maps by.
		require.NotNilf(t, st.Treasury.PendingRewards[v.addr], "expected verifier %s to have a pending reward", v.addr)
	}
}

func TestApp_DisputedClaim_ThenForceFinalize(t *testing.T) {
	a := newTestApp(t)
	now := int64(1000)
	admin, verifiers := setUpAdminAndVerifiers(t, a, 3, now)
	owner := newAccount(t, testAddr(3))
	producerID := registerProducer(t, a, owner, now)

	values := []uint64{1000, 2000, 3000}
	for i, v := range verifiers {
		tx := claimTxBytes(t, a, v, producerID, 600, values[i], "0xaaaa")
		res := a.DeliverTx(tx, now)
		require.Zerof(t, res.Code, "submit claim %d: %s", i, res.Log)
	}

	st := a.State()
	deadline := now + st.Registry.Params.ClaimWindowSeconds + 1
	res := a.DeliverTx(finalizeTxBytes(producerID, 600), deadline)
	require.Zerof(t, res.Code, "finalize: %s", res.Log)

	foundDisputed := false
	for _, ev := range res.Events {
		if ev.Type == "ClaimDisputed" {
			foundDisputed = true
		}
	}
	require.True(t, foundDisputed, "expected ClaimDisputed event, got %#v", res.Events)

	forceTx := signedTx(t, "oracle/force_finalize", codec.ForceFinalizeClaimTx{
		Oracle: "production", SubjectID: producerID, HourID: 600, Wh: 1000, EvidenceRoot: "0xaaaa",
	}, admin, "2")
	res = a.DeliverTx(forceTx, deadline)
	require.Zerof(t, res.Code, "force finalize: %s", res.Log)
}

func TestApp_RejectsAdminOpsFromWrongSigner(t *testing.T) {
	a := newTestApp(t)
	now := int64(1000)
	setUpAdminAndVerifiers(t, a, 1, now)

	impostor := newAccount(t, testAddr(99))
	registerAccount(t, a, impostor, now)

	tx := signedTx(t, "registry/allowlist", codec.AllowlistVerifierTx{Verifier: testAddr(100), Allowed: true}, impostor, "2")
	res := a.DeliverTx(tx, now)
	require.NotZero(t, res.Code, "expected allowlist from a non-admin signer to be rejected")
}

func TestApp_DeliverTx_RejectsMalformedJSON(t *testing.T) {
	a := newTestApp(t)
	res := a.deliverTx([]byte("{not json"), 1000)
	require.NotZero(t, res.Code, "expected malformed tx to fail")
}

func TestApp_DeliverTx_RejectsUnknownType(t *testing.T) {
	a := newTestApp(t)
	res := a.deliverTx([]byte(`{"type":"bogus/thing","value":{}}`), 1000)
	require.NotZero(t, res.Code, "expected unknown tx type to fail")
}

func TestApp_BaselineFinalizeTwiceFails(t *testing.T) {
	a := newTestApp(t)
	now := int64(1000)
	_, verifiers := setUpAdminAndVerifiers(t, a, 1, now)
	owner := newAccount(t, testAddr(4))
	producerID := registerProducer(t, a, owner, now)

	st := a.State()
	st.Registry.Params.BaselineMode = true
	st.Registry.Params.SingleVerifierOverride = verifiers[0].addr

	tx := claimTxBytes(t, a, verifiers[0], producerID, 700, 100, "0xaaaa")
	res := a.DeliverTx(tx, now)
	require.Zerof(t, res.Code, "submit: %s", res.Log)

	tx2 := claimTxBytes(t, a, verifiers[0], producerID, 700, 100, "0xaaaa")
	res2 := a.DeliverTx(tx2, now+1)
	require.NotZero(t, res2.Code, "expected submission onto an already-baseline-finalized bucket to fail")
}

func TestApp_AppHashChangesAfterTreasuryFund(t *testing.T) {
	a := newTestApp(t)
	admin := newAccount(t, testAddr(1))
	registerAccount(t, a, admin, 1000)
	st := a.State()
	st.Registry.Params.Admin = admin.addr

	info1, err := a.Info(nil, nil)
	require.NoError(t, err)

	fundTx := signedTx(t, "treasury/fund", codec.FundTreasuryTx{Amount: "100"}, admin, "2")
	res := a.DeliverTx(fundTx, 1000)
	require.Zerof(t, res.Code, "fund: %s", res.Log)

	a.lastHash = a.st.AppHash()
	info2, err := a.Info(nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, string(info1.LastBlockAppHash), string(info2.LastBlockAppHash),
		"expected AppHash to change after funding the treasury")
}
