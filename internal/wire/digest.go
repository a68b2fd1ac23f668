// Package wire implements claim digest construction, domain-separated
// claim-key and value-hash derivation, and ECDSA (secp256k1) recovery of
// the verifier that signed a claim. Signature recovery lives only here; the
// state and app packages use go-ethereum's common (and, for entity ids,
// crypto) packages only for address/hash normalization and hashing.
package wire

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClaimTypeTag domain-separates claim kinds so a digest or claim key valid
// for one kind can never be replayed as another.
type ClaimTypeTag byte

const (
	ClaimTypeProduction  ClaimTypeTag = 0x01
	ClaimTypeConsumption ClaimTypeTag = 0x02
	ClaimTypeRetirement  ClaimTypeTag = 0x03
)

// SignatureLength is the size of a 65-byte recoverable ECDSA signature
// (r || s || v).
const SignatureLength = 65

func uint64To32Bytes(v uint64) [32]byte {
	var out [32]byte
	b := new(big.Int).SetUint64(v).Bytes()
	copy(out[32-len(b):], b)
	return out
}

func uint64To8Bytes(v uint64) [8]byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}

// ClaimKey derives the stable, externally observable claim-key identifier:
// hash(byte tag ‖ address oracle ‖ bytes32 subjectId ‖ uint256 hourId).
func ClaimKey(tag ClaimTypeTag, oracle common.Address, subjectID common.Hash, hourID uint64) common.Hash {
	hourBz := uint64To32Bytes(hourID)
	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, byte(tag))
	buf = append(buf, oracle.Bytes()...)
	buf = append(buf, subjectID.Bytes()...)
	buf = append(buf, hourBz[:]...)
	return crypto.Keccak256Hash(buf)
}

// ValueHash derives hash(uint64 wh ‖ bytes32 evidenceRoot), the key under
// which per-value submission tallies are aggregated within a claim bucket.
func ValueHash(wh uint64, evidenceRoot common.Hash) common.Hash {
	whBz := uint64To8Bytes(wh)
	buf := make([]byte, 0, 8+32)
	buf = append(buf, whBz[:]...)
	buf = append(buf, evidenceRoot.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// ClaimDigest builds the byte string a verifier signs:
// hash(uint256 chainId ‖ address oracle ‖ bytes32 subjectId ‖ uint256 hourId ‖ uint64 wh ‖ bytes32 evidenceRoot).
func ClaimDigest(chainID *big.Int, oracle common.Address, subjectID common.Hash, hourID uint64, wh uint64, evidenceRoot common.Hash) common.Hash {
	var chainBz [32]byte
	if chainID != nil {
		b := chainID.Bytes()
		copy(chainBz[32-len(b):], b)
	}
	hourBz := uint64To32Bytes(hourID)
	whBz := uint64To8Bytes(wh)

	buf := make([]byte, 0, 32+20+32+32+8+32)
	buf = append(buf, chainBz[:]...)
	buf = append(buf, oracle.Bytes()...)
	buf = append(buf, subjectID.Bytes()...)
	buf = append(buf, hourBz[:]...)
	buf = append(buf, whBz[:]...)
	buf = append(buf, evidenceRoot.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// personalSignHash reproduces the substrate's standard personal-message
// prefix convention ("\x19Ethereum Signed Message:\n32" ‖ digest) without
// pulling in the accounts package, which this repo otherwise has no use for.
func personalSignHash(digest common.Hash) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))
	return crypto.Keccak256Hash([]byte(prefix), digest.Bytes())
}

// RecoverSigner recovers the signer address from a 65-byte recoverable
// signature over the claim digest, after applying the personal-message
// prefix. A zero-address result (or a malformed signature) is reported as
// an error — the caller maps that to the InvalidSignature failure.
func RecoverSigner(chainID *big.Int, oracle common.Address, subjectID common.Hash, hourID uint64, wh uint64, evidenceRoot common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("wire: signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	digest := ClaimDigest(chainID, oracle, subjectID, hourID, wh, evidenceRoot)
	signed := personalSignHash(digest)

	// crypto.Ecrecover/SigToPub expect the recovery id in sig[64] to be 0/1;
	// the wire format (and most wallets) use the Ethereum convention of
	// 27/28, so normalize before recovery.
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(signed.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("wire: signature recovery failed: %w", err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, fmt.Errorf("wire: recovered zero address")
	}
	return signer, nil
}

// OracleAddress derives a deterministic pseudo-address for one of this
// chain's built-in oracle instances (production / consumption / retirement),
// used as the "oracle" field in claim-key and digest derivation so claims
// signed for one oracle kind can never be replayed against another.
func OracleAddress(label string) common.Address {
	h := crypto.Keccak256Hash([]byte("creditchain/oracle/" + label))
	return common.BytesToAddress(h.Bytes()[12:])
}
