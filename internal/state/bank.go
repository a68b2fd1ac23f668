package state

import (
	"math/big"

	"github.com/wattverify/chain/internal/errtypes"
)

// StakeToken is a minimal internal ledger standing in for the external
// fungible stake-token contract the core consumes via transferFrom/transfer:
// an address-keyed balance map with Credit/Debit, scaled to *big.Int.
type StakeToken struct {
	Balances map[string]*big.Int `json:"balances"`
}

func NewStakeToken() *StakeToken {
	return &StakeToken{Balances: map[string]*big.Int{}}
}

func (b *StakeToken) Balance(addr string) *big.Int {
	v, ok := b.Balances[normAddr(addr)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (b *StakeToken) Credit(addr string, amount *big.Int) {
	a := normAddr(addr)
	cur, ok := b.Balances[a]
	if !ok {
		cur = big.NewInt(0)
	}
	b.Balances[a] = new(big.Int).Add(cur, amount)
}

func (b *StakeToken) Debit(addr string, amount *big.Int) error {
	a := normAddr(addr)
	cur, ok := b.Balances[a]
	if !ok || cur.Cmp(amount) < 0 {
		return errtypes.ErrInsufficientStakeBalance
	}
	b.Balances[a] = new(big.Int).Sub(cur, amount)
	return nil
}

// CreditToken is a minimal internal ledger standing in for the external
// per-hour fungible credit token (HCN). Balances are keyed by (holder,
// hourId) the way an ERC-1155-style token-id namespace would be; the core
// state machine is the token's sole minter.
type CreditToken struct {
	Balances map[string]map[uint64]*big.Int `json:"balances"`
}

func NewCreditToken() *CreditToken {
	return &CreditToken{Balances: map[string]map[uint64]*big.Int{}}
}

func (c *CreditToken) Balance(addr string, hourID uint64) *big.Int {
	byHour, ok := c.Balances[normAddr(addr)]
	if !ok {
		return big.NewInt(0)
	}
	v, ok := byHour[hourID]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Mint credits wh whole units of token-id hourId to addr. This is the
// sole minting path: every finalized production bucket mints verifiedWh
// to the producer's payout address.
func (c *CreditToken) Mint(addr string, hourID uint64, wh uint64) {
	a := normAddr(addr)
	byHour, ok := c.Balances[a]
	if !ok {
		byHour = map[uint64]*big.Int{}
		c.Balances[a] = byHour
	}
	cur, ok := byHour[hourID]
	if !ok {
		cur = big.NewInt(0)
	}
	byHour[hourID] = new(big.Int).Add(cur, new(big.Int).SetUint64(wh))
}

// Burn removes wh whole units of token-id hourId from addr (used by the
// retirement oracle's post-finalization effect).
func (c *CreditToken) Burn(addr string, hourID uint64, wh uint64) error {
	a := normAddr(addr)
	byHour, ok := c.Balances[a]
	if !ok {
		return errtypes.ErrInsufficientPoolBalance
	}
	cur, ok := byHour[hourID]
	amount := new(big.Int).SetUint64(wh)
	if !ok || cur.Cmp(amount) < 0 {
		return errtypes.ErrInsufficientPoolBalance
	}
	byHour[hourID] = new(big.Int).Sub(cur, amount)
	return nil
}
