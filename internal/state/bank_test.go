package state

import (
	"math/big"
	"testing"
)

func TestStakeToken_CreditDebitRoundTrip(t *testing.T) {
	b := NewStakeToken()
	addr := addrN(1)
	b.Credit(addr, big.NewInt(100))
	if b.Balance(addr).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance 100, got %s", b.Balance(addr))
	}
	if err := b.Debit(addr, big.NewInt(40)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if b.Balance(addr).Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected balance 60, got %s", b.Balance(addr))
	}
}

func TestStakeToken_DebitInsufficientFails(t *testing.T) {
	b := NewStakeToken()
	addr := addrN(1)
	b.Credit(addr, big.NewInt(10))
	if err := b.Debit(addr, big.NewInt(11)); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestCreditToken_MintBurnPerHourNamespace(t *testing.T) {
	c := NewCreditToken()
	addr := addrN(1)
	c.Mint(addr, 100, 500)
	c.Mint(addr, 101, 1)
	if c.Balance(addr, 100).Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected hour 100 balance 500, got %s", c.Balance(addr, 100))
	}
	if c.Balance(addr, 101).Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected hour 101 balance 1, got %s", c.Balance(addr, 101))
	}

	if err := c.Burn(addr, 100, 500); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if c.Balance(addr, 100).Sign() != 0 {
		t.Fatalf("expected hour 100 balance 0 after burn, got %s", c.Balance(addr, 100))
	}
	if c.Balance(addr, 101).Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected hour 101 balance unaffected by hour 100 burn, got %s", c.Balance(addr, 101))
	}
}

func TestCreditToken_BurnInsufficientFails(t *testing.T) {
	c := NewCreditToken()
	addr := addrN(1)
	if err := c.Burn(addr, 100, 1); err == nil {
		t.Fatalf("expected burn against empty balance to fail")
	}
	c.Mint(addr, 100, 5)
	if err := c.Burn(addr, 100, 6); err == nil {
		t.Fatalf("expected over-burn to fail")
	}
}
