package dsc

import (
	"errors"
	"math/big"
	"sync"
	"testing"
)

func TestLedgerGetReturnsCopy(t *testing.T) {
	ledger := NewPositionLedger()
	account := makeAddress(0x20)

	if _, err := ledger.Apply(account, func(p *Position) error {
		p.Collateral[weth] = wei(5)
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	snapshot := ledger.Get(account)
	snapshot.Collateral[weth] = wei(999)
	snapshot.Debt = wei(999)

	if balance := ledger.Get(account).CollateralBalance(weth); balance.Cmp(wei(5)) != 0 {
		t.Fatalf("mutating a snapshot must not affect the ledger, got %s", balance)
	}
	if debt := ledger.Get(account).Debt; debt.Sign() != 0 {
		t.Fatalf("mutating a snapshot must not affect the ledger, got debt %s", debt)
	}
}

func TestLedgerApplyDiscardsOnError(t *testing.T) {
	ledger := NewPositionLedger()
	account := makeAddress(0x21)
	sentinel := errors.New("rollback")

	if _, err := ledger.Apply(account, func(p *Position) error {
		p.Collateral[weth] = wei(10)
		p.Debt = wei(10)
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if !ledger.Get(account).IsZero() {
		t.Fatal("failed apply must leave the position untouched")
	}
}

func TestLedgerConcurrentApplies(t *testing.T) {
	ledger := NewPositionLedger()
	account := makeAddress(0x22)

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := ledger.Apply(account, func(p *Position) error {
				balance := p.CollateralBalance(weth)
				p.Collateral[weth] = new(big.Int).Add(balance, wei(1))
				return nil
			}); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	if balance := ledger.Get(account).CollateralBalance(weth); balance.Cmp(wei(workers)) != 0 {
		t.Fatalf("lost update: want %s, got %s", wei(workers), balance)
	}
}

func TestLedgerApplyPairCrossedOrder(t *testing.T) {
	ledger := NewPositionLedger()
	a := makeAddress(0x23)
	b := makeAddress(0x24)

	transfer := func(from, to *Position) error {
		balance := from.CollateralBalance(weth)
		from.Collateral[weth] = new(big.Int).Sub(balance, wei(1))
		to.Collateral[weth] = new(big.Int).Add(to.CollateralBalance(weth), wei(1))
		return nil
	}

	if _, err := ledger.Apply(a, func(p *Position) error {
		p.Collateral[weth] = wei(100)
		return nil
	}); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if _, err := ledger.Apply(b, func(p *Position) error {
		p.Collateral[weth] = wei(100)
		return nil
	}); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	// Pairs in both orders concurrently; ordered locking must not deadlock.
	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, _, err := ledger.ApplyPair(a, b, transfer); err != nil {
				t.Errorf("apply pair a,b: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, _, err := ledger.ApplyPair(b, a, transfer); err != nil {
				t.Errorf("apply pair b,a: %v", err)
			}
		}
	}()
	wg.Wait()

	total := new(big.Int).Add(
		ledger.Get(a).CollateralBalance(weth),
		ledger.Get(b).CollateralBalance(weth),
	)
	if total.Cmp(wei(200)) != 0 {
		t.Fatalf("transfers must conserve collateral, got total %s", total)
	}
}

func TestLedgerApplyPairSameAccount(t *testing.T) {
	ledger := NewPositionLedger()
	account := makeAddress(0x25)

	pa, pb, err := ledger.ApplyPair(account, account, func(pa, pb *Position) error {
		if pa != pb {
			t.Fatal("same-account pair must share one working copy")
		}
		pa.Collateral[weth] = wei(3)
		return nil
	})
	if err != nil {
		t.Fatalf("apply pair: %v", err)
	}
	if pa.CollateralBalance(weth).Cmp(wei(3)) != 0 || pb.CollateralBalance(weth).Cmp(wei(3)) != 0 {
		t.Fatal("both returned positions must reflect the committed state")
	}
}

func TestLedgerApplyPairDiscardsOnError(t *testing.T) {
	ledger := NewPositionLedger()
	a := makeAddress(0x26)
	b := makeAddress(0x27)
	sentinel := errors.New("rollback")

	if _, _, err := ledger.ApplyPair(a, b, func(pa, pb *Position) error {
		pa.Collateral[weth] = wei(1)
		pb.Debt = wei(1)
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if !ledger.Get(a).IsZero() || !ledger.Get(b).IsZero() {
		t.Fatal("failed pair apply must leave both positions untouched")
	}
}
