package common

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

type sliceJournal struct {
	values []int
}

func (j *sliceJournal) Snapshot() int { return len(j.values) }

func (j *sliceJournal) RevertToSnapshot(id int) { j.values = j.values[:id] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "listings"); err != nil {
		t.Fatalf("nil pause view should pass: %v", err)
	}
	if err := Guard(pauseSet{"listings": true}, "listings"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauseSet{"listings": true}, "protected"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var g ReentrancyGuard
	if err := g.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	g.Exit()
	if g.Entered() {
		t.Fatalf("guard still held after exit")
	}
	if err := g.Enter(); err != nil {
		t.Fatalf("re-enter after exit: %v", err)
	}
}

func TestAtomicRevertsNestedScopes(t *testing.T) {
	j := &sliceJournal{}
	j.values = append(j.values, 1)

	err := Atomic(j, func() error {
		j.values = append(j.values, 2)
		return Atomic(j, func() error {
			j.values = append(j.values, 3)
			return errors.New("boom")
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(j.values) != 1 {
		t.Fatalf("expected rollback to one value, got %v", j.values)
	}

	if err := Atomic(j, func() error {
		j.values = append(j.values, 4)
		return nil
	}); err != nil {
		t.Fatalf("atomic: %v", err)
	}
	if len(j.values) != 2 {
		t.Fatalf("expected committed write, got %v", j.values)
	}
}

func TestUnauthorizedErrorMatchesBothClasses(t *testing.T) {
	sentinel := errors.New("caller is not owner")
	err := NewUnauthorized(sentinel, ethcommon.HexToAddress("0x01"), ethcommon.HexToAddress("0x02"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected module sentinel match")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized match")
	}
	var typed *UnauthorizedError
	if !errors.As(err, &typed) || typed.Actual != ethcommon.HexToAddress("0x02") {
		t.Fatalf("expected typed error with actual caller, got %v", err)
	}
}
