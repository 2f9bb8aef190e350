package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/events"
)

type balanceKey struct {
	account    common.Address
	collection common.Address
}

type mockState struct {
	balances map[balanceKey]*big.Int
}

func newMockState() *mockState {
	return &mockState{balances: make(map[balanceKey]*big.Int)}
}

func (m *mockState) EscrowBalance(account, collection common.Address) (*big.Int, error) {
	return m.balances[balanceKey{account, collection}], nil
}

func (m *mockState) SetEscrowBalance(account, collection common.Address, amount *big.Int) error {
	m.balances[balanceKey{account, collection}] = new(big.Int).Set(amount)
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

var (
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func TestLedgerCreditDebit(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockState())
	emitter := &captureEmitter{}
	ledger.SetEmitter(emitter)

	if err := ledger.Credit(alice, collection, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Debit(alice, collection, big.NewInt(40)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	bal, err := ledger.Balance(alice, collection)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected 60, got %s", bal)
	}
	if err := ledger.Debit(alice, collection, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	if emitter.events[0].EventType() != events.TypeEscrowDeposit || emitter.events[1].EventType() != events.TypeEscrowWithdrawal {
		t.Fatalf("unexpected event order %+v", emitter.events)
	}
}

func TestLedgerDebitUpTo(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockState())
	if err := ledger.Credit(alice, collection, big.NewInt(30)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	remaining, err := ledger.DebitUpTo(alice, collection, big.NewInt(50))
	if err != nil {
		t.Fatalf("debit up to: %v", err)
	}
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected 20 remaining, got %s", remaining)
	}
	bal, _ := ledger.Balance(alice, collection)
	if bal.Sign() != 0 {
		t.Fatalf("expected empty balance, got %s", bal)
	}
}

func TestLedgerRejectsNegativeAmounts(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockState())
	if err := ledger.Credit(alice, collection, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Debit(alice, collection, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
