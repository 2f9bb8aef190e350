package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/events"
)

var (
	errNilState = errors.New("escrow ledger: state not configured")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("escrow ledger: amount must not be negative")
	// ErrInsufficientBalance is returned when a debit exceeds the credit held.
	ErrInsufficientBalance = errors.New("escrow ledger: insufficient balance")
)

// State stores escrow credit per (account, collection token).
type State interface {
	EscrowBalance(account, collection common.Address) (*big.Int, error)
	SetEscrowBalance(account, collection common.Address, amount *big.Int) error
}

// Ledger tracks credit owed to accounts. Credits are backed by collection
// tokens held in the owning module's wallet; the ledger never moves tokens
// itself.
type Ledger struct {
	state   State
	emitter events.Emitter
}

func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetState(state State) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Balance returns the credit held for account in the collection's token.
func (l *Ledger) Balance(account, collection common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.EscrowBalance(account, collection)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// Credit adds amount to the account's balance. Zero credits are ignored.
func (l *Ledger) Credit(account, collection common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := l.Balance(account, collection)
	if err != nil {
		return err
	}
	bal.Add(bal, amount)
	if err := l.state.SetEscrowBalance(account, collection, bal); err != nil {
		return err
	}
	l.emitter.Emit(events.EscrowDeposit{
		Collection: collection,
		Account:    account,
		Amount:     new(big.Int).Set(amount),
		Balance:    new(big.Int).Set(bal),
	})
	return nil
}

// Debit removes amount from the account's balance.
func (l *Ledger) Debit(account, collection common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := l.Balance(account, collection)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}
	bal.Sub(bal, amount)
	if err := l.state.SetEscrowBalance(account, collection, bal); err != nil {
		return err
	}
	l.emitter.Emit(events.EscrowWithdrawal{
		Collection: collection,
		Account:    account,
		Amount:     new(big.Int).Set(amount),
		Balance:    new(big.Int).Set(bal),
	})
	return nil
}

// DebitUpTo removes as much of amount as the account holds and returns the
// portion that could not be covered.
func (l *Ledger) DebitUpTo(account, collection common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	bal, err := l.Balance(account, collection)
	if err != nil {
		return nil, err
	}
	take := new(big.Int).Set(amount)
	if bal.Cmp(take) < 0 {
		take.Set(bal)
	}
	if err := l.Debit(account, collection, take); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(amount, take), nil
}
