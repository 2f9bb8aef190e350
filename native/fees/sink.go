package fees

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/events"
)

var (
	errNilState  = errors.New("fee sink: state not configured")
	errNilTokens = errors.New("fee sink: token ledger not configured")
	// ErrInvalidAmount is returned for negative fee amounts.
	ErrInvalidAmount = errors.New("fee sink: fee amounts must not be negative")
)

// Accrual aggregates the fees collected for a collection.
type Accrual struct {
	Native *big.Int
	Token  *big.Int
}

// Clone returns a copy of the accrual with duplicated big.Int values.
func (a *Accrual) Clone() *Accrual {
	clone := &Accrual{Native: big.NewInt(0), Token: big.NewInt(0)}
	if a == nil {
		return clone
	}
	if a.Native != nil {
		clone.Native.Set(a.Native)
	}
	if a.Token != nil {
		clone.Token.Set(a.Token)
	}
	return clone
}

type engineState interface {
	FeeAccrual(collection common.Address) (*Accrual, error)
	PutFeeAccrual(collection common.Address, accrual *Accrual) error
}

// TokenLedger moves collection tokens into the sink's account.
type TokenLedger interface {
	Transfer(collection, from, to common.Address, amount *big.Int) error
}

// Sink receives protocol revenue: captured listing tax, unlock interest and
// leftover liquidation collateral.
type Sink struct {
	state   engineState
	tokens  TokenLedger
	emitter events.Emitter
	address common.Address
}

// NewSink constructs a sink that holds collected tokens at address.
func NewSink(address common.Address) *Sink {
	return &Sink{address: address, emitter: events.NoopEmitter{}}
}

func (s *Sink) SetState(state engineState) { s.state = state }

func (s *Sink) SetTokens(tokens TokenLedger) { s.tokens = tokens }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (s *Sink) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// Address returns the account collecting token fees.
func (s *Sink) Address() common.Address { return s.address }

// DepositFees pulls tokenAmount of the collection token from the sender and
// records both amounts against the collection. Native amounts are booked
// only; settlement of the native leg belongs to the pool implementation.
func (s *Sink) DepositFees(from, collection common.Address, nativeAmount, tokenAmount *big.Int) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if s.tokens == nil {
		return errNilTokens
	}
	native := nonNil(nativeAmount)
	token := nonNil(tokenAmount)
	if native.Sign() < 0 || token.Sign() < 0 {
		return ErrInvalidAmount
	}
	if native.Sign() == 0 && token.Sign() == 0 {
		return nil
	}
	if err := s.tokens.Transfer(collection, from, s.address, token); err != nil {
		return err
	}
	accrual, err := s.Accrued(collection)
	if err != nil {
		return err
	}
	accrual.Native.Add(accrual.Native, native)
	accrual.Token.Add(accrual.Token, token)
	if err := s.state.PutFeeAccrual(collection, accrual); err != nil {
		return err
	}
	s.emitter.Emit(events.FeesDeposited{
		Collection: collection,
		From:       from,
		Native:     new(big.Int).Set(native),
		Token:      new(big.Int).Set(token),
	})
	return nil
}

// Accrued returns the fees collected for the collection so far.
func (s *Sink) Accrued(collection common.Address) (*Accrual, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	accrual, err := s.state.FeeAccrual(collection)
	if err != nil {
		return nil, err
	}
	return accrual.Clone(), nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
