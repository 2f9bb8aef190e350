package fees

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type mockState struct {
	accruals map[common.Address]*Accrual
}

func (m *mockState) FeeAccrual(collection common.Address) (*Accrual, error) {
	return m.accruals[collection], nil
}

func (m *mockState) PutFeeAccrual(collection common.Address, accrual *Accrual) error {
	m.accruals[collection] = accrual.Clone()
	return nil
}

type transfer struct {
	from, to common.Address
	amount   *big.Int
}

type mockTokens struct {
	transfers []transfer
	fail      error
}

func (m *mockTokens) Transfer(_, from, to common.Address, amount *big.Int) error {
	if m.fail != nil {
		return m.fail
	}
	m.transfers = append(m.transfers, transfer{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

var (
	sinkAddr   = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	payer      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func TestDepositFeesAccumulates(t *testing.T) {
	sink := NewSink(sinkAddr)
	state := &mockState{accruals: map[common.Address]*Accrual{}}
	tokens := &mockTokens{}
	sink.SetState(state)
	sink.SetTokens(tokens)

	if err := sink.DepositFees(payer, collection, nil, big.NewInt(7)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := sink.DepositFees(payer, collection, big.NewInt(2), big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	accrual, err := sink.Accrued(collection)
	if err != nil {
		t.Fatalf("accrued: %v", err)
	}
	if accrual.Token.Cmp(big.NewInt(12)) != 0 || accrual.Native.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("unexpected accrual %+v", accrual)
	}
	if len(tokens.transfers) != 2 || tokens.transfers[0].to != sinkAddr {
		t.Fatalf("unexpected transfers %+v", tokens.transfers)
	}
}

func TestDepositFeesPropagatesTransferFailure(t *testing.T) {
	sink := NewSink(sinkAddr)
	state := &mockState{accruals: map[common.Address]*Accrual{}}
	boom := errors.New("boom")
	sink.SetState(state)
	sink.SetTokens(&mockTokens{fail: boom})
	if err := sink.DepositFees(payer, collection, nil, big.NewInt(1)); !errors.Is(err, boom) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if len(state.accruals) != 0 {
		t.Fatalf("failed deposit must not book fees")
	}
	if err := sink.DepositFees(payer, collection, big.NewInt(-1), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
