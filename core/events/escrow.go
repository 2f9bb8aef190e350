package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/types"
)

const (
	TypeEscrowDeposit    = "escrow.deposit"
	TypeEscrowWithdrawal = "escrow.withdrawal"
	TypeFeesDeposited    = "fees.deposited"
)

type EscrowDeposit struct {
	Collection common.Address
	Account    common.Address
	Amount     *big.Int
	Balance    *big.Int
}

func (EscrowDeposit) EventType() string { return TypeEscrowDeposit }

func (e EscrowDeposit) Event() *types.Event {
	return &types.Event{Type: TypeEscrowDeposit, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"account":    formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"balance":    formatAmount(e.Balance),
	}}
}

type EscrowWithdrawal struct {
	Collection common.Address
	Account    common.Address
	Amount     *big.Int
	Balance    *big.Int
}

func (EscrowWithdrawal) EventType() string { return TypeEscrowWithdrawal }

func (e EscrowWithdrawal) Event() *types.Event {
	return &types.Event{Type: TypeEscrowWithdrawal, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"account":    formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"balance":    formatAmount(e.Balance),
	}}
}

// FeesDeposited records protocol revenue handed to the fee sink.
type FeesDeposited struct {
	Collection common.Address
	From       common.Address
	Native     *big.Int
	Token      *big.Int
}

func (FeesDeposited) EventType() string { return TypeFeesDeposited }

func (e FeesDeposited) Event() *types.Event {
	return &types.Event{Type: TypeFeesDeposited, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"from":       formatAddress(e.From),
		"native":     formatAmount(e.Native),
		"token":      formatAmount(e.Token),
	}}
}
