package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/types"
)

const (
	TypeProtectedCreated      = "protected.created"
	TypeProtectedUnlocked     = "protected.unlocked"
	TypeProtectedWithdrawn    = "protected.withdrawn"
	TypeProtectedLiquidated   = "protected.liquidated"
	TypeProtectedDebtAdjusted = "protected.debt_adjusted"
	TypeProtectedTransferred  = "protected.transferred"
)

type ProtectedCreated struct {
	Collection common.Address
	TokenIDs   []uint256.Int
	Owner      common.Address
	TokenTaken *big.Int
	Checkpoint uint64
	Sender     common.Address
}

func (ProtectedCreated) EventType() string { return TypeProtectedCreated }

func (e ProtectedCreated) Event() *types.Event {
	return &types.Event{Type: TypeProtectedCreated, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenIds":   formatTokenIDs(e.TokenIDs),
		"owner":      formatAddress(e.Owner),
		"tokenTaken": formatAmount(e.TokenTaken),
		"checkpoint": formatUint(e.Checkpoint),
		"sender":     formatAddress(e.Sender),
	}}
}

// ProtectedUnlocked carries the full repayment, split into principal and the
// interest routed to the fee sink.
type ProtectedUnlocked struct {
	Collection  common.Address
	TokenID     uint256.Int
	Owner       common.Address
	Repaid      *big.Int
	Interest    *big.Int
	WithdrawNow bool
}

func (ProtectedUnlocked) EventType() string { return TypeProtectedUnlocked }

func (e ProtectedUnlocked) Event() *types.Event {
	attrs := map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"owner":      formatAddress(e.Owner),
		"repaid":     formatAmount(e.Repaid),
		"interest":   formatAmount(e.Interest),
	}
	if e.WithdrawNow {
		attrs["withdrawn"] = "true"
	}
	return &types.Event{Type: TypeProtectedUnlocked, Attributes: attrs}
}

type ProtectedWithdrawn struct {
	Collection common.Address
	TokenID    uint256.Int
	Recipient  common.Address
}

func (ProtectedWithdrawn) EventType() string { return TypeProtectedWithdrawn }

func (e ProtectedWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeProtectedWithdrawn, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"recipient":  formatAddress(e.Recipient),
	}}
}

type ProtectedLiquidated struct {
	Collection   common.Address
	TokenID      uint256.Int
	Owner        common.Address
	Keeper       common.Address
	KeeperReward *big.Int
	FeeSinkShare *big.Int
}

func (ProtectedLiquidated) EventType() string { return TypeProtectedLiquidated }

func (e ProtectedLiquidated) Event() *types.Event {
	return &types.Event{Type: TypeProtectedLiquidated, Attributes: map[string]string{
		"collection":   formatAddress(e.Collection),
		"tokenId":      formatTokenID(e.TokenID),
		"owner":        formatAddress(e.Owner),
		"keeper":       formatAddress(e.Keeper),
		"keeperReward": formatAmount(e.KeeperReward),
		"feeSinkShare": formatAmount(e.FeeSinkShare),
	}}
}

// ProtectedDebtAdjusted reports a signed principal change. Positive deltas are
// draws, negative deltas repayments.
type ProtectedDebtAdjusted struct {
	Collection common.Address
	TokenID    uint256.Int
	Owner      common.Address
	Delta      *big.Int
	TokenTaken *big.Int
}

func (ProtectedDebtAdjusted) EventType() string { return TypeProtectedDebtAdjusted }

func (e ProtectedDebtAdjusted) Event() *types.Event {
	return &types.Event{Type: TypeProtectedDebtAdjusted, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"owner":      formatAddress(e.Owner),
		"delta":      formatAmount(e.Delta),
		"tokenTaken": formatAmount(e.TokenTaken),
	}}
}

type ProtectedTransferred struct {
	Collection common.Address
	TokenID    uint256.Int
	From       common.Address
	To         common.Address
}

func (ProtectedTransferred) EventType() string { return TypeProtectedTransferred }

func (e ProtectedTransferred) Event() *types.Event {
	return &types.Event{Type: TypeProtectedTransferred, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"from":       formatAddress(e.From),
		"to":         formatAddress(e.To),
	}}
}
