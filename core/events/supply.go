package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/types"
)

const (
	// TypeTokenSupply is emitted whenever a collection token's supply changes.
	TypeTokenSupply = "token.supply"
	// TypeTokenTransfer is emitted for collection token balance movements.
	TypeTokenTransfer = "token.transfer"
	// TypeAssetCustody is emitted when an asset enters or leaves the vault.
	TypeAssetCustody = "custody.asset"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"

	CustodyDirectionIn  = "deposit"
	CustodyDirectionOut = "withdraw"
)

// TokenSupply captures a supply delta for a collection token.
type TokenSupply struct {
	Collection common.Address
	Total      *big.Int
	Delta      *big.Int
	Reason     string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{}
	attrs["collection"] = formatAddress(e.Collection)

	total := big.NewInt(0)
	if e.Total != nil {
		total = new(big.Int).Set(e.Total)
	}
	attrs["total"] = total.String()

	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}

	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}

	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}

// TokenTransfer records a wallet to wallet movement of a collection token.
type TokenTransfer struct {
	Collection common.Address
	From       common.Address
	To         common.Address
	Amount     *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransfer, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"from":       formatAddress(e.From),
		"to":         formatAddress(e.To),
		"amount":     formatAmount(e.Amount),
	}}
}

// AssetCustody records assets moving in or out of the vault.
type AssetCustody struct {
	Collection common.Address
	TokenIDs   []uint256.Int
	Account    common.Address
	Direction  string
}

func (AssetCustody) EventType() string { return TypeAssetCustody }

func (e AssetCustody) Event() *types.Event {
	attrs := map[string]string{
		"collection": formatAddress(e.Collection),
		"account":    formatAddress(e.Account),
		"tokenIds":   formatTokenIDs(e.TokenIDs),
	}
	if dir := strings.TrimSpace(e.Direction); dir != "" {
		attrs["direction"] = dir
	}
	return &types.Event{Type: TypeAssetCustody, Attributes: attrs}
}
