package custody

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "floorvault/native/common"
)

const moduleName = "custody"

// MaxDenomination bounds the extra decimal shift a collection token may carry.
const MaxDenomination = 9

// Collection is the registration record of a collection and its fungible
// token.
type Collection struct {
	Denomination uint8
	TotalSupply  *big.Int
	// Vaulted counts assets currently held by the vault.
	Vaulted uint64
}

// Clone returns a deep copy of the record.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(c.TotalSupply)
	} else {
		clone.TotalSupply = big.NewInt(0)
	}
	return &clone
}

type engineState interface {
	nativecommon.Journal
	Collection(collection common.Address) (*Collection, error)
	PutCollection(collection common.Address, record *Collection) error
	TokenBalance(collection, account common.Address) (*big.Int, error)
	SetTokenBalance(collection, account common.Address, amount *big.Int) error
	AssetOwner(collection common.Address, id uint256.Int) (common.Address, error)
	SetAssetOwner(collection common.Address, id uint256.Int, owner common.Address) error
}

// ListingView reports whether an asset is committed to a listing or loan and
// therefore cannot be redeemed at floor.
type ListingView interface {
	IsListed(collection common.Address, id uint256.Int) (bool, error)
}
