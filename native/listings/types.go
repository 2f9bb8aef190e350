package listings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "floorvault/native/common"
	"floorvault/native/escrow"
	"floorvault/native/protected"
)

const moduleName = "listings"

const (
	day = 24 * 60 * 60

	MinFloorMultiple = 100
	MaxFloorMultiple = 1000

	MinDutchDuration  = 1 * day
	MaxDutchDuration  = 7*day - 1
	MinLiquidDuration = 7 * day
	MaxLiquidDuration = 180 * day

	// LiquidDutchDuration is the decay window applied to a liquid listing
	// once it has expired.
	LiquidDutchDuration = 4 * day

	LiquidationDuration      = 4 * day
	LiquidationFloorMultiple = 400
)

// ListingType is derived from a listing's fields and the current time.
type ListingType uint8

const (
	ListingTypeNone ListingType = iota
	ListingTypeDutch
	ListingTypeLiquid
)

func (t ListingType) String() string {
	switch t {
	case ListingTypeDutch:
		return "DUTCH"
	case ListingTypeLiquid:
		return "LIQUID"
	default:
		return "NONE"
	}
}

// Listing is an explicit sale listing for a vaulted asset. A listing with a
// zero owner is equivalent to no listing: the asset sells at floor.
type Listing struct {
	Owner         common.Address
	Created       uint64
	Duration      uint64
	FloorMultiple uint64
	// Liquidation marks listings created from liquidated loans. They carry
	// no prepaid tax.
	Liquidation bool
}

// Clone returns a copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// CreateListing lists every token id with identical parameters.
type CreateListing struct {
	Collection    common.Address
	TokenIDs      []uint256.Int
	Owner         common.Address
	Duration      uint64
	FloorMultiple uint64
}

// ModifyListing changes a liquid listing. Zero fields are left unchanged.
type ModifyListing struct {
	TokenID       uint256.Int
	Duration      uint64
	FloorMultiple uint64
}

// FillListingsParams groups the assets to buy by their listing owner.
type FillListingsParams struct {
	Collection  common.Address
	TokenIDsOut [][]uint256.Int
}

type engineState interface {
	nativecommon.Journal
	escrow.State
	Listing(collection common.Address, id uint256.Int) (*Listing, error)
	PutListing(collection common.Address, id uint256.Int, listing *Listing) error
	DeleteListing(collection common.Address, id uint256.Int) error
	ListingCount(collection common.Address) (uint64, error)
	SetListingCount(collection common.Address, count uint64) error
	IterateListings(collection common.Address, fn func(id uint256.Int, listing *Listing) bool) error
}

// Custody is the vault and collection token surface the engine relies on.
type Custody interface {
	IsCollectionInitialized(collection common.Address) (bool, error)
	Denomination(collection common.Address) (uint8, error)
	VaultAddress() common.Address
	OwnerOf(collection common.Address, id uint256.Int) (common.Address, error)
	Deposit(from, collection common.Address, ids []uint256.Int, recipient common.Address) error
	WithdrawAsset(caller, collection common.Address, id uint256.Int, recipient common.Address) error
	Transfer(collection, from, to common.Address, amount *big.Int) error
	Burn(collection, from common.Address, amount *big.Int) error
}

// FeeSink receives captured listing tax.
type FeeSink interface {
	DepositFees(from, collection common.Address, nativeAmount, tokenAmount *big.Int) error
}

// Loans is the protected listing surface used for checkpoints, availability
// and reservations.
type Loans interface {
	ModuleAddress() common.Address
	CreateCheckpoint(collection common.Address) (uint64, error)
	Loan(collection common.Address, id uint256.Int) (*protected.Loan, bool, error)
	PendingWithdrawal(collection common.Address, id uint256.Int) (common.Address, error)
	CreateListings(caller common.Address, batch []protected.CreateListing) error
	TransferOwnership(caller, collection common.Address, id uint256.Int, newOwner common.Address) error
}
