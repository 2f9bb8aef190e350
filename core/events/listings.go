package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/types"
)

const (
	TypeListingsCreated     = "listings.created"
	TypeListingsModified    = "listings.modified"
	TypeListingsCancelled   = "listings.cancelled"
	TypeListingFilled       = "listings.filled"
	TypeListingTransferred  = "listings.transferred"
	TypeListingExtended     = "listings.extended"
	TypeListingRepriced     = "listings.repriced"
	TypeListingRelisted     = "listings.relisted"
	TypeListingReserved     = "listings.reserved"
	TypeListingFeeCaptured  = "listings.fee_captured"
	TypeCheckpointCreated   = "checkpoint.created"
	TypeCheckpointRefreshed = "checkpoint.refreshed"
)

// ListingsCreated is emitted once per createListings entry, carrying every
// token id listed with the shared parameters.
type ListingsCreated struct {
	Collection     common.Address
	TokenIDs       []uint256.Int
	Owner          common.Address
	ListingType    string
	Created        uint64
	Duration       uint64
	FloorMultiple  uint64
	TaxRequired    *big.Int
	TokensReceived *big.Int
	Liquidation    bool
	Sender         common.Address
}

func (ListingsCreated) EventType() string { return TypeListingsCreated }

func (e ListingsCreated) Event() *types.Event {
	attrs := map[string]string{
		"collection":     formatAddress(e.Collection),
		"tokenIds":       formatTokenIDs(e.TokenIDs),
		"owner":          formatAddress(e.Owner),
		"listingType":    e.ListingType,
		"created":        formatUint(e.Created),
		"duration":       formatUint(e.Duration),
		"floorMultiple":  formatUint(e.FloorMultiple),
		"taxRequired":    formatAmount(e.TaxRequired),
		"tokensReceived": formatAmount(e.TokensReceived),
		"sender":         formatAddress(e.Sender),
	}
	if e.Liquidation {
		attrs["liquidation"] = "true"
	}
	return &types.Event{Type: TypeListingsCreated, Attributes: attrs}
}

// ListingsModified summarises a modifyListings call after every listing was
// updated and the tax difference settled.
type ListingsModified struct {
	Collection  common.Address
	TokenIDs    []uint256.Int
	Owner       common.Address
	TaxRequired *big.Int
	Refund      *big.Int
}

func (ListingsModified) EventType() string { return TypeListingsModified }

func (e ListingsModified) Event() *types.Event {
	return &types.Event{Type: TypeListingsModified, Attributes: map[string]string{
		"collection":  formatAddress(e.Collection),
		"tokenIds":    formatTokenIDs(e.TokenIDs),
		"owner":       formatAddress(e.Owner),
		"taxRequired": formatAmount(e.TaxRequired),
		"refund":      formatAmount(e.Refund),
	}}
}

type ListingsCancelled struct {
	Collection common.Address
	TokenIDs   []uint256.Int
	Owner      common.Address
	Refund     *big.Int
}

func (ListingsCancelled) EventType() string { return TypeListingsCancelled }

func (e ListingsCancelled) Event() *types.Event {
	return &types.Event{Type: TypeListingsCancelled, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenIds":   formatTokenIDs(e.TokenIDs),
		"owner":      formatAddress(e.Owner),
		"refund":     formatAmount(e.Refund),
	}}
}

// ListingFilled records one asset leaving the vault through fillListings.
// Seller is the zero address for assets bought at floor without a listing.
type ListingFilled struct {
	Collection common.Address
	TokenID    uint256.Int
	Seller     common.Address
	Buyer      common.Address
	Price      *big.Int
}

func (ListingFilled) EventType() string { return TypeListingFilled }

func (e ListingFilled) Event() *types.Event {
	return &types.Event{Type: TypeListingFilled, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"seller":     formatAddress(e.Seller),
		"buyer":      formatAddress(e.Buyer),
		"price":      formatAmount(e.Price),
	}}
}

type ListingTransferred struct {
	Collection common.Address
	TokenID    uint256.Int
	From       common.Address
	To         common.Address
}

func (ListingTransferred) EventType() string { return TypeListingTransferred }

func (e ListingTransferred) Event() *types.Event {
	return &types.Event{Type: TypeListingTransferred, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"from":       formatAddress(e.From),
		"to":         formatAddress(e.To),
	}}
}

type ListingExtended struct {
	Collection  common.Address
	TokenID     uint256.Int
	OldDuration uint64
	NewDuration uint64
}

func (ListingExtended) EventType() string { return TypeListingExtended }

func (e ListingExtended) Event() *types.Event {
	return &types.Event{Type: TypeListingExtended, Attributes: map[string]string{
		"collection":  formatAddress(e.Collection),
		"tokenId":     formatTokenID(e.TokenID),
		"oldDuration": formatUint(e.OldDuration),
		"newDuration": formatUint(e.NewDuration),
	}}
}

type ListingRepriced struct {
	Collection       common.Address
	TokenID          uint256.Int
	OldFloorMultiple uint64
	NewFloorMultiple uint64
}

func (ListingRepriced) EventType() string { return TypeListingRepriced }

func (e ListingRepriced) Event() *types.Event {
	return &types.Event{Type: TypeListingRepriced, Attributes: map[string]string{
		"collection":       formatAddress(e.Collection),
		"tokenId":          formatTokenID(e.TokenID),
		"oldFloorMultiple": formatUint(e.OldFloorMultiple),
		"newFloorMultiple": formatUint(e.NewFloorMultiple),
	}}
}

type ListingRelisted struct {
	Collection    common.Address
	TokenID       uint256.Int
	PreviousOwner common.Address
	Owner         common.Address
	ListingType   string
	Duration      uint64
	FloorMultiple uint64
	Paid          *big.Int
}

func (ListingRelisted) EventType() string { return TypeListingRelisted }

func (e ListingRelisted) Event() *types.Event {
	return &types.Event{Type: TypeListingRelisted, Attributes: map[string]string{
		"collection":    formatAddress(e.Collection),
		"tokenId":       formatTokenID(e.TokenID),
		"previousOwner": formatAddress(e.PreviousOwner),
		"owner":         formatAddress(e.Owner),
		"listingType":   e.ListingType,
		"duration":      formatUint(e.Duration),
		"floorMultiple": formatUint(e.FloorMultiple),
		"paid":          formatAmount(e.Paid),
	}}
}

type ListingReserved struct {
	Collection common.Address
	TokenID    uint256.Int
	Reserver   common.Address
	Collateral *big.Int
	TokenTaken *big.Int
}

func (ListingReserved) EventType() string { return TypeListingReserved }

func (e ListingReserved) Event() *types.Event {
	return &types.Event{Type: TypeListingReserved, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"reserver":   formatAddress(e.Reserver),
		"collateral": formatAmount(e.Collateral),
		"tokenTaken": formatAmount(e.TokenTaken),
	}}
}

// ListingFeeCaptured reports tax retained by the protocol when a listing's
// prepaid tax was resolved.
type ListingFeeCaptured struct {
	Collection common.Address
	TokenID    uint256.Int
	Fee        *big.Int
}

func (ListingFeeCaptured) EventType() string { return TypeListingFeeCaptured }

func (e ListingFeeCaptured) Event() *types.Event {
	return &types.Event{Type: TypeListingFeeCaptured, Attributes: map[string]string{
		"collection": formatAddress(e.Collection),
		"tokenId":    formatTokenID(e.TokenID),
		"fee":        formatAmount(e.Fee),
	}}
}

// CheckpointCreated is emitted when a collection's checkpoint ledger grows or
// its latest entry is refreshed in place.
type CheckpointCreated struct {
	Collection       common.Address
	Index            uint64
	CompoundedFactor *big.Int
	Timestamp        uint64
	Refreshed        bool
}

func (e CheckpointCreated) EventType() string {
	if e.Refreshed {
		return TypeCheckpointRefreshed
	}
	return TypeCheckpointCreated
}

func (e CheckpointCreated) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"collection":       formatAddress(e.Collection),
		"index":            strconv.FormatUint(e.Index, 10),
		"compoundedFactor": formatAmount(e.CompoundedFactor),
		"timestamp":        formatUint(e.Timestamp),
	}}
}
