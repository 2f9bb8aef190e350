package listings

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/native/custody"
	"floorvault/native/taxcalc"
)

// GetListingType derives a listing's type from its fields and the current
// time. Expired liquid listings report as dutch.
func (e *Engine) GetListingType(listing *Listing) ListingType {
	return listingType(listing, e.now())
}

func listingType(listing *Listing, now uint64) ListingType {
	if listing == nil || listing.Owner == (common.Address{}) {
		return ListingTypeNone
	}
	if listing.Duration < MinLiquidDuration {
		return ListingTypeDutch
	}
	if now > listing.Created+listing.Duration {
		return ListingTypeDutch
	}
	return ListingTypeLiquid
}

// GetListingPrice reports whether the asset can be bought and at what price
// in raw collection token units.
func (e *Engine) GetListingPrice(collection common.Address, id uint256.Int) (bool, *big.Int, error) {
	if e == nil || e.state == nil {
		return false, nil, errNilState
	}
	if e.custody == nil {
		return false, nil, errNilCustody
	}
	if e.loans == nil {
		return false, nil, errNilLoans
	}
	return e.listingPrice(collection, id, e.now())
}

func (e *Engine) listingPrice(collection common.Address, id uint256.Int, now uint64) (bool, *big.Int, error) {
	zero := big.NewInt(0)
	owner, err := e.custody.OwnerOf(collection, id)
	if errors.Is(err, custody.ErrAssetNotFound) {
		return false, zero, nil
	}
	if err != nil {
		return false, nil, err
	}
	if owner != e.custody.VaultAddress() {
		return false, zero, nil
	}
	if _, ok, err := e.loans.Loan(collection, id); err != nil || ok {
		return false, zero, err
	}
	pending, err := e.loans.PendingWithdrawal(collection, id)
	if err != nil {
		return false, nil, err
	}
	if pending != (common.Address{}) {
		return false, zero, nil
	}
	denomination, err := e.custody.Denomination(collection)
	if err != nil {
		return false, nil, err
	}
	floor := taxcalc.FloorUnit(denomination)
	listing, err := e.listing(collection, id)
	if err != nil {
		return false, nil, err
	}
	if listing == nil {
		return true, floor, nil
	}
	if listing.Created > now {
		return false, zero, nil
	}
	return true, priceAt(listing, floor, now), nil
}

func priceAt(listing *Listing, floor *big.Int, now uint64) *big.Int {
	expiry := listing.Created + listing.Duration
	switch {
	case listing.Duration < MinLiquidDuration:
		return dutchPrice(listing.FloorMultiple, floor, now-listing.Created, listing.Duration)
	case now > expiry:
		return dutchPrice(listing.FloorMultiple, floor, now-expiry, LiquidDutchDuration)
	default:
		return scaleFloor(floor, listing.FloorMultiple)
	}
}

// dutchPrice decays linearly from floorMultiple to floor over window.
func dutchPrice(floorMultiple uint64, floor *big.Int, elapsed, window uint64) *big.Int {
	if elapsed >= window || floorMultiple <= MinFloorMultiple {
		return new(big.Int).Set(floor)
	}
	premium := scaleFloor(floor, floorMultiple-MinFloorMultiple)
	decayed := new(big.Int).Mul(premium, new(big.Int).SetUint64(elapsed))
	decayed.Quo(decayed, new(big.Int).SetUint64(window))
	price := new(big.Int).Add(floor, premium)
	return price.Sub(price, decayed)
}

func scaleFloor(floor *big.Int, multiple uint64) *big.Int {
	v := new(big.Int).Mul(floor, new(big.Int).SetUint64(multiple))
	return v.Quo(v, big.NewInt(MinFloorMultiple))
}

// GetListingTaxRequired returns the tax prepaid for one asset under the
// listing's terms, in raw collection token units.
func (e *Engine) GetListingTaxRequired(listing *Listing, collection common.Address) (*big.Int, error) {
	if e == nil || e.custody == nil {
		return nil, errNilCustody
	}
	denomination, err := e.custody.Denomination(collection)
	if err != nil {
		return nil, err
	}
	return e.taxRequired(listing, denomination), nil
}

func (e *Engine) taxRequired(listing *Listing, denomination uint8) *big.Int {
	if listing == nil {
		return big.NewInt(0)
	}
	return taxcalc.Denominate(taxcalc.CalculateTax(listing.FloorMultiple, listing.Duration), denomination)
}

// resolveListingTax splits the prepaid tax into the fee earned so far and the
// refund of the unexpired remainder.
func (e *Engine) resolveListingTax(listing *Listing, denomination uint8, now uint64) (*big.Int, *big.Int) {
	fees, refund := big.NewInt(0), big.NewInt(0)
	if listing == nil || listing.Owner == (common.Address{}) || listing.Liquidation || listing.Duration == 0 {
		return fees, refund
	}
	paid := e.taxRequired(listing, denomination)
	if paid.Sign() == 0 {
		return fees, refund
	}
	if expiry := listing.Created + listing.Duration; now < expiry {
		var elapsed uint64
		if now > listing.Created {
			elapsed = now - listing.Created
		}
		refund.Mul(paid, new(big.Int).SetUint64(listing.Duration-elapsed))
		refund.Quo(refund, new(big.Int).SetUint64(listing.Duration))
	}
	if paid.Cmp(refund) > 0 {
		fees.Sub(paid, refund)
	}
	return fees, refund
}

// settleListingTax resolves the listing's tax and pays it out: fees to the
// sink, the refund to the owner's escrow.
func (e *Engine) settleListingTax(collection common.Address, id uint256.Int, listing *Listing, denomination uint8, now uint64) error {
	fees, refund := e.resolveListingTax(listing, denomination, now)
	if fees.Sign() > 0 {
		if err := e.depositFees(collection, fees); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingFeeCaptured{Collection: collection, TokenID: id, Fee: new(big.Int).Set(fees)})
	}
	if refund.Sign() > 0 {
		return e.escrow.Credit(listing.Owner, collection, refund)
	}
	return nil
}

// GetListing returns the explicit listing for an asset, if any.
func (e *Engine) GetListing(collection common.Address, id uint256.Int) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	listing, err := e.listing(collection, id)
	if err != nil {
		return nil, false, err
	}
	return listing, listing != nil, nil
}

// IsListed reports whether the asset has an explicit listing.
func (e *Engine) IsListed(collection common.Address, id uint256.Int) (bool, error) {
	_, ok, err := e.GetListing(collection, id)
	return ok, err
}

// ListingCount returns the number of explicit listings for the collection.
func (e *Engine) ListingCount(collection common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ListingCount(collection)
}

// ListedAsset pairs a token id with its listing.
type ListedAsset struct {
	TokenID uint256.Int
	Listing Listing
}

// Listings enumerates the collection's explicit listings in token id order.
func (e *Engine) Listings(collection common.Address) ([]ListedAsset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []ListedAsset
	err := e.state.IterateListings(collection, func(id uint256.Int, listing *Listing) bool {
		if listing != nil && listing.Owner != (common.Address{}) {
			out = append(out, ListedAsset{TokenID: id, Listing: *listing})
		}
		return true
	})
	return out, err
}
