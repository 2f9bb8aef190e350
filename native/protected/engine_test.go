package protected_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/market/markettest"
	nativecommon "floorvault/native/common"
	"floorvault/native/custody"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/native/taxcalc"
)

var (
	collection = markettest.Collection
	alice      = markettest.Alice
	bob        = markettest.Bob
)

func open(t *testing.T, h *markettest.Harness, owner common.Address, tokenTaken *big.Int, ns ...uint64) {
	t.Helper()
	batch := []protected.CreateListing{{
		Collection: collection,
		TokenIDs:   markettest.IDs(ns...),
		Owner:      owner,
		TokenTaken: tokenTaken,
	}}
	if err := h.Market.Protected.CreateListings(owner, batch); err != nil {
		t.Fatalf("create protected listing: %v", err)
	}
}

func health(t *testing.T, h *markettest.Harness, n uint64) *big.Int {
	t.Helper()
	v, err := h.Market.Protected.GetProtectedListingHealth(collection, markettest.ID(n))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	return v
}

func TestCreateListingsMintsPrincipal(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(1, 2), 1)

	if got := h.Balance(alice); got.Cmp(markettest.Floor(1, 2)) != 0 {
		t.Fatalf("alice balance %s", got)
	}
	if got := h.Balance(markettest.Protected); got.Cmp(markettest.Floor(1, 2)) != 0 {
		t.Fatalf("reserve %s", got)
	}
	loan, ok, err := h.Market.Protected.Loan(collection, markettest.ID(1))
	if err != nil || !ok {
		t.Fatalf("loan: %v %v", ok, err)
	}
	if loan.Owner != alice || loan.Checkpoint != 0 {
		t.Fatalf("unexpected loan %+v", loan)
	}
	count, rate, err := h.Market.Protected.UtilizationRate(collection)
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if count != 1 || rate.Cmp(taxcalc.WAD) != 0 {
		t.Fatalf("utilization %d %s", count, rate)
	}
	if listed, _ := h.Market.Protected.IsListed(collection, markettest.ID(1)); !listed {
		t.Fatalf("loan asset not reported as listed")
	}
	if got := health(t, h, 1); got.Cmp(markettest.Floor(45, 100)) != 0 {
		t.Fatalf("opening health %s", got)
	}
	h.CheckSupply(0)
}

func TestCreateListingsValidation(t *testing.T) {
	cases := []struct {
		name       string
		owner      common.Address
		tokenTaken *big.Int
		ids        []uint64
		want       error
	}{
		{"zero amount", alice, big.NewInt(0), []uint64{1}, protected.ErrTokenAmountIsZero},
		{"above max", alice, markettest.Floor(96, 100), []uint64{1}, protected.ErrTokenAmountExceedsMax},
		{"zero owner", common.Address{}, markettest.Floor(1, 2), []uint64{1}, protected.ErrOwnerIsZero},
		{"no ids", alice, markettest.Floor(1, 2), nil, protected.ErrNoTokenIDs},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := markettest.New(t)
			h.Issue(alice, 1)
			batch := []protected.CreateListing{{Collection: collection, TokenIDs: markettest.IDs(tc.ids...), Owner: tc.owner, TokenTaken: tc.tokenTaken}}
			if err := h.Market.Protected.CreateListings(alice, batch); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
			if h.Owner(1) != alice {
				t.Fatalf("asset moved")
			}
		})
	}
}

func TestHealthDecreasesOverTime(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(1, 2), 1)

	prev := health(t, h, 1)
	for i := 0; i < 4; i++ {
		h.Advance(30 * markettest.Day)
		next := health(t, h, 1)
		if next.Cmp(prev) >= 0 {
			t.Fatalf("health did not decrease: %s -> %s", prev, next)
		}
		prev = next
	}
	price, err := h.Market.Protected.UnlockPrice(collection, markettest.ID(1))
	if err != nil {
		t.Fatalf("unlock price: %v", err)
	}
	if price.Cmp(markettest.Floor(1, 2)) <= 0 {
		t.Fatalf("no interest accrued: %s", price)
	}
}

func TestAdjustPosition(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(1, 2), 1)
	id := markettest.ID(1)

	if err := h.Market.Protected.AdjustPosition(alice, collection, id, big.NewInt(0)); !errors.Is(err, protected.ErrNoPositionAdjustment) {
		t.Fatalf("zero delta: %v", err)
	}
	if err := h.Market.Protected.AdjustPosition(bob, collection, id, markettest.Floor(1, 10)); !errors.Is(err, protected.ErrCallerNotOwner) {
		t.Fatalf("non owner: %v", err)
	}
	if err := h.Market.Protected.AdjustPosition(alice, collection, id, markettest.Floor(2, 10)); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if got := h.Balance(alice); got.Cmp(markettest.Floor(7, 10)) != 0 {
		t.Fatalf("balance after draw %s", got)
	}
	if err := h.Market.Protected.AdjustPosition(alice, collection, id, markettest.Floor(3, 10)); !errors.Is(err, protected.ErrInsufficientCollateral) {
		t.Fatalf("over draw: %v", err)
	}
	if err := h.Market.Protected.AdjustPosition(alice, collection, id, markettest.Floor(-7, 10)); !errors.Is(err, protected.ErrIncorrectFunctionUse) {
		t.Fatalf("full repay: %v", err)
	}
	if err := h.Market.Protected.AdjustPosition(alice, collection, id, markettest.Floor(-2, 10)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	loan, _, _ := h.Market.Protected.Loan(collection, id)
	if loan.TokenTaken.Cmp(markettest.Floor(1, 2)) != 0 {
		t.Fatalf("token taken %s", loan.TokenTaken)
	}
	h.CheckSupply(0)
}

func TestUnlockWithPendingWithdrawal(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	h.Fund(alice, 2)
	open(t, h, alice, markettest.Floor(1, 2), 1)
	id := markettest.ID(1)

	h.Advance(30 * markettest.Day)
	repay, err := h.Market.Protected.UnlockPrice(collection, id)
	if err != nil {
		t.Fatalf("unlock price: %v", err)
	}
	before := h.Balance(alice)
	if err := h.Market.Protected.UnlockProtectedListing(alice, collection, id, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got := new(big.Int).Sub(before, h.Balance(alice)); got.Cmp(repay) != 0 {
		t.Fatalf("alice paid %s want %s", got, repay)
	}
	interest := new(big.Int).Sub(repay, markettest.Floor(1, 2))
	if got := h.Balance(markettest.FeeSink); got.Cmp(interest) != 0 {
		t.Fatalf("fee sink %s want %s", got, interest)
	}
	if h.Balance(markettest.Protected).Sign() != 0 {
		t.Fatalf("reserve not burned: %s", h.Balance(markettest.Protected))
	}
	if count, _ := h.Market.Protected.ListingCount(collection); count != 0 {
		t.Fatalf("loan count %d", count)
	}
	h.CheckSupply(1)

	if err := h.Market.Custody.Redeem(alice, collection, markettest.IDs(1), alice); !errors.Is(err, custody.ErrAssetListed) {
		t.Fatalf("redeem pending asset: %v", err)
	}
	if ok, _, _ := h.Market.Listings.GetListingPrice(collection, id); ok {
		t.Fatalf("pending asset for sale")
	}
	err = h.Market.Protected.WithdrawProtectedListing(bob, collection, id)
	if !errors.Is(err, protected.ErrCallerNotOwner) || !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("foreign withdraw: %v", err)
	}
	if err := h.Market.Protected.WithdrawProtectedListing(alice, collection, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if h.Owner(1) != alice {
		t.Fatalf("asset not released")
	}
	if err := h.Market.Protected.WithdrawProtectedListing(alice, collection, id); !errors.Is(err, protected.ErrNothingToWithdraw) {
		t.Fatalf("second withdraw: %v", err)
	}
	h.CheckSupply(0)
}

func TestUnlockWithdrawNow(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(1, 2), 1)
	if err := h.Market.Protected.UnlockProtectedListing(alice, collection, markettest.ID(1), true); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if h.Owner(1) != alice {
		t.Fatalf("asset not returned")
	}
	if h.Balance(alice).Sign() != 0 {
		t.Fatalf("principal not burned: %s", h.Balance(alice))
	}
	h.CheckSupply(0)
}

func TestLiquidation(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(9, 10), 1)
	id := markettest.ID(1)

	if err := h.Market.Protected.LiquidateProtectedListing(bob, collection, id); !errors.Is(err, protected.ErrListingStillHasCollateral) {
		t.Fatalf("healthy liquidation: %v", err)
	}

	h.Advance(30 * markettest.Day)
	if health(t, h, 1).Sign() >= 0 {
		t.Fatalf("loan still healthy")
	}
	if err := h.Market.Protected.UnlockProtectedListing(alice, collection, id, true); !errors.Is(err, protected.ErrInsufficientCollateral) {
		t.Fatalf("unlock unhealthy: %v", err)
	}
	if err := h.Market.Protected.LiquidateProtectedListing(bob, collection, id); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	reward := taxcalc.Denominate(protected.KeeperReward, 0)
	if got := h.Balance(bob); got.Cmp(reward) != 0 {
		t.Fatalf("keeper reward %s", got)
	}
	if got := h.Balance(markettest.FeeSink); got.Cmp(markettest.Floor(5, 100)) != 0 {
		t.Fatalf("fee sink share %s", got)
	}
	if _, ok, _ := h.Market.Protected.Loan(collection, id); ok {
		t.Fatalf("loan survived liquidation")
	}

	all, err := h.Market.Listings.Listings(collection)
	if err != nil || len(all) != 1 {
		t.Fatalf("listings %v %v", all, err)
	}
	listing := all[0].Listing
	if listing.Owner != alice || listing.Duration != listings.LiquidationDuration || listing.FloorMultiple != listings.LiquidationFloorMultiple || !listing.Liquidation {
		t.Fatalf("unexpected liquidation listing %+v", listing)
	}
	if got := h.Market.Listings.GetListingType(&listing); got != listings.ListingTypeDutch {
		t.Fatalf("liquidation listing type %s", got)
	}
	ok, price, err := h.Market.Listings.GetListingPrice(collection, id)
	if err != nil || !ok || price.Cmp(markettest.Floor(4, 1)) != 0 {
		t.Fatalf("liquidation price %v %s %v", ok, price, err)
	}
	h.CheckSupply(0)
}

func TestLiquidationListingFillPaysBorrower(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(9, 10), 1)
	h.Advance(30 * markettest.Day)
	if err := h.Market.Protected.LiquidateProtectedListing(bob, collection, markettest.ID(1)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	h.Fund(bob, 3)
	h.Advance(2 * markettest.Day)

	fill := listings.FillListingsParams{Collection: collection, TokenIDsOut: [][]uint256.Int{markettest.IDs(1)}}
	if err := h.Market.Listings.FillListings(bob, fill); err != nil {
		t.Fatalf("fill: %v", err)
	}
	// halfway through the decay window of a 4x listing
	if got := h.Escrow(alice); got.Cmp(markettest.Floor(3, 2)) != 0 {
		t.Fatalf("borrower escrow %s", got)
	}
	if h.Owner(1) != bob {
		t.Fatalf("asset not delivered")
	}
	h.CheckSupply(0)
}

func TestTransferOwnership(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	open(t, h, alice, markettest.Floor(1, 2), 1)
	id := markettest.ID(1)

	if err := h.Market.Protected.TransferOwnership(alice, collection, id, common.Address{}); !errors.Is(err, protected.ErrNewOwnerIsZero) {
		t.Fatalf("zero owner: %v", err)
	}
	if err := h.Market.Protected.TransferOwnership(bob, collection, id, bob); !errors.Is(err, protected.ErrCallerNotOwner) {
		t.Fatalf("non owner: %v", err)
	}
	if err := h.Market.Protected.TransferOwnership(alice, collection, id, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	loan, _, _ := h.Market.Protected.Loan(collection, id)
	if loan.Owner != bob {
		t.Fatalf("owner %s", loan.Owner.Hex())
	}
	if err := h.Market.Protected.UnlockProtectedListing(alice, collection, id, true); !errors.Is(err, protected.ErrCallerNotOwner) {
		t.Fatalf("old owner unlock: %v", err)
	}
}

func TestCheckpointsAdvanceWithTime(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1, 2)
	open(t, h, alice, markettest.Floor(1, 2), 1)

	first, err := h.Market.Protected.CreateCheckpoint(collection)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	again, err := h.Market.Protected.CreateCheckpoint(collection)
	if err != nil || again != first {
		t.Fatalf("same second checkpoint %d != %d (%v)", again, first, err)
	}
	h.Advance(markettest.Day)
	open(t, h, alice, markettest.Floor(1, 2), 2)
	loan, _, _ := h.Market.Protected.Loan(collection, markettest.ID(2))
	if loan.Checkpoint != first+1 {
		t.Fatalf("second loan stamped %d", loan.Checkpoint)
	}
	cp, err := h.Market.Protected.Ledger().Checkpoint(collection, loan.Checkpoint)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if cp.CompoundedFactor.Cmp(taxcalc.WAD) <= 0 {
		t.Fatalf("factor did not grow: %s", cp.CompoundedFactor)
	}
}

func TestPausedProtectedModule(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	h.Pauses["protected"] = true
	batch := []protected.CreateListing{{Collection: collection, TokenIDs: markettest.IDs(1), Owner: alice, TokenTaken: markettest.Floor(1, 2)}}
	if err := h.Market.Protected.CreateListings(alice, batch); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}
