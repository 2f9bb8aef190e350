package market_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"floorvault/core/events"
	"floorvault/core/market"
	"floorvault/core/market/markettest"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/storage"
)

func TestNewRejectsInvalidParams(t *testing.T) {
	_, err := market.New(storage.NewMemDB(), market.Params{})
	require.Error(t, err)

	_, err = market.New(storage.NewMemDB(), market.Params{
		Vault:     markettest.Vault,
		Listings:  markettest.Vault,
		Protected: markettest.Protected,
		FeeSink:   markettest.FeeSink,
	})
	require.Error(t, err)
}

func TestApplyCommitsOrDiscards(t *testing.T) {
	h := markettest.New(t)
	h.Commit()
	h.Events.Events = nil
	ids := h.Issue(markettest.Alice, 1)
	h.Commit()

	boom := errors.New("boom")
	err := h.Market.Apply(func() error {
		if err := h.Market.Custody.Deposit(markettest.Alice, markettest.Collection, ids, markettest.Alice); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, markettest.Alice, h.Owner(1))
	require.Empty(t, h.Events.Events)

	err = h.Market.Apply(func() error {
		return h.Market.Custody.Deposit(markettest.Alice, markettest.Collection, ids, markettest.Alice)
	})
	require.NoError(t, err)
	require.Equal(t, markettest.Vault, h.Owner(1))
	require.Contains(t, h.Events.Types(), events.TypeAssetCustody)
	require.False(t, h.Market.State.Dirty())
}

func TestViewDiscardsWrites(t *testing.T) {
	h := markettest.New(t)
	h.Issue(markettest.Alice, 1)
	h.Commit()

	err := h.Market.View(func() error {
		return h.Market.Custody.Deposit(markettest.Alice, markettest.Collection, markettest.IDs(1), markettest.Alice)
	})
	require.NoError(t, err)
	require.Equal(t, markettest.Alice, h.Owner(1))
}

// A full lifecycle across both engines keeps every vaulted asset backed by
// exactly one floor unit.
func TestSupplyConservedAcrossLifecycle(t *testing.T) {
	h := markettest.New(t)
	alice, bob, carol := markettest.Alice, markettest.Bob, markettest.Carol
	collection := markettest.Collection
	day := uint64(markettest.Day)

	h.Issue(alice, 1, 2, 3)
	h.Issue(bob, 4)
	h.Fund(carol, 5)
	h.Fund(bob, 2)

	require.NoError(t, h.Market.Listings.CreateListings(alice, []listings.CreateListing{
		{Collection: collection, TokenIDs: markettest.IDs(1, 2), Owner: alice, Duration: 14 * day, FloorMultiple: 180},
		{Collection: collection, TokenIDs: markettest.IDs(3), Owner: alice, Duration: 2 * day, FloorMultiple: 300},
	}))
	h.CheckSupply(0)

	require.NoError(t, h.Market.Protected.CreateListings(bob, []protected.CreateListing{
		{Collection: collection, TokenIDs: markettest.IDs(4), Owner: bob, TokenTaken: markettest.Floor(8, 10)},
	}))
	h.CheckSupply(0)

	h.Advance(markettest.Day)
	require.NoError(t, h.Market.Listings.FillListings(carol, listings.FillListingsParams{
		Collection:  collection,
		TokenIDsOut: [][]uint256.Int{markettest.IDs(3)},
	}))
	h.CheckSupply(0)

	require.NoError(t, h.Market.Listings.Reserve(carol, collection, markettest.ID(2), markettest.Floor(1, 4)))
	h.CheckSupply(0)

	require.NoError(t, h.Market.Listings.Relist(bob, listings.CreateListing{
		Collection: collection, TokenIDs: markettest.IDs(1), Owner: bob, Duration: 3 * day, FloorMultiple: 150,
	}, false))
	h.CheckSupply(0)

	h.Advance(60 * markettest.Day)
	health, err := h.Market.Protected.GetProtectedListingHealth(collection, markettest.ID(4))
	require.NoError(t, err)
	if health.Sign() < 0 {
		require.NoError(t, h.Market.Protected.LiquidateProtectedListing(carol, collection, markettest.ID(4)))
		h.CheckSupply(0)
	} else {
		require.NoError(t, h.Market.Protected.UnlockProtectedListing(bob, collection, markettest.ID(4), false))
		h.CheckSupply(1)
		require.NoError(t, h.Market.Protected.WithdrawProtectedListing(bob, collection, markettest.ID(4)))
		h.CheckSupply(0)
	}

	require.NoError(t, h.Market.Listings.FillListings(alice, listings.FillListingsParams{
		Collection:  collection,
		TokenIDsOut: [][]uint256.Int{markettest.IDs(1)},
	}))
	h.CheckSupply(0)
	h.Commit()
}
