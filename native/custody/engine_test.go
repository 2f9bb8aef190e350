package custody_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"floorvault/core/events"
	"floorvault/core/market/markettest"
	nativecommon "floorvault/native/common"
	"floorvault/native/custody"
	"floorvault/native/listings"
	"floorvault/native/taxcalc"
)

var (
	collection = markettest.Collection
	alice      = markettest.Alice
	bob        = markettest.Bob
)

func TestRegisterCollection(t *testing.T) {
	h := markettest.New(t)
	other := common.HexToAddress("0xc011ec7100000000000000000000000000000002")

	if err := h.Market.Custody.RegisterCollection(collection, 0); !errors.Is(err, custody.ErrCollectionExists) {
		t.Fatalf("duplicate registration: %v", err)
	}
	if err := h.Market.Custody.RegisterCollection(other, custody.MaxDenomination+1); !errors.Is(err, custody.ErrInvalidDenomination) {
		t.Fatalf("denomination: %v", err)
	}
	if err := h.Market.Custody.RegisterCollection(other, 3); err != nil {
		t.Fatalf("register: %v", err)
	}
	ok, err := h.Market.Custody.IsCollectionInitialized(other)
	if err != nil || !ok {
		t.Fatalf("initialized: %v %v", ok, err)
	}
	denomination, err := h.Market.Custody.Denomination(other)
	if err != nil || denomination != 3 {
		t.Fatalf("denomination %d %v", denomination, err)
	}
	if _, err := h.Market.Custody.Denomination(common.HexToAddress("0x01")); !errors.Is(err, custody.ErrCollectionNotInitialized) {
		t.Fatalf("unknown collection: %v", err)
	}
}

func TestDepositMintsFloorUnits(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1, 2, 3)

	if err := h.Market.Custody.Deposit(alice, collection, markettest.IDs(1, 2), bob); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := h.Balance(bob); got.Cmp(taxcalc.FloorUnits(2, 0)) != 0 {
		t.Fatalf("bob balance %s", got)
	}
	vaulted, _ := h.Market.Custody.Vaulted(collection)
	if vaulted != 2 {
		t.Fatalf("vaulted %d", vaulted)
	}
	if err := h.Market.Custody.Deposit(bob, collection, markettest.IDs(3), bob); !errors.Is(err, custody.ErrAssetNotOwned) {
		t.Fatalf("foreign deposit: %v", err)
	}
	if err := h.Market.Custody.Deposit(alice, collection, nil, alice); !errors.Is(err, custody.ErrNoTokenIDs) {
		t.Fatalf("empty deposit: %v", err)
	}
	h.CheckSupply(0)

	h.Commit()
	var supply int
	for _, evt := range h.Events.Events {
		if evt.EventType() == events.TypeTokenSupply {
			supply++
		}
	}
	if supply != 1 {
		t.Fatalf("supply events %d in %v", supply, h.Events.Types())
	}
}

func TestDepositDenominatedCollection(t *testing.T) {
	h := markettest.New(t)
	other := common.HexToAddress("0xc011ec7100000000000000000000000000000003")
	if err := h.Market.Custody.RegisterCollection(other, 4); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := h.Market.Custody.IssueAsset(other, markettest.ID(1), alice); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := h.Market.Custody.Deposit(alice, other, markettest.IDs(1), alice); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	bal, err := h.Market.Custody.BalanceOf(other, alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	want := new(big.Int).Mul(taxcalc.WAD, big.NewInt(10_000))
	if bal.Cmp(want) != 0 {
		t.Fatalf("balance %s want %s", bal, want)
	}
}

func TestRedeem(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1, 2)
	if err := h.Market.Custody.Deposit(alice, collection, markettest.IDs(1), alice); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.Market.Custody.Redeem(bob, collection, markettest.IDs(1), bob); !errors.Is(err, custody.ErrInsufficientBalance) {
		t.Fatalf("unfunded redeem: %v", err)
	}
	if err := h.Market.Custody.Redeem(alice, collection, markettest.IDs(1), common.Address{}); !errors.Is(err, custody.ErrZeroRecipient) {
		t.Fatalf("zero recipient: %v", err)
	}
	if err := h.Market.Custody.Redeem(alice, collection, markettest.IDs(1), bob); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if h.Owner(1) != bob {
		t.Fatalf("asset not released")
	}
	if h.Balance(alice).Sign() != 0 {
		t.Fatalf("floor unit not burned")
	}
	h.CheckSupply(0)
}

func TestRedeemListedAssetRejected(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	h.Fund(alice, 1)
	batch := []listings.CreateListing{{Collection: collection, TokenIDs: markettest.IDs(1), Owner: alice, Duration: 7 * 86400, FloorMultiple: 120}}
	if err := h.Market.Listings.CreateListings(alice, batch); err != nil {
		t.Fatalf("list: %v", err)
	}
	before := h.Balance(alice)
	if err := h.Market.Custody.Redeem(alice, collection, markettest.IDs(1), alice); !errors.Is(err, custody.ErrAssetListed) {
		t.Fatalf("redeem listed: %v", err)
	}
	if h.Balance(alice).Cmp(before) != 0 {
		t.Fatalf("burn survived rejected redeem")
	}
}

func TestWithdrawAssetRequiresOperator(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	if err := h.Market.Custody.Deposit(alice, collection, markettest.IDs(1), alice); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := h.Market.Custody.WithdrawAsset(alice, collection, markettest.ID(1), alice)
	if !errors.Is(err, custody.ErrNotOperator) || !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("non operator: %v", err)
	}
	if err := h.Market.Custody.WithdrawAsset(markettest.Listings, collection, markettest.ID(1), bob); err != nil {
		t.Fatalf("operator withdraw: %v", err)
	}
	if err := h.Market.Custody.WithdrawAsset(markettest.Listings, collection, markettest.ID(1), bob); !errors.Is(err, custody.ErrAssetNotVaulted) {
		t.Fatalf("double withdraw: %v", err)
	}
}

func TestTransferAndBurn(t *testing.T) {
	h := markettest.New(t)
	h.Fund(alice, 2)
	amount := taxcalc.FloorUnit(0)

	if err := h.Market.Custody.Transfer(collection, alice, bob, amount); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := h.Market.Custody.Transfer(collection, bob, alice, new(big.Int).Mul(amount, big.NewInt(2))); !errors.Is(err, custody.ErrInsufficientBalance) {
		t.Fatalf("overdraw: %v", err)
	}
	if err := h.Market.Custody.Transfer(collection, alice, bob, big.NewInt(-1)); !errors.Is(err, custody.ErrInvalidAmount) {
		t.Fatalf("negative: %v", err)
	}
	if err := h.Market.Custody.Burn(collection, bob, amount); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := h.Market.Custody.TotalSupply(collection)
	if supply.Cmp(amount) != 0 {
		t.Fatalf("supply %s", supply)
	}
}

func TestPausedCustodyRejectsDeposits(t *testing.T) {
	h := markettest.New(t)
	h.Issue(alice, 1)
	h.Pauses["custody"] = true
	if err := h.Market.Custody.Deposit(alice, collection, markettest.IDs(1), alice); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}
