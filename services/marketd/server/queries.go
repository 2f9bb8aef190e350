package server

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"floorvault/native/listings"
	"floorvault/native/protected"
)

var errNoLoan = fmt.Errorf("%w: no loan or pending withdrawal", protected.ErrListingNotFound)

type checkpointView struct {
	Count            uint64 `json:"count"`
	CompoundedFactor Amount `json:"compoundedFactor"`
	Timestamp        uint64 `json:"timestamp"`
}

type collectionView struct {
	Collection      string         `json:"collection"`
	Denomination    uint8          `json:"denomination"`
	FloorUnit       Amount         `json:"floorUnit"`
	Vaulted         uint64         `json:"vaulted"`
	TotalSupply     Amount         `json:"totalSupply"`
	Listings        uint64         `json:"listings"`
	Loans           uint64         `json:"loans"`
	UtilizationRate Amount         `json:"utilizationRate"`
	Checkpoint      checkpointView `json:"checkpoint"`
	FeesAccrued     Amount         `json:"feesAccrued"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", chi.URLParam(r, "collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view collectionView
	err = s.market.View(func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		vaulted, err := s.market.Custody.Vaulted(collection)
		if err != nil {
			return err
		}
		supply, err := s.market.Custody.TotalSupply(collection)
		if err != nil {
			return err
		}
		listed, err := s.market.Listings.ListingCount(collection)
		if err != nil {
			return err
		}
		loans, utilization, err := s.market.Protected.UtilizationRate(collection)
		if err != nil {
			return err
		}
		ledger := s.market.Protected.Ledger()
		count, err := ledger.Count(collection)
		if err != nil {
			return err
		}
		current, err := ledger.Current(collection)
		if err != nil {
			return err
		}
		accrued, err := s.market.Fees.Accrued(collection)
		if err != nil {
			return err
		}
		view = collectionView{
			Collection:      collection.Hex(),
			Denomination:    denomination,
			FloorUnit:       floorUnit(denomination),
			Vaulted:         vaulted,
			TotalSupply:     formatTokens(supply, denomination),
			Listings:        listed,
			Loans:           loans,
			UtilizationRate: formatWad(utilization),
			Checkpoint: checkpointView{
				Count:            count,
				CompoundedFactor: formatWad(current.CompoundedFactor),
				Timestamp:        current.Timestamp,
			},
			FeesAccrued: formatTokens(accrued.Token, denomination),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type listingView struct {
	TokenID       string  `json:"tokenId"`
	Listed        bool    `json:"listed"`
	Type          string  `json:"type"`
	Owner         string  `json:"owner,omitempty"`
	Created       uint64  `json:"created,omitempty"`
	Duration      uint64  `json:"duration,omitempty"`
	FloorMultiple uint64  `json:"floorMultiple,omitempty"`
	Liquidation   bool    `json:"liquidation,omitempty"`
	Available     bool    `json:"available"`
	Price         Amount  `json:"price"`
	TaxRequired   *Amount `json:"taxRequired,omitempty"`
}

func (s *Server) listingView(collection common.Address, id uint256.Int, listing *listings.Listing, denomination uint8) (listingView, error) {
	engine := s.market.Listings
	view := listingView{TokenID: id.Dec(), Type: engine.GetListingType(listing).String()}
	available, price, err := engine.GetListingPrice(collection, id)
	if err != nil {
		return listingView{}, err
	}
	view.Available = available
	view.Price = formatTokens(price, denomination)
	if listing == nil {
		return view, nil
	}
	tax, err := engine.GetListingTaxRequired(listing, collection)
	if err != nil {
		return listingView{}, err
	}
	taxAmount := formatTokens(tax, denomination)
	view.Listed = true
	view.Owner = listing.Owner.Hex()
	view.Created = listing.Created
	view.Duration = listing.Duration
	view.FloorMultiple = listing.FloorMultiple
	view.Liquidation = listing.Liquidation
	view.TaxRequired = &taxAmount
	return view, nil
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", chi.URLParam(r, "collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := []listingView{}
	err = s.market.View(func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		listed, err := s.market.Listings.Listings(collection)
		if err != nil {
			return err
		}
		for i := range listed {
			view, err := s.listingView(collection, listed[i].TokenID, &listed[i].Listing, denomination)
			if err != nil {
				return err
			}
			out = append(out, view)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) pathAsset(r *http.Request) (common.Address, uint256.Int, error) {
	collection, err := parseAddress("collection", chi.URLParam(r, "collection"))
	if err != nil {
		return common.Address{}, uint256.Int{}, err
	}
	id, err := parseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		return common.Address{}, uint256.Int{}, err
	}
	return collection, id, nil
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	collection, id, err := s.pathAsset(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view listingView
	err = s.market.View(func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		listing, _, err := s.market.Listings.GetListing(collection, id)
		if err != nil {
			return err
		}
		view, err = s.listingView(collection, id, listing, denomination)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type loanView struct {
	TokenID           string  `json:"tokenId"`
	Owner             string  `json:"owner,omitempty"`
	TokenTaken        *Amount `json:"tokenTaken,omitempty"`
	Checkpoint        uint64  `json:"checkpoint"`
	Health            *Amount `json:"health,omitempty"`
	UnlockPrice       *Amount `json:"unlockPrice,omitempty"`
	PendingWithdrawal string  `json:"pendingWithdrawal,omitempty"`
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	collection, id, err := s.pathAsset(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := loanView{TokenID: id.Dec()}
	err = s.market.View(func() error {
		engine := s.market.Protected
		pending, err := engine.PendingWithdrawal(collection, id)
		if err != nil {
			return err
		}
		if pending != (common.Address{}) {
			view.PendingWithdrawal = pending.Hex()
		}
		loan, ok, err := engine.Loan(collection, id)
		if err != nil {
			return err
		}
		if !ok {
			if view.PendingWithdrawal == "" {
				return errNoLoan
			}
			return nil
		}
		health, err := engine.GetProtectedListingHealth(collection, id)
		if err != nil {
			return err
		}
		price, err := engine.UnlockPrice(collection, id)
		if err != nil {
			return err
		}
		taken, healthAmount, priceAmount := formatWad(loan.TokenTaken), formatWad(health), formatWad(price)
		view.Owner = loan.Owner.Hex()
		view.TokenTaken = &taken
		view.Checkpoint = loan.Checkpoint
		view.Health = &healthAmount
		view.UnlockPrice = &priceAmount
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type assetView struct {
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
	Vaulted bool   `json:"vaulted"`
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	collection, id, err := s.pathAsset(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view assetView
	err = s.market.View(func() error {
		owner, err := s.market.Custody.OwnerOf(collection, id)
		if err != nil {
			return err
		}
		view = assetView{TokenID: id.Dec(), Owner: owner.Hex(), Vaulted: owner == s.market.Custody.VaultAddress()}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type accountView struct {
	Account string `json:"account"`
	Balance Amount `json:"balance"`
	Escrow  Amount `json:"escrow"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", chi.URLParam(r, "collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view accountView
	err = s.market.View(func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		balance, err := s.market.Custody.BalanceOf(collection, account)
		if err != nil {
			return err
		}
		escrowed, err := s.market.Listings.EscrowBalance(account, collection)
		if err != nil {
			return err
		}
		view = accountView{
			Account: account.Hex(),
			Balance: formatTokens(balance, denomination),
			Escrow:  formatTokens(escrowed, denomination),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
