package server

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/native/listings"
)

type listingParams struct {
	Collection    string   `json:"collection"`
	TokenIDs      []string `json:"tokenIds"`
	Owner         string   `json:"owner,omitempty"`
	Duration      uint64   `json:"duration"`
	FloorMultiple uint64   `json:"floorMultiple"`
}

func (p listingParams) decode(caller common.Address) (listings.CreateListing, error) {
	collection, err := parseAddress("collection", p.Collection)
	if err != nil {
		return listings.CreateListing{}, err
	}
	owner, err := parseOptionalAddress("owner", p.Owner, caller)
	if err != nil {
		return listings.CreateListing{}, err
	}
	ids, err := parseTokenIDs(p.TokenIDs)
	if err != nil {
		return listings.CreateListing{}, err
	}
	return listings.CreateListing{
		Collection:    collection,
		TokenIDs:      ids,
		Owner:         owner,
		Duration:      p.Duration,
		FloorMultiple: p.FloorMultiple,
	}, nil
}

type createListingsRequest struct {
	Listings []listingParams `json:"listings"`
}

func (s *Server) handleCreateListings(w http.ResponseWriter, r *http.Request) {
	var req createListingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	batch := make([]listings.CreateListing, 0, len(req.Listings))
	for _, p := range req.Listings {
		params, err := p.decode(caller)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		batch = append(batch, params)
	}
	if len(batch) == 0 {
		s.writeError(w, r, badRequest("listings: empty batch"))
		return
	}
	err := s.apply(r, "listings", "create", batch[0].Collection, func() error {
		return s.market.Listings.CreateListings(caller, batch)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type modifyChange struct {
	TokenID       string `json:"tokenId"`
	Duration      uint64 `json:"duration,omitempty"`
	FloorMultiple uint64 `json:"floorMultiple,omitempty"`
}

type modifyListingsRequest struct {
	Collection    string         `json:"collection"`
	Changes       []modifyChange `json:"changes"`
	PayWithEscrow bool           `json:"payWithEscrow"`
}

type modifyListingsResponse struct {
	TaxRequired Amount `json:"taxRequired"`
	Refund      Amount `json:"refund"`
}

func (s *Server) handleModifyListings(w http.ResponseWriter, r *http.Request) {
	var req modifyListingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changes := make([]listings.ModifyListing, 0, len(req.Changes))
	for _, c := range req.Changes {
		id, err := parseTokenID(c.TokenID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		changes = append(changes, listings.ModifyListing{TokenID: id, Duration: c.Duration, FloorMultiple: c.FloorMultiple})
	}
	caller := callerFrom(r.Context())
	var (
		tax, refund  *big.Int
		denomination uint8
	)
	err = s.apply(r, "listings", "modify", collection, func() error {
		var err error
		if tax, refund, err = s.market.Listings.ModifyListings(caller, collection, changes, req.PayWithEscrow); err != nil {
			return err
		}
		denomination, err = s.market.Custody.Denomination(collection)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modifyListingsResponse{
		TaxRequired: formatTokens(tax, denomination),
		Refund:      formatTokens(refund, denomination),
	})
}

type cancelListingsRequest struct {
	Collection    string   `json:"collection"`
	TokenIDs      []string `json:"tokenIds"`
	PayWithEscrow bool     `json:"payWithEscrow"`
}

func (s *Server) handleCancelListings(w http.ResponseWriter, r *http.Request) {
	var req cancelListingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := parseTokenIDs(req.TokenIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "listings", "cancel", collection, func() error {
		return s.market.Listings.CancelListings(caller, collection, ids, req.PayWithEscrow)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type fillListingsRequest struct {
	Collection  string     `json:"collection"`
	TokenIDsOut [][]string `json:"tokenIdsOut"`
}

func (s *Server) handleFillListings(w http.ResponseWriter, r *http.Request) {
	var req fillListingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groups := make([][]uint256.Int, 0, len(req.TokenIDsOut))
	for _, group := range req.TokenIDsOut {
		ids, err := parseTokenIDs(group)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		groups = append(groups, ids)
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "listings", "fill", collection, func() error {
		return s.market.Listings.FillListings(caller, listings.FillListingsParams{Collection: collection, TokenIDsOut: groups})
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type relistRequest struct {
	Listing       listingParams `json:"listing"`
	PayWithEscrow bool          `json:"payWithEscrow"`
}

func (s *Server) handleRelist(w http.ResponseWriter, r *http.Request) {
	var req relistRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	params, err := req.Listing.decode(caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.apply(r, "listings", "relist", params.Collection, func() error {
		return s.market.Listings.Relist(caller, params, req.PayWithEscrow)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type reserveRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	// Collateral is the share of one floor unit burned, e.g. "0.3".
	Collateral string `json:"collateral"`
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	collateral, err := parseWad("collateral", req.Collateral, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "listings", "reserve", collection, func() error {
		return s.market.Listings.Reserve(caller, collection, id, collateral)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type transferRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	NewOwner   string `json:"newOwner"`
}

func (req transferRequest) decode() (common.Address, uint256.Int, common.Address, error) {
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		return common.Address{}, uint256.Int{}, common.Address{}, err
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		return common.Address{}, uint256.Int{}, common.Address{}, err
	}
	owner, err := parseAddress("newOwner", req.NewOwner)
	if err != nil {
		return common.Address{}, uint256.Int{}, common.Address{}, err
	}
	return collection, id, owner, nil
}

func (s *Server) handleTransferListing(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, id, newOwner, err := req.decode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "listings", "transfer", collection, func() error {
		return s.market.Listings.TransferListingOwnership(caller, collection, id, newOwner)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type withdrawEscrowRequest struct {
	Collection string `json:"collection"`
	// Amount is in floor units, e.g. "0.25".
	Amount string `json:"amount"`
}

func (s *Server) handleWithdrawEscrow(w http.ResponseWriter, r *http.Request) {
	var req withdrawEscrowRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "listings", "withdraw", collection, func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		amount, err := parseTokenAmount("amount", req.Amount, denomination)
		if err != nil {
			return err
		}
		return s.market.Listings.Withdraw(caller, collection, amount)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}
