package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/native/protected"
)

type protectedParams struct {
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"tokenIds"`
	Owner      string   `json:"owner,omitempty"`
	// TokenTaken is the principal as a share of one floor unit.
	TokenTaken string `json:"tokenTaken"`
}

type createProtectedRequest struct {
	Listings []protectedParams `json:"listings"`
}

func (s *Server) handleCreateProtected(w http.ResponseWriter, r *http.Request) {
	var req createProtectedRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	batch := make([]protected.CreateListing, 0, len(req.Listings))
	for _, p := range req.Listings {
		collection, err := parseAddress("collection", p.Collection)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		owner, err := parseOptionalAddress("owner", p.Owner, caller)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ids, err := parseTokenIDs(p.TokenIDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		taken, err := parseWad("tokenTaken", p.TokenTaken, false)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		batch = append(batch, protected.CreateListing{Collection: collection, TokenIDs: ids, Owner: owner, TokenTaken: taken})
	}
	if len(batch) == 0 {
		s.writeError(w, r, badRequest("listings: empty batch"))
		return
	}
	err := s.apply(r, "protected", "create", batch[0].Collection, func() error {
		return s.market.Protected.CreateListings(caller, batch)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type loanRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

func (req loanRequest) decode() (common.Address, uint256.Int, error) {
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		return common.Address{}, uint256.Int{}, err
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		return common.Address{}, uint256.Int{}, err
	}
	return collection, id, nil
}

type adjustPositionRequest struct {
	loanRequest
	// Delta draws (positive) or repays (negative) principal, as a share of
	// one floor unit.
	Delta string `json:"delta"`
}

func (s *Server) handleAdjustPosition(w http.ResponseWriter, r *http.Request) {
	var req adjustPositionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, id, err := req.decode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	delta, err := parseWad("delta", req.Delta, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "protected", "adjust", collection, func() error {
		return s.market.Protected.AdjustPosition(caller, collection, id, delta)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type unlockRequest struct {
	loanRequest
	WithdrawNow bool `json:"withdrawNow"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, id, err := req.decode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "protected", "unlock", collection, func() error {
		return s.market.Protected.UnlockProtectedListing(caller, collection, id, req.WithdrawNow)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleWithdrawProtected(w http.ResponseWriter, r *http.Request) {
	s.loanOperation(w, r, "withdraw", s.market.Protected.WithdrawProtectedListing)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	s.loanOperation(w, r, "liquidate", s.market.Protected.LiquidateProtectedListing)
}

func (s *Server) loanOperation(w http.ResponseWriter, r *http.Request, operation string, fn func(caller, collection common.Address, id uint256.Int) error) {
	var req loanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, id, err := req.decode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "protected", operation, collection, func() error {
		return fn(caller, collection, id)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleTransferLoan(w http.ResponseWriter, r *http.Request) {
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
	err = s.apply(r, "protected", "transfer", collection, func() error {
		return s.market.Protected.TransferOwnership(caller, collection, id, newOwner)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type checkpointRequest struct {
	Collection string `json:"collection"`
}

type checkpointResponse struct {
	Index uint64 `json:"index"`
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var index uint64
	err = s.apply(r, "protected", "checkpoint", collection, func() error {
		var err error
		index, err = s.market.Protected.CreateCheckpoint(collection)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{Index: index})
}
