package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type custodyRequest struct {
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"tokenIds"`
	Recipient  string   `json:"recipient,omitempty"`
}

func (req custodyRequest) decode(caller common.Address) (common.Address, []uint256.Int, common.Address, error) {
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		return common.Address{}, nil, common.Address{}, err
	}
	ids, err := parseTokenIDs(req.TokenIDs)
	if err != nil {
		return common.Address{}, nil, common.Address{}, err
	}
	recipient, err := parseOptionalAddress("recipient", req.Recipient, caller)
	if err != nil {
		return common.Address{}, nil, common.Address{}, err
	}
	return collection, ids, recipient, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.custodyOperation(w, r, "deposit", s.market.Custody.Deposit)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.custodyOperation(w, r, "redeem", s.market.Custody.Redeem)
}

func (s *Server) custodyOperation(w http.ResponseWriter, r *http.Request, operation string, fn func(caller, collection common.Address, ids []uint256.Int, recipient common.Address) error) {
	var req custodyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	collection, ids, recipient, err := req.decode(caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.apply(r, "custody", operation, collection, func() error {
		return fn(caller, collection, ids, recipient)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type tokenTransferRequest struct {
	Collection string `json:"collection"`
	To         string `json:"to"`
	// Amount is in floor units.
	Amount string `json:"amount"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	var req tokenTransferRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	err = s.apply(r, "custody", "transfer", collection, func() error {
		denomination, err := s.market.Custody.Denomination(collection)
		if err != nil {
			return err
		}
		amount, err := parseTokenAmount("amount", req.Amount, denomination)
		if err != nil {
			return err
		}
		return s.market.Custody.Transfer(collection, caller, to, amount)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type registerCollectionRequest struct {
	Collection   string `json:"collection"`
	Denomination uint8  `json:"denomination"`
}

func (s *Server) handleRegisterCollection(w http.ResponseWriter, r *http.Request) {
	var req registerCollectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.apply(r, "custody", "register", collection, func() error {
		return s.market.Custody.RegisterCollection(collection, req.Denomination)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse)
}

type issueAssetsRequest struct {
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"tokenIds"`
	Owner      string   `json:"owner"`
}

// handleIssueAssets mints assets of a registered collection outside the
// vault, standing in for the collection contract.
func (s *Server) handleIssueAssets(w http.ResponseWriter, r *http.Request) {
	var req issueAssetsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := parseTokenIDs(req.TokenIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.apply(r, "custody", "issue", collection, func() error {
		for _, id := range ids {
			if err := s.market.Custody.IssueAsset(collection, id, owner); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse)
}
