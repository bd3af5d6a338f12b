package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"dgmarket/core/state"
	"dgmarket/crypto"
	"dgmarket/index"
	nativecommon "dgmarket/native/common"
	"dgmarket/native/marketplace"
)

const (
	codeMarketInvalidParams = -32030
	codeMarketForbidden     = -32031
	codeMarketNotFound      = -32032
	codeMarketConflict      = -32033
	codeMarketInternal      = -32034
)

// Canonical failure strings surfaced to RPC clients.
const (
	msgLengthMismatch        = "LENGTH_MISMATCH"
	msgUnauthorized          = "FAILED_UNAUTHORIZED"
	msgCollectionUnavailable = "COLLECTION_UNAVAILABLE"
	msgInsufficientFunds     = "INSUFFICIENT_FUNDS"
	msgInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
)

type sellParams struct {
	Caller     string   `json:"caller"`
	Collection string   `json:"collection"`
	AssetIDs   []uint64 `json:"assetIds"`
	Prices     []string `json:"prices"`
}

type batchParams struct {
	Caller     string   `json:"caller"`
	Collection string   `json:"collection"`
	AssetIDs   []uint64 `json:"assetIds"`
}

type setFeeParams struct {
	Caller string `json:"caller"`
	Fee    uint32 `json:"fee"`
}

type setFeeOwnerParams struct {
	Caller   string `json:"caller"`
	FeeOwner string `json:"feeOwner"`
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type pauseParams struct {
	Caller string `json:"caller"`
}

type withdrawTokenParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type withdrawAssetParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

type tokenMintParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenApproveParams struct {
	Owner   string `json:"owner"`
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type collectionMintParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	To         string `json:"to"`
	AssetID    uint64 `json:"assetId"`
}

type approvalForAllParams struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	Operator   string `json:"operator"`
	Approved   bool   `json:"approved"`
}

type assetQueryParams struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

type balanceQueryParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type activityQueryParams struct {
	Collection string  `json:"collection,omitempty"`
	AssetID    *uint64 `json:"assetId,omitempty"`
	Type       string  `json:"type,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

type listingJSON struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Seller     string `json:"seller"`
	Price      string `json:"price"`
	CreatedAt  int64  `json:"createdAt"`
}

type paramsJSON struct {
	AcceptedToken string `json:"acceptedToken"`
	FeeOwner      string `json:"feeOwner"`
	Fee           uint32 `json:"fee"`
	Owner         string `json:"owner"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %s", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(addr[:]).String()
}

// writeMarketError maps engine and ledger failures onto JSON-RPC errors with
// stable message strings.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, marketplace.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, msgLengthMismatch, nil)
	case errors.Is(err, marketplace.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, msgUnauthorized, nil)
	case errors.Is(err, marketplace.ErrCollectionUnavailable):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, msgCollectionUnavailable, nil)
	case errors.Is(err, state.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeMarketConflict, msgInsufficientFunds, nil)
	case errors.Is(err, state.ErrInsufficientAllowance):
		writeError(w, http.StatusConflict, id, codeMarketConflict, msgInsufficientAllowance, nil)
	case errors.Is(err, state.ErrAssetUnauthorized), errors.Is(err, state.ErrMintUnauthorized):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, msgUnauthorized, err.Error())
	case errors.Is(err, state.ErrNonexistentAsset), errors.Is(err, state.ErrUnknownCollection), errors.Is(err, state.ErrUnknownToken):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeMarketConflict, err.Error(), nil)
	case errors.Is(err, marketplace.ErrInvalidListing):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeMarketInternal, err.Error(), nil)
	}
}

func (s *Server) handleMarketSell(w http.ResponseWriter, req *RPCRequest) {
	var params sellParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	prices := make([]*big.Int, len(params.Prices))
	for i, raw := range params.Prices {
		price, err := parseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
		prices[i] = price
	}
	if err := s.node.MarketSell(caller, params.Collection, params.AssetIDs, prices); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"listed": len(params.AssetIDs)})
}

func (s *Server) handleMarketCancel(w http.ResponseWriter, req *RPCRequest) {
	var params batchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketCancel(caller, params.Collection, params.AssetIDs); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"cancelled": len(params.AssetIDs)})
}

func (s *Server) handleMarketBuy(w http.ResponseWriter, req *RPCRequest) {
	var params batchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketBuy(caller, params.Collection, params.AssetIDs); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"purchased": len(params.AssetIDs)})
}

func (s *Server) handleMarketSetFee(w http.ResponseWriter, req *RPCRequest) {
	var params setFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketSetFee(caller, params.Fee); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"fee": params.Fee})
}

func (s *Server) handleMarketSetFeeOwner(w http.ResponseWriter, req *RPCRequest) {
	var params setFeeOwnerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	feeOwner, err := parseAddress(params.FeeOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketSetFeeOwner(caller, feeOwner); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"feeOwner": params.FeeOwner})
}

func (s *Server) handleMarketTransferOwnership(w http.ResponseWriter, req *RPCRequest) {
	var params transferOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketTransferOwnership(caller, newOwner); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": params.NewOwner})
}

func (s *Server) handleMarketPause(w http.ResponseWriter, req *RPCRequest) {
	s.setPaused(w, req, true)
}

func (s *Server) handleMarketResume(w http.ResponseWriter, req *RPCRequest) {
	s.setPaused(w, req, false)
}

func (s *Server) setPaused(w http.ResponseWriter, req *RPCRequest, paused bool) {
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketSetPaused(caller, paused); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": paused})
}

func (s *Server) handleMarketWithdrawToken(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketWithdrawToken(caller, params.Token, amount); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"token": params.Token, "amount": amount.String()})
}

func (s *Server) handleMarketWithdrawAsset(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawAssetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MarketWithdrawAsset(caller, params.Collection, params.AssetID); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"assetId": params.AssetID})
}

func (s *Server) handleTokenMint(w http.ResponseWriter, req *RPCRequest) {
	var params tokenMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TokenMint(params.Token, caller, to, amount); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"minted": amount.String()})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, req *RPCRequest) {
	var params tokenApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TokenApprove(params.Token, owner, spender, amount); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"allowance": amount.String()})
}

func (s *Server) handleCollectionMint(w http.ResponseWriter, req *RPCRequest) {
	var params collectionMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AssetMint(params.Collection, caller, to, params.AssetID); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"assetId": params.AssetID})
}

func (s *Server) handleCollectionSetApprovalForAll(w http.ResponseWriter, req *RPCRequest) {
	var params approvalForAllParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	operator, err := parseAddress(params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AssetSetApprovalForAll(params.Collection, owner, operator, params.Approved); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"approved": params.Approved})
}

func (s *Server) handleMarketGetPrice(w http.ResponseWriter, req *RPCRequest) {
	var params assetQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := s.node.MarketGetPrice(params.Collection, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"price": price.String()})
}

func (s *Server) handleMarketIsActive(w http.ResponseWriter, req *RPCRequest) {
	var params assetQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	active, err := s.node.MarketIsActive(params.Collection, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"active": active})
}

func (s *Server) handleMarketGetListing(w http.ResponseWriter, req *RPCRequest) {
	var params assetQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, ok, err := s.node.MarketGetListing(params.Collection, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, msgCollectionUnavailable, nil)
		return
	}
	writeResult(w, req.ID, listingJSON{
		Collection: listing.Collection,
		AssetID:    listing.AssetID,
		Seller:     formatAddress(listing.Seller),
		Price:      listing.Price.String(),
		CreatedAt:  listing.CreatedAt,
	})
}

func (s *Server) handleMarketGetParams(w http.ResponseWriter, req *RPCRequest) {
	params, err := s.node.MarketParams()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paramsJSON{
		AcceptedToken: params.AcceptedToken,
		FeeOwner:      formatAddress(params.FeeOwner),
		Fee:           params.Fee,
		Owner:         formatAddress(params.Owner),
	})
}

func (s *Server) handleMarketListActivity(w http.ResponseWriter, req *RPCRequest) {
	if s.activity == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeMarketInternal, "activity index not configured", nil)
		return
	}
	var params activityQueryParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	results, err := s.activity.ListActivity(index.Filter{
		Collection: params.Collection,
		AssetID:    params.AssetID,
		Type:       params.Type,
		Limit:      params.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeMarketInternal, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params balanceQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.TokenBalance(params.Token, addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleCollectionOwnerOf(w http.ResponseWriter, req *RPCRequest) {
	var params assetQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := s.node.AssetOwner(params.Collection, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(owner)})
}
