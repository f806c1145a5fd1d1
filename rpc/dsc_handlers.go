package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dscd/native/dsc"
)

type depositParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type mintParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type redeemParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type redeemForDSCParams struct {
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	DSCToBurn string `json:"dscToBurn"`
}

type burnParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type accountParams struct {
	Account string `json:"account"`
}

type usdValueParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type snapshotResult struct {
	CollateralValueUsd string `json:"collateralValueUsd"`
	TotalDscMinted     string `json:"totalDscMinted"`
	HealthFactor       string `json:"healthFactor"`
}

type accountInformationResult struct {
	TotalDscMinted     string `json:"totalDscMinted"`
	CollateralValueUsd string `json:"collateralValueUsd"`
}

type collateralBalanceResult struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type positionResult struct {
	Account    string                    `json:"account"`
	Debt       string                    `json:"debt"`
	Collateral []collateralBalanceResult `json:"collateral"`
}

type collateralTokenResult struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	FeedPair string `json:"feedPair,omitempty"`
}

func toSnapshotResult(snapshot dsc.HealthSnapshot) snapshotResult {
	return snapshotResult{
		CollateralValueUsd: snapshot.CollateralUSD.String(),
		TotalDscMinted:     snapshot.Debt.String(),
		HealthFactor:       snapshot.HealthFactor.String(),
	}
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params depositParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, asset, amount, ok := parseAccountAssetAmount(w, req, params.Account, params.Asset, params.Amount)
	if !ok {
		return
	}
	snapshot, err := s.engine.DepositCollateral(r.Context(), account, asset, amount)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleMintDSC(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params mintParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, "amount", params.Amount)
	if !ok {
		return
	}
	snapshot, err := s.engine.MintDSC(r.Context(), account, amount)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleRedeemCollateral(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params redeemParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, asset, amount, ok := parseAccountAssetAmount(w, req, params.Account, params.Asset, params.Amount)
	if !ok {
		return
	}
	snapshot, err := s.engine.RedeemCollateral(r.Context(), account, asset, amount)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleRedeemCollateralForDSC(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params redeemForDSCParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, asset, amount, ok := parseAccountAssetAmount(w, req, params.Account, params.Asset, params.Amount)
	if !ok {
		return
	}
	dscToBurn, ok := parseAmount(w, req, "dscToBurn", params.DSCToBurn)
	if !ok {
		return
	}
	snapshot, err := s.engine.RedeemCollateralForDSC(r.Context(), account, asset, amount, dscToBurn)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleBurnDSC(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params burnParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, "amount", params.Amount)
	if !ok {
		return
	}
	snapshot, err := s.engine.BurnDSC(r.Context(), account, amount)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params liquidateParams
	if !decodeParams(w, req, &params) {
		return
	}
	liquidator, ok := parseAddress(w, req, "liquidator", params.Liquidator)
	if !ok {
		return
	}
	target, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	asset, ok := parseAddress(w, req, "asset", params.Asset)
	if !ok {
		return
	}
	debtToCover, ok := parseAmount(w, req, "debtToCover", params.DebtToCover)
	if !ok {
		return
	}
	snapshot, err := s.engine.Liquidate(r.Context(), liquidator, target, asset, debtToCover)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, toSnapshotResult(snapshot))
}

func (s *Server) handleGetAccountInformation(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params accountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	debt, collateralUSD, err := s.engine.GetAccountInformation(r.Context(), account)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, accountInformationResult{
		TotalDscMinted:     debt.String(),
		CollateralValueUsd: collateralUSD.String(),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params accountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	factor, err := s.engine.HealthFactor(r.Context(), account)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, factor.String())
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ *slog.Logger) {
	var params accountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	position := s.engine.Position(account)
	result := positionResult{
		Account:    account.Hex(),
		Debt:       position.Debt.String(),
		Collateral: make([]collateralBalanceResult, 0, len(position.Collateral)),
	}
	for _, asset := range s.engine.Registry().Assets() {
		balance := position.CollateralBalance(asset.Address)
		if balance.Sign() == 0 {
			continue
		}
		result.Collateral = append(result.Collateral, collateralBalanceResult{
			Asset:  asset.Address.Hex(),
			Symbol: asset.Symbol,
			Amount: balance.String(),
		})
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetCollateralTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ *slog.Logger) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	assets := s.engine.Registry().Assets()
	tokens := make([]collateralTokenResult, 0, len(assets))
	for _, asset := range assets {
		tokens = append(tokens, collateralTokenResult{
			Address:  asset.Address.Hex(),
			Symbol:   asset.Symbol,
			Decimals: asset.Decimals,
			FeedPair: asset.FeedPair,
		})
	}
	writeResult(w, req.ID, tokens)
}

func (s *Server) handleGetUSDValue(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params usdValueParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, ok := parseAddress(w, req, "asset", params.Asset)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, "amount", params.Amount)
	if !ok {
		return
	}
	value, err := s.engine.USDValue(r.Context(), asset, amount)
	if err != nil {
		writeEngineError(w, req, logger, err)
		return
	}
	writeResult(w, req.ID, value.String())
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, req *RPCRequest, field, raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid %s address", field), nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// parseAmount accepts wei-scale base-10 integer strings; fractional input is
// the caller's responsibility to scale before submission.
func parseAmount(w http.ResponseWriter, req *RPCRequest, field, raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid %s: expected a positive integer string", field), nil)
		return nil, false
	}
	return amount, true
}

func parseAccountAssetAmount(w http.ResponseWriter, req *RPCRequest, account, asset, amount string) (common.Address, common.Address, *big.Int, bool) {
	accountAddr, ok := parseAddress(w, req, "account", account)
	if !ok {
		return common.Address{}, common.Address{}, nil, false
	}
	assetAddr, ok := parseAddress(w, req, "asset", asset)
	if !ok {
		return common.Address{}, common.Address{}, nil, false
	}
	value, ok := parseAmount(w, req, "amount", amount)
	if !ok {
		return common.Address{}, common.Address{}, nil, false
	}
	return accountAddr, assetAddr, value, true
}

func writeEngineError(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger, err error) {
	status, code := translateEngineError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("engine operation failed", "error", err)
	} else {
		logger.Info("engine operation rejected", "error", err)
	}
	writeError(w, status, req.ID, code, err.Error(), nil)
}

func translateEngineError(err error) (int, int) {
	switch {
	case errors.Is(err, dsc.ErrInvalidAmount), errors.Is(err, dsc.ErrUnsupportedAsset):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, dsc.ErrInsufficientCollateral), errors.Is(err, dsc.ErrInsufficientDebt):
		return http.StatusUnprocessableEntity, codeInsufficientFunds
	case errors.Is(err, dsc.ErrBreaksHealthFactor):
		return http.StatusUnprocessableEntity, codeHealthViolation
	case errors.Is(err, dsc.ErrHealthFactorOk),
		errors.Is(err, dsc.ErrInsufficientCollateralToSeize),
		errors.Is(err, dsc.ErrHealthFactorNotImproved):
		return http.StatusUnprocessableEntity, codeLiquidationRejected
	case errors.Is(err, dsc.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, codeOracleUnavailable
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
