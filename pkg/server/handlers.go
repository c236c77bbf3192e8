package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/run"
	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type priceResponse struct {
	Pair      string   `json:"pair"`
	FeedID    string   `json:"feed_id"`
	Price     string   `json:"price"`
	Timestamp string   `json:"timestamp"`
	Proof     []string `json:"proof"`
}

// handlePrice serves the proven anchor price for a symbol such as BTC-USD.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	pair := strings.ReplaceAll(strings.ToUpper(symbol), "-", "/")

	quote, err := s.oracle.FetchQuote(r.Context(), pair)
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrOracleUnavailable),
			errors.Is(err, oracle.ErrInvalidProof),
			errors.Is(err, oracle.ErrStaleQuote):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Pair:      quote.Pair,
		FeedID:    quote.FeedID.Hex(),
		Price:     quote.Price.String(),
		Timestamp: quote.Timestamp.UTC().Format(time.RFC3339),
		Proof:     quote.Proof,
	})
}

type executeRequest struct {
	Pair           string   `json:"pair"`
	Threshold      string   `json:"threshold"`
	TradeSizeWei   string   `json:"trade_size_wei"`
	Path           []string `json:"path"`
	Recipient      string   `json:"recipient"`
	MaxSlippageBps int64    `json:"max_slippage_bps"`
	InputPair      string   `json:"input_pair,omitempty"`
}

type executeOutcome struct {
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
	Funds  string `json:"funds"`
}

type executeResponse struct {
	RunID         string          `json:"run_id"`
	Stage         string          `json:"stage"`
	Verdict       string          `json:"verdict,omitempty"`
	Price         string          `json:"price,omitempty"`
	AttestationID string          `json:"attestation_id,omitempty"`
	SignerID      string          `json:"signer_id,omitempty"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Outcome       *executeOutcome `json:"outcome,omitempty"`
}

// handleExecuteStrategy runs the full pipeline once: fetch a proven price,
// evaluate the threshold rule, attest the decision, and submit it to the
// vault. A HOLD verdict short-circuits without touching the chain.
func (s *Server) handleExecuteStrategy(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil || s.vault == (common.Address{}) {
		writeError(w, http.StatusServiceUnavailable, "chain client not configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg, err := req.toStrategyConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner, err := run.NewRunner(s.oracle, s.attestor, s.chain, run.Config{
		Strategy:     cfg,
		Vault:        s.vault,
		InputPair:    strings.TrimSpace(req.InputPair),
		Retries:      run.DefaultConfig().Retries,
		RetryBackoff: run.DefaultConfig().RetryBackoff,
	}, s.log)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := runner.Execute(r.Context())
	if err != nil && result == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := executeResponse{
		RunID:   result.ID.String(),
		Stage:   string(result.Stage),
		Verdict: string(result.Decision.Verdict),
	}
	if !result.Quote.Price.IsZero() {
		resp.Price = result.Quote.Price.String()
	}
	if result.Attestation.ID != "" {
		resp.AttestationID = result.Attestation.ID
		resp.SignerID = result.Attestation.SignerID
	}
	if result.TxHash != (common.Hash{}) {
		resp.TxHash = result.TxHash.Hex()
	}
	if result.Outcome != nil {
		resp.Outcome = &executeOutcome{
			Kind:   string(result.Outcome.Kind),
			Reason: result.Outcome.Reason,
			Funds:  string(result.Outcome.Funds),
		}
	}

	status := http.StatusOK
	if result.Stage == run.StageFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (r executeRequest) toStrategyConfig() (strategy.Config, error) {
	cfg := strategy.Config{
		Pair:           strings.TrimSpace(r.Pair),
		MaxSlippageBps: r.MaxSlippageBps,
		DeadlineOffset: strategy.DefaultDeadlineOffset,
	}
	threshold, err := decimal.NewFromString(strings.TrimSpace(r.Threshold))
	if err != nil {
		return cfg, errors.New("invalid threshold: " + err.Error())
	}
	cfg.Threshold = threshold

	size, ok := new(big.Int).SetString(strings.TrimSpace(r.TradeSizeWei), 10)
	if !ok {
		return cfg, errors.New("invalid trade_size_wei")
	}
	cfg.TradeSize = size

	for _, hop := range r.Path {
		if !common.IsHexAddress(hop) {
			return cfg, errors.New("invalid path address: " + hop)
		}
		cfg.Path = append(cfg.Path, common.HexToAddress(hop))
	}
	if !common.IsHexAddress(r.Recipient) {
		return cfg, errors.New("invalid recipient address")
	}
	cfg.Recipient = common.HexToAddress(r.Recipient)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
