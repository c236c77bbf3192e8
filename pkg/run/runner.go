// Package run coordinates the decision-attestation-execution pipeline:
// read a proven price, evaluate the strategy, obtain a signed attestation,
// submit it to the vault, and track the transaction to a terminal state.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/verifymind/verifymind-go-sdk/pkg/attest"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
	"github.com/verifymind/verifymind-go-sdk/pkg/vault"
)

// Config controls one runner. All values are supplied at run start; no
// hidden default overrides an explicit non-default value.
type Config struct {
	Strategy strategy.Config
	// Vault is the on-chain verifier/executor address.
	Vault common.Address
	// InputPair is the USD pair of the swap input token (e.g. "FLR/USD").
	// When set, the runner derives the implied input/output cross rate for
	// minimum-output protection; empty disables it.
	InputPair string
	// Retries bounds re-attempts of oracle and attestation fetches on
	// transient transport errors. Semantic errors are never retried.
	Retries int
	// RetryBackoff is the pause between re-attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns the retry defaults.
func DefaultConfig() Config {
	return Config{
		Retries:      2,
		RetryBackoff: 2 * time.Second,
	}
}

// Runner drives independent ExecutionRuns. Runs share nothing mutable
// except the chain client, which serializes nonce assignment internally.
type Runner struct {
	oracle   oracle.Client
	attestor attest.Attestor
	chain    *chain.Client
	cfg      Config
	log      zerolog.Logger
	sink     Sink
	now      func() time.Time
}

// NewRunner validates the configuration and builds a runner.
func NewRunner(oc oracle.Client, at attest.Attestor, cc *chain.Client, cfg Config, log zerolog.Logger) (*Runner, error) {
	if oc == nil || at == nil || cc == nil {
		return nil, fmt.Errorf("oracle, attestor and chain clients are required")
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}
	if cfg.Vault == (common.Address{}) {
		return nil, fmt.Errorf("vault address is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0")
	}
	if cfg.Retries > 0 && cfg.RetryBackoff <= 0 {
		return nil, fmt.Errorf("retry backoff must be > 0 when retries are enabled")
	}
	return &Runner{
		oracle:   oc,
		attestor: at,
		chain:    cc,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}, nil
}

// OnEvent registers the progress event sink. Call before Execute.
func (r *Runner) OnEvent(sink Sink) {
	r.sink = sink
}

// Retry starts over after a terminal run. The previous attestation is never
// reused: the pipeline re-fetches a quote and mints a fresh one.
func (r *Runner) Retry(ctx context.Context, prev *Run) (*Run, error) {
	if prev != nil && !prev.Terminal() {
		return nil, fmt.Errorf("run %s is still in progress", prev.ID)
	}
	return r.Execute(ctx)
}

// Execute performs one full pipeline invocation and returns the run with
// its terminal outcome. Every invocation is independent and mints a fresh
// attestation; a finalized attestation is never resubmitted.
func (r *Runner) Execute(ctx context.Context) (*Run, error) {
	run := newRun(r.cfg.Strategy)
	log := r.log.With().Stringer("run_id", run.ID).Logger()
	log.Info().Str("pair", r.cfg.Strategy.Pair).Str("threshold", r.cfg.Strategy.Threshold.String()).Msg("run started")

	// Stage 1: oracle fetch. Retried on transport errors only; proof and
	// staleness violations surface immediately.
	quote, rate, err := r.fetchQuotes(ctx, run)
	if err != nil {
		return r.fail(run, log, classifyOracleErr(err), err.Error(), FundsNotMoved)
	}
	run.Quote = quote
	r.transition(run, log, StagePriceFetched, fmt.Sprintf("%s = %s", quote.Pair, quote.Price))

	if err := r.cancelable(ctx); err != nil {
		return r.fail(run, log, KindCanceled, err.Error(), FundsNotMoved)
	}

	// Stage 2: evaluation. Total over validated config; cannot fail.
	run.Decision = strategy.Evaluate(quote, rate, r.cfg.Strategy, r.now())
	r.transition(run, log, StageDecided, string(run.Decision.Verdict))

	if run.Decision.Verdict == strategy.VerdictHold {
		// Nothing to submit; terminal no-op outcome.
		outcome := Outcome{
			Stage:  StageConfirmed,
			Reason: fmt.Sprintf("price %s at or above threshold %s; holding", quote.Price, r.cfg.Strategy.Threshold),
			Funds:  FundsNotMoved,
		}
		run.finalize(outcome)
		r.emit(Event{Stage: StageConfirmed, Message: outcome.Reason})
		log.Info().Msg("run finished: HOLD, no-op")
		return run, nil
	}

	if err := r.cancelable(ctx); err != nil {
		return r.fail(run, log, KindCanceled, err.Error(), FundsNotMoved)
	}

	// Stage 3: attestation.
	att, err := r.attestWithRetry(ctx, run.Decision)
	if err != nil {
		return r.fail(run, log, classifyAttestErr(err), err.Error(), FundsNotMoved)
	}
	run.Attestation = att
	r.transition(run, log, StageAttested, "signed by "+att.SignerID)

	if err := r.cancelable(ctx); err != nil {
		return r.fail(run, log, KindCanceled, err.Error(), FundsNotMoved)
	}

	// Stage 4: encode and broadcast.
	tx, err := r.submit(ctx, run)
	if err != nil {
		return r.fail(run, log, KindSubmissionFailed, err.Error(), FundsNotMoved)
	}
	run.TxHash = tx.Hash()
	r.transition(run, log, StageSubmitted, "broadcast", withTx(run.TxHash))

	// Stage 5: confirmation. Once submitted the run cannot be canceled;
	// the wait is bounded by the chain client's confirmation timeout.
	return r.confirm(context.WithoutCancel(ctx), run, log, tx)
}

func (r *Runner) fetchQuotes(ctx context.Context, run *Run) (oracle.PriceQuote, decimal.Decimal, error) {
	pairs := []string{r.cfg.Strategy.Pair}
	if r.cfg.InputPair != "" {
		pairs = append(pairs, r.cfg.InputPair)
	}

	var quotes map[string]oracle.PriceQuote
	err := r.withRetry(ctx, oracle.ErrOracleUnavailable, func(ctx context.Context) error {
		var ferr error
		quotes, ferr = r.oracle.FetchQuotes(ctx, pairs...)
		return ferr
	})
	if err != nil {
		return oracle.PriceQuote{}, decimal.Zero, err
	}

	quote := quotes[r.cfg.Strategy.Pair]
	rate := decimal.Zero
	if r.cfg.InputPair != "" && quote.Price.GreaterThan(decimal.Zero) {
		rate = quotes[r.cfg.InputPair].Price.Div(quote.Price)
	}
	return quote, rate, nil
}

func (r *Runner) attestWithRetry(ctx context.Context, d strategy.Decision) (attest.Attestation, error) {
	var att attest.Attestation
	err := r.withRetry(ctx, attest.ErrAttestationUnavailable, func(ctx context.Context) error {
		var aerr error
		att, aerr = r.attestor.Attest(ctx, d)
		return aerr
	})
	return att, err
}

func (r *Runner) submit(ctx context.Context, run *Run) (*ethtypes.Transaction, error) {
	tradeData, err := vault.EncodeTradeData(*run.Decision.Trade)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrSubmissionFailed, err)
	}
	attBlob, err := run.Attestation.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrSubmissionFailed, err)
	}
	calldata, err := vault.ExecuteStrategyCalldata(tradeData, attBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrSubmissionFailed, err)
	}
	return r.chain.Submit(ctx, r.cfg.Vault, calldata)
}

func (r *Runner) confirm(ctx context.Context, run *Run, log zerolog.Logger, tx *ethtypes.Transaction) (*Run, error) {
	receipt, err := r.chain.WaitMined(ctx, run.TxHash)
	if err != nil {
		// The transaction may still land later: funds state is unknown and
		// the caller holds the reference for manual follow-up.
		reason := fmt.Sprintf("unknown, check transaction reference %s: %v", run.TxHash, err)
		outcome := Outcome{Stage: StageFailed, Kind: KindConfirmationTimeout, Reason: reason, Funds: FundsUnknown, TxHash: run.TxHash}
		run.finalize(outcome)
		r.emit(Event{Stage: StageFailed, Message: reason, TxHash: run.TxHash, Err: KindConfirmationTimeout})
		log.Warn().Stringer("tx", run.TxHash).Msg("confirmation timed out")
		return run, fmt.Errorf("%s: %s", KindConfirmationTimeout, reason)
	}

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		outcome := Outcome{
			Stage:  StageConfirmed,
			Reason: fmt.Sprintf("vault verified attestation and executed swap in block %s", receipt.BlockNumber),
			Funds:  FundsMoved,
			TxHash: run.TxHash,
		}
		run.finalize(outcome)
		r.emit(Event{Stage: StageConfirmed, Message: outcome.Reason, TxHash: run.TxHash})
		log.Info().Stringer("tx", run.TxHash).Msg("run confirmed")
		return run, nil
	}

	kind := KindOnChainRejected
	reason := r.chain.RevertReason(ctx, tx, receipt)
	if reason == "" {
		kind = KindUnknownRevert
		reason = "reverted without a decodable reason"
	}
	outcome := Outcome{Stage: StageRejected, Kind: kind, Reason: reason, Funds: FundsNotMoved, TxHash: run.TxHash}
	run.finalize(outcome)
	r.emit(Event{Stage: StageRejected, Message: reason, TxHash: run.TxHash, Err: kind})
	log.Warn().Stringer("tx", run.TxHash).Str("reason", reason).Msg("run rejected on-chain")
	return run, fmt.Errorf("%s: %s", kind, reason)
}

// withRetry re-attempts op while it fails with the transient sentinel,
// pausing between attempts. Any other error surfaces immediately.
func (r *Runner) withRetry(ctx context.Context, transient error, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(ctx); err == nil || !errors.Is(err, transient) {
			return err
		}
		r.log.Warn().Err(err).Int("attempt", attempt+1).Msg("transient error, will retry")
	}
	return err
}

// cancelable honors caller cancellation while the run has not yet
// submitted anything on-chain.
func (r *Runner) cancelable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}
	return nil
}

func (r *Runner) fail(run *Run, log zerolog.Logger, kind ErrorKind, reason string, funds FundsState) (*Run, error) {
	outcome := Outcome{Stage: StageFailed, Kind: kind, Reason: reason, Funds: funds}
	run.finalize(outcome)
	r.emit(Event{Stage: StageFailed, Message: reason, Err: kind})
	log.Warn().Str("kind", string(kind)).Str("reason", reason).Msg("run failed")
	return run, fmt.Errorf("%s: %s", kind, reason)
}

type transitionOpt func(*Event)

func withTx(h common.Hash) transitionOpt {
	return func(e *Event) { e.TxHash = h }
}

func (r *Runner) transition(run *Run, log zerolog.Logger, next Stage, message string, opts ...transitionOpt) {
	if err := run.advance(next); err != nil {
		// Unreachable while the runner drives stages sequentially.
		log.Error().Err(err).Msg("illegal stage transition")
		return
	}
	e := Event{Stage: next, Message: message}
	for _, opt := range opts {
		opt(&e)
	}
	r.emit(e)
	log.Debug().Str("stage", string(next)).Str("detail", message).Msg("stage transition")
}

func (r *Runner) emit(e Event) {
	if r.sink != nil {
		r.sink(e)
	}
}

func classifyOracleErr(err error) ErrorKind {
	switch {
	case errors.Is(err, oracle.ErrStaleQuote):
		return KindStaleQuote
	case errors.Is(err, oracle.ErrInvalidProof):
		return KindInvalidProof
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOracleUnavailable
	}
}

func classifyAttestErr(err error) ErrorKind {
	switch {
	case errors.Is(err, attest.ErrAttestationTimeout):
		return KindAttestationTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindAttestationUnavailable
	}
}
