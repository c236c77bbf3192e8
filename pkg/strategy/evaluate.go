// Package strategy evaluates a single-threshold trading rule against a
// proven oracle quote. Evaluation is pure: no I/O, no clock reads.
package strategy

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
)

// Verdict is the outcome of one evaluation.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictHold Verdict = "HOLD"
)

// TradeParams are the fully-specified swap arguments for a BUY verdict,
// laid out the way the vault contract decodes them.
type TradeParams struct {
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     uint64
}

// Decision is produced exactly once per evaluation and never mutated.
// Trade is nil unless Verdict is BUY.
type Decision struct {
	Verdict     Verdict
	Pair        string
	Price       decimal.Decimal
	EvaluatedAt time.Time
	Trade       *TradeParams
}

// Evaluate applies the threshold rule to a quote. rate is the implied
// output-per-input exchange rate used for minimum-output protection; a
// non-positive rate disables it. cfg must already be validated; Evaluate
// is total over well-formed input.
func Evaluate(q oracle.PriceQuote, rate decimal.Decimal, cfg Config, now time.Time) Decision {
	d := Decision{
		Verdict:     VerdictHold,
		Pair:        q.Pair,
		Price:       q.Price,
		EvaluatedAt: now.UTC(),
	}
	if q.Price.GreaterThanOrEqual(cfg.Threshold) {
		return d
	}

	d.Verdict = VerdictBuy
	d.Trade = &TradeParams{
		AmountIn:     new(big.Int).Set(cfg.TradeSize),
		MinAmountOut: minAmountOut(cfg.TradeSize, rate, cfg.MaxSlippageBps),
		Path:         append([]common.Address(nil), cfg.Path...),
		Recipient:    cfg.Recipient,
		Deadline:     uint64(now.Add(cfg.DeadlineOffset).Unix()),
	}
	return d
}

// minAmountOut converts the input size at the implied rate and shaves the
// slippage allowance off. Both sides are assumed to use 18-decimal tokens.
func minAmountOut(amountIn *big.Int, rate decimal.Decimal, maxSlippageBps int64) *big.Int {
	if maxSlippageBps <= 0 || rate.LessThanOrEqual(decimal.Zero) {
		return new(big.Int)
	}
	expected := decimal.NewFromBigInt(amountIn, 0).Mul(rate)
	keep := decimal.NewFromInt(10000 - maxSlippageBps).Div(decimal.NewFromInt(10000))
	return expected.Mul(keep).Floor().BigInt()
}
