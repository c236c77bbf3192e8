package strategy

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the immutable description of one threshold strategy. It is
// fixed when a run starts; the runner never mutates it.
type Config struct {
	// Pair is the oracle pair the threshold applies to, e.g. "BTC/USD".
	Pair string
	// Threshold is the reference price below which the strategy buys.
	Threshold decimal.Decimal
	// TradeSize is the input amount in wei of the first path token.
	TradeSize *big.Int
	// Path is the ordered swap route, at least [tokenIn, tokenOut].
	Path []common.Address
	// Recipient receives the swap output.
	Recipient common.Address
	// MaxSlippageBps caps acceptable slippage in basis points. Zero means
	// no minimum-output protection.
	MaxSlippageBps int64
	// DeadlineOffset is added to the evaluation time to form the on-chain
	// swap deadline.
	DeadlineOffset time.Duration
}

// DefaultDeadlineOffset matches the 20 minute deadline the vault UI uses.
const DefaultDeadlineOffset = 20 * time.Minute

func (c Config) Validate() error {
	if strings.TrimSpace(c.Pair) == "" {
		return fmt.Errorf("pair is required")
	}
	if c.Threshold.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("threshold must be > 0")
	}
	if c.TradeSize == nil || c.TradeSize.Sign() <= 0 {
		return fmt.Errorf("trade size must be > 0")
	}
	if len(c.Path) < 2 {
		return fmt.Errorf("path needs at least 2 hops, got %d", len(c.Path))
	}
	if c.Recipient == (common.Address{}) {
		return fmt.Errorf("recipient is required")
	}
	if c.MaxSlippageBps < 0 {
		return fmt.Errorf("max slippage bps must be >= 0")
	}
	if c.DeadlineOffset <= 0 {
		return fmt.Errorf("deadline offset must be > 0")
	}
	return nil
}

// MergeEnv allows easy ops without recompiling. Only values the
// environment actually sets are overridden.
func (c Config) MergeEnv() Config {
	if v := strings.TrimSpace(os.Getenv("STRATEGY_PAIR")); v != "" {
		c.Pair = v
	}
	if v := strings.TrimSpace(os.Getenv("STRATEGY_THRESHOLD")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.GreaterThan(decimal.Zero) {
			c.Threshold = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("STRATEGY_TRADE_SIZE_WEI")); v != "" {
		if n, ok := new(big.Int).SetString(v, 10); ok && n.Sign() > 0 {
			c.TradeSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STRATEGY_MAX_SLIPPAGE_BPS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.MaxSlippageBps = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STRATEGY_DEADLINE_OFFSET_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DeadlineOffset = time.Duration(n) * time.Second
		}
	}
	return c
}
