package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	verifymind "github.com/verifymind/verifymind-go-sdk"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/run"
	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
)

func main() {
	var (
		execute   = flag.Bool("execute", false, "Enable live on-chain submission (default false)")
		yes       = flag.Bool("yes", false, "Skip interactive confirmation when --execute is set")
		pair      = flag.String("pair", "", "Oracle pair to evaluate, e.g. BTC/USD (overrides STRATEGY_PAIR)")
		threshold = flag.String("threshold", "", "Buy threshold price (overrides STRATEGY_THRESHOLD)")
	)
	flag.Parse()

	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := strategy.Config{
		Pair:           "BTC/USD",
		Threshold:      decimal.RequireFromString("100000"),
		MaxSlippageBps: 50,
		DeadlineOffset: strategy.DefaultDeadlineOffset,
	}
	cfg = cfg.MergeEnv()
	if *pair != "" {
		cfg.Pair = *pair
	}
	if *threshold != "" {
		d, err := decimal.NewFromString(*threshold)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid --threshold")
		}
		cfg.Threshold = d
	}
	client := verifymind.NewClient()
	ctx := context.Background()

	if !*execute {
		// Dry runs only need the pair and threshold; the swap route and
		// signing env stay untouched.
		dryRun(ctx, log, client, cfg)
		return
	}

	cfg.Path = []common.Address{
		mustAddress(log, "TOKEN_IN_ADDRESS"),
		mustAddress(log, "TOKEN_OUT_ADDRESS"),
	}
	cfg.Recipient = mustAddress(log, "RECIPIENT_ADDRESS")
	if cfg.TradeSize == nil {
		log.Fatal().Msg("missing STRATEGY_TRADE_SIZE_WEI")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid strategy config")
	}

	pk := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	if pk == "" {
		log.Fatal().Msg("missing PRIVATE_KEY")
	}
	rpcURL := strings.TrimSpace(os.Getenv("RPC_URL"))
	if rpcURL == "" {
		log.Fatal().Msg("missing RPC_URL")
	}
	chainID, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("CHAIN_ID")), 10, 64)
	if err != nil || chainID <= 0 {
		log.Fatal().Msg("missing or invalid CHAIN_ID")
	}

	signer, err := chain.NewPrivateKeySigner(pk, chainID)
	if err != nil {
		log.Fatal().Err(err).Msg("create signer failed")
	}

	backend, err := ethclient.Dial(rpcURL)
	if err != nil {
		log.Fatal().Err(err).Msg("dial rpc failed")
	}
	defer backend.Close()

	runner, err := run.NewRunner(client.Oracle, client.Attestor, chain.NewClient(backend, signer, chain.DefaultConfig()), run.Config{
		Strategy:     cfg,
		Vault:        mustAddress(log, "VAULT_ADDRESS"),
		InputPair:    strings.TrimSpace(os.Getenv("INPUT_PAIR")),
		Retries:      run.DefaultConfig().Retries,
		RetryBackoff: run.DefaultConfig().RetryBackoff,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create runner failed")
	}
	runner.OnEvent(func(e run.Event) {
		if e.TxHash != (common.Hash{}) {
			fmt.Printf("[%s] %s tx=%s\n", e.Stage, e.Message, e.TxHash.Hex())
			return
		}
		fmt.Printf("[%s] %s\n", e.Stage, e.Message)
	})

	fmt.Printf("Strategy: BUY %s below %s, trade size %s wei, signer %s\n",
		cfg.Pair, cfg.Threshold.String(), cfg.TradeSize.String(), signer.Address().Hex())
	if !*yes {
		if !confirm("Submit live transaction if the strategy fires? [y/N]: ") {
			fmt.Println("Canceled.")
			return
		}
	}

	result, err := runner.Execute(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed to start")
	}
	printOutcome(result)
	if result.Stage != run.StageConfirmed {
		os.Exit(1)
	}
}

func dryRun(ctx context.Context, log zerolog.Logger, client *verifymind.Client, cfg strategy.Config) {
	quote, err := client.Oracle.FetchQuote(ctx, cfg.Pair)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch quote failed")
	}
	verdict := strategy.VerdictHold
	if quote.Price.LessThan(cfg.Threshold) {
		verdict = strategy.VerdictBuy
	}
	fmt.Printf("%s = %s at %s (proof entries: %d)\n",
		quote.Pair, quote.Price.String(), quote.Timestamp.Format(time.RFC3339), len(quote.Proof))
	fmt.Printf("Verdict: %s (threshold %s)\n", verdict, cfg.Threshold.String())
	fmt.Println("Dry run mode: nothing submitted. Use --execute to run the full pipeline.")
}

func printOutcome(r *run.Run) {
	fmt.Printf("\nRun %s finished: stage=%s", r.ID, r.Stage)
	if r.TxHash != (common.Hash{}) {
		fmt.Printf(" tx=%s", r.TxHash.Hex())
	}
	fmt.Println()
	if r.Outcome != nil && r.Outcome.Kind != "" {
		fmt.Printf("  kind=%s reason=%s funds=%s\n", r.Outcome.Kind, r.Outcome.Reason, r.Outcome.Funds)
	}
}

func mustAddress(log zerolog.Logger, env string) common.Address {
	raw := strings.TrimSpace(os.Getenv(env))
	if !common.IsHexAddress(raw) {
		log.Fatal().Str("env", env).Msg("missing or invalid address")
	}
	return common.HexToAddress(raw)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	r := bufio.NewReader(os.Stdin)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
