package run

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/verifymind/verifymind-go-sdk/pkg/attest"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
	"github.com/verifymind/verifymind-go-sdk/pkg/vault"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	wnat      = common.HexToAddress("0xC67DCE33D7A8efA5FfEB961899C73fe01bCe9273")
	wbtc      = common.HexToAddress("0x1234567890123456789012345678901234567890")
	user      = common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")
	vaultAddr = common.HexToAddress("0x2531BB578B4AcB2FE478263c1C744d2F3200Cf68")
)

// fakeOracle serves scripted quotes, or scripted errors, per call.
type fakeOracle struct {
	mu     sync.Mutex
	quotes map[string]oracle.PriceQuote
	errs   []error // consumed first, one per call
	calls  int
}

func (f *fakeOracle) FetchQuote(ctx context.Context, pair string) (oracle.PriceQuote, error) {
	quotes, err := f.FetchQuotes(ctx, pair)
	if err != nil {
		return oracle.PriceQuote{}, err
	}
	return quotes[pair], nil
}

func (f *fakeOracle) FetchQuotes(ctx context.Context, pairs ...string) (map[string]oracle.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	out := make(map[string]oracle.PriceQuote, len(pairs))
	for _, p := range pairs {
		q, ok := f.quotes[p]
		if !ok {
			return nil, fmt.Errorf("%w: no record for feed %s", oracle.ErrInvalidProof, p)
		}
		out[p] = q
	}
	return out, nil
}

type failingAttestor struct {
	errs  []error
	inner attest.Attestor
	calls int
}

func (f *failingAttestor) Attest(ctx context.Context, d strategy.Decision) (attest.Attestation, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return attest.Attestation{}, err
	}
	return f.inner.Attest(ctx, d)
}

// fakeBackend mirrors the minimal node behavior the chain client needs.
type fakeBackend struct {
	mu         sync.Mutex
	nonce      uint64
	sent       []*ethtypes.Transaction
	sendErr    error
	mineStatus *uint64 // nil: never mined
	callReturn []byte
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(25_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 300_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mineStatus == nil {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: *b.mineStatus, BlockNumber: big.NewInt(42)}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.callReturn, nil
}

func mined(status uint64) *uint64 { return &status }

func testStrategy(threshold string) strategy.Config {
	return strategy.Config{
		Pair:           "BTC/USD",
		Threshold:      decimal.RequireFromString(threshold),
		TradeSize:      big.NewInt(1_000_000_000_000_000_000),
		Path:           []common.Address{wnat, wbtc},
		Recipient:      user,
		DeadlineOffset: strategy.DefaultDeadlineOffset,
	}
}

func btcQuote(price string) map[string]oracle.PriceQuote {
	return map[string]oracle.PriceQuote{
		"BTC/USD": {Pair: "BTC/USD", Price: decimal.RequireFromString(price), Timestamp: time.Now()},
	}
}

type harness struct {
	oracle   *fakeOracle
	attestor *failingAttestor
	backend  *fakeBackend
	enclave  *attest.Enclave
	runner   *Runner
	events   []Event
}

func newHarness(t *testing.T, strat strategy.Config, cfg Config) *harness {
	t.Helper()
	enclave, err := attest.GenerateEnclave()
	require.NoError(t, err)

	h := &harness{
		oracle:   &fakeOracle{quotes: btcQuote("50")},
		attestor: &failingAttestor{inner: enclave},
		backend:  &fakeBackend{mineStatus: mined(ethtypes.ReceiptStatusSuccessful)},
		enclave:  enclave,
	}

	signer, err := chain.NewPrivateKeySigner(testKey, 114)
	require.NoError(t, err)
	chainClient := chain.NewClient(h.backend, signer, chain.Config{
		ConfirmPollInterval: 2 * time.Millisecond,
		ConfirmTimeout:      50 * time.Millisecond,
	})

	cfg.Strategy = strat
	cfg.Vault = vaultAddr
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}

	runner, err := NewRunner(h.oracle, h.attestor, chainClient, cfg, zerolog.Nop())
	require.NoError(t, err)
	runner.OnEvent(func(e Event) { h.events = append(h.events, e) })
	h.runner = runner
	return h
}

func (h *harness) stages() []Stage {
	out := make([]Stage, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Stage)
	}
	return out
}

func TestBuyHappyPath(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})

	run, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageConfirmed, run.Stage)
	require.Equal(t, FundsMoved, run.Outcome.Funds)
	require.Equal(t, []Stage{StagePriceFetched, StageDecided, StageAttested, StageSubmitted, StageConfirmed}, h.stages())

	// The broadcast calldata decodes back to the evaluated trade params.
	require.Len(t, h.backend.sent, 1)
	calldata := h.backend.sent[0].Data()
	tradeData, attBlob := unpackExecuteStrategy(t, calldata)
	params, err := vault.DecodeTradeData(tradeData)
	require.NoError(t, err)
	require.Equal(t, 0, params.AmountIn.Cmp(big.NewInt(1_000_000_000_000_000_000)))
	require.Equal(t, user, params.Recipient)

	att, err := attest.ParseBytes(attBlob)
	require.NoError(t, err)
	require.NoError(t, attest.Verify(att, h.enclave.PublicKey()))
}

func TestHoldShortCircuitsWithoutChainOrAttestation(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	h.oracle.quotes = btcQuote("500")

	run, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageConfirmed, run.Stage)
	require.Equal(t, FundsNotMoved, run.Outcome.Funds)
	require.Zero(t, h.attestor.calls, "HOLD must not request an attestation")
	require.Empty(t, h.backend.sent, "HOLD must not touch the chain")
	require.Equal(t, []Stage{StagePriceFetched, StageDecided, StageConfirmed}, h.stages())
}

func TestStaleQuoteFailsWithoutAttestation(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 2})
	h.oracle.errs = []error{fmt.Errorf("%w: feed is 10m old", oracle.ErrStaleQuote)}

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, KindStaleQuote, run.Outcome.Kind)
	require.Equal(t, FundsNotMoved, run.Outcome.Funds)
	require.Equal(t, 1, h.oracle.calls, "semantic errors must not be retried")
	require.Zero(t, h.attestor.calls)
}

func TestInvalidProofNeverAdvancesPastPriceFetch(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 2})
	h.oracle.errs = []error{fmt.Errorf("%w: id mismatch", oracle.ErrInvalidProof)}

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, KindInvalidProof, run.Outcome.Kind)
	require.Equal(t, []Stage{StageFailed}, h.stages())
	require.Equal(t, 1, h.oracle.calls)
}

func TestOracleTransientErrorIsRetried(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 2})
	h.oracle.errs = []error{
		fmt.Errorf("%w: connection refused", oracle.ErrOracleUnavailable),
		fmt.Errorf("%w: connection refused", oracle.ErrOracleUnavailable),
	}

	run, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageConfirmed, run.Stage)
	require.Equal(t, 3, h.oracle.calls)
}

func TestOracleRetriesExhausted(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 1})
	h.oracle.errs = []error{
		fmt.Errorf("%w: down", oracle.ErrOracleUnavailable),
		fmt.Errorf("%w: down", oracle.ErrOracleUnavailable),
	}

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, KindOracleUnavailable, run.Outcome.Kind)
	require.Equal(t, 2, h.oracle.calls)
}

func TestAttestationTransientErrorIsRetried(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 1})
	h.attestor.errs = []error{fmt.Errorf("%w: 503", attest.ErrAttestationUnavailable)}

	run, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageConfirmed, run.Stage)
	require.Equal(t, 2, h.attestor.calls)
}

func TestAttestationTimeoutSurfacesImmediately(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{Retries: 3})
	h.attestor.errs = []error{fmt.Errorf("%w after 12s", attest.ErrAttestationTimeout)}

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, KindAttestationTimeout, run.Outcome.Kind)
	require.Equal(t, 1, h.attestor.calls)
	require.Empty(t, h.backend.sent)
}

func TestSubmissionFailure(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	h.backend.sendErr = errors.New("txpool full")

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, KindSubmissionFailed, run.Outcome.Kind)
	require.Equal(t, FundsNotMoved, run.Outcome.Funds)
}

func TestOnChainRevertDecodesReason(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	h.backend.mineStatus = mined(ethtypes.ReceiptStatusFailed)
	h.backend.callReturn = revertData(t, "deadline exceeded")

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, StageRejected, run.Stage)
	require.Equal(t, KindOnChainRejected, run.Outcome.Kind)
	require.Equal(t, "deadline exceeded", run.Outcome.Reason)
	require.Equal(t, FundsNotMoved, run.Outcome.Funds)
}

func TestOnChainRevertWithoutReason(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	h.backend.mineStatus = mined(ethtypes.ReceiptStatusFailed)

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, KindUnknownRevert, run.Outcome.Kind)
}

func TestConfirmationTimeoutReportsUnknownFunds(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	h.backend.mineStatus = nil // never mined

	run, err := h.runner.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, KindConfirmationTimeout, run.Outcome.Kind)
	require.Equal(t, FundsUnknown, run.Outcome.Funds)
	require.NotEqual(t, common.Hash{}, run.Outcome.TxHash, "caller needs the tx reference")
	require.Contains(t, run.Outcome.Reason, run.TxHash.Hex())
}

func TestCancellationBeforeSubmission(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.runner.Execute(ctx)
	require.Error(t, err)
	require.Equal(t, KindCanceled, run.Outcome.Kind)
	require.Empty(t, h.backend.sent)
}

func TestRepeatedRunsAreIndependentAndIdentical(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})

	first, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	second, err := h.runner.Execute(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.Stage, second.Stage)
	require.Len(t, h.backend.sent, 2)

	td1, _ := unpackExecuteStrategy(t, h.backend.sent[0].Data())
	td2, _ := unpackExecuteStrategy(t, h.backend.sent[1].Data())
	p1, err := vault.DecodeTradeData(td1)
	require.NoError(t, err)
	p2, err := vault.DecodeTradeData(td2)
	require.NoError(t, err)
	require.Equal(t, 0, p1.AmountIn.Cmp(p2.AmountIn))
	require.Equal(t, p1.Path, p2.Path)
	require.Equal(t, p1.Recipient, p2.Recipient)

	// Nonces advanced: the second run did not reuse the first submission.
	require.NotEqual(t, h.backend.sent[0].Nonce(), h.backend.sent[1].Nonce())
}

func TestRetryRequiresTerminalPreviousRun(t *testing.T) {
	h := newHarness(t, testStrategy("100"), Config{})

	first, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, first.Terminal())

	second, err := h.runner.Retry(context.Background(), first)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.Attestation.ID, second.Attestation.ID)

	inflight := &Run{ID: uuid.New(), Stage: StageSubmitted}
	_, err = h.runner.Retry(context.Background(), inflight)
	require.Error(t, err)
}

func TestRunNeverReentersTerminalStage(t *testing.T) {
	r := newRun(testStrategy("100"))
	r.finalize(Outcome{Stage: StageFailed, Kind: KindStaleQuote, Reason: "stale", Funds: FundsNotMoved})
	require.Error(t, r.advance(StagePriceFetched))

	// A second finalize is ignored; the first outcome wins.
	r.finalize(Outcome{Stage: StageConfirmed, Funds: FundsMoved})
	require.Equal(t, KindStaleQuote, r.Outcome.Kind)
}

func TestMinOutputUsesImpliedCrossRate(t *testing.T) {
	strat := testStrategy("100000")
	strat.MaxSlippageBps = 50
	h := newHarness(t, strat, Config{InputPair: "FLR/USD"})
	h.oracle.quotes = map[string]oracle.PriceQuote{
		"BTC/USD": {Pair: "BTC/USD", Price: decimal.RequireFromString("95000")},
		"FLR/USD": {Pair: "FLR/USD", Price: decimal.RequireFromString("0.9975")},
	}

	run, err := h.runner.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageConfirmed, run.Stage)

	// rate = 0.9975 / 95000 = 0.0000105; 1e18 * rate * 0.995
	require.Equal(t, big.NewInt(10_447_500_000_000), run.Decision.Trade.MinAmountOut)
}

// unpackExecuteStrategy splits executeStrategy calldata into its two blobs.
func unpackExecuteStrategy(t *testing.T, calldata []byte) (tradeData, attestation []byte) {
	t.Helper()
	bytesT, err := abi.NewType("bytes", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: bytesT}, {Type: bytesT}}
	values, err := args.Unpack(calldata[4:])
	require.NoError(t, err)
	return values[0].([]byte), values[1].([]byte)
}

func revertData(t *testing.T, reason string) []byte {
	t.Helper()
	strT, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strT}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}
