package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeBackend struct {
	mu           sync.Mutex
	nonce        uint64
	sent         []*ethtypes.Transaction
	sendErr      error
	receipts     map[common.Hash]*ethtypes.Receipt
	receiptAfter int
	callReturn   []byte
	callErr      error
	polls        int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: map[common.Hash]*ethtypes.Receipt{}}
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
	b.polls++
	if b.polls <= b.receiptAfter {
		return nil, ethereum.NotFound
	}
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.callReturn, b.callErr
}

func newTestClient(t *testing.T, backend Backend, cfg Config) *Client {
	t.Helper()
	signer, err := NewPrivateKeySigner(testKey, 114)
	require.NoError(t, err)
	return NewClient(backend, signer, cfg)
}

func TestSubmitAssignsSequentialNonces(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, Config{})
	vault := common.HexToAddress("0x2531BB578B4AcB2FE478263c1C744d2F3200Cf68")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Submit(context.Background(), vault, []byte{0x01})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, backend.sent, 4)
	seen := map[uint64]bool{}
	for _, tx := range backend.sent {
		require.False(t, seen[tx.Nonce()], "nonce %d assigned twice", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	for n := uint64(0); n < 4; n++ {
		require.True(t, seen[n], "nonce %d missing", n)
	}
}

func TestSubmitBroadcastFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("txpool full")
	client := newTestClient(t, backend, Config{})

	_, err := client.Submit(context.Background(), common.Address{0x01}, nil)
	require.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestWaitMinedSuccess(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, Config{ConfirmPollInterval: 5 * time.Millisecond, ConfirmTimeout: time.Second})

	hash := common.HexToHash("0xabc1")
	backend.receipts[hash] = &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(42),
	}
	backend.receiptAfter = 2

	receipt, err := client.WaitMined(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
	require.GreaterOrEqual(t, backend.polls, 3)
}

func TestWaitMinedTimeout(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, Config{ConfirmPollInterval: 5 * time.Millisecond, ConfirmTimeout: 30 * time.Millisecond})

	_, err := client.WaitMined(context.Background(), common.HexToHash("0xdead"))
	require.ErrorIs(t, err, ErrConfirmationTimeout)
}

func revertData(t *testing.T, reason string) []byte {
	t.Helper()
	strT, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strT}}.Pack(reason)
	require.NoError(t, err)
	// Error(string) selector.
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func TestRevertReasonFromCallReturn(t *testing.T) {
	backend := newFakeBackend()
	backend.callReturn = revertData(t, "deadline exceeded")
	client := newTestClient(t, backend, Config{})

	to := common.HexToAddress("0x2531BB578B4AcB2FE478263c1C744d2F3200Cf68")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
	receipt := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(7)}

	reason := client.RevertReason(context.Background(), tx, receipt)
	require.Equal(t, "deadline exceeded", reason)
}

type rpcDataError struct {
	data string
}

func (e *rpcDataError) Error() string          { return "execution reverted" }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

func TestRevertReasonFromRPCError(t *testing.T) {
	backend := newFakeBackend()
	backend.callErr = &rpcDataError{data: "0x" + common.Bytes2Hex(revertData(t, "invalid attestation"))}
	client := newTestClient(t, backend, Config{})

	to := common.HexToAddress("0x01")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
	receipt := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(7)}

	reason := client.RevertReason(context.Background(), tx, receipt)
	require.Equal(t, "invalid attestation", reason)
}

func TestSignerAddressDerivation(t *testing.T) {
	signer, err := NewPrivateKeySigner("0x"+testKey, 114)
	require.NoError(t, err)
	require.Equal(t, int64(114), signer.ChainID().Int64())
	require.NotEqual(t, common.Address{}, signer.Address())

	_, err = NewPrivateKeySigner("nothex", 114)
	require.Error(t, err)
}
