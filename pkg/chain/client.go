// Package chain submits signed transactions and tracks them to a receipt.
// It is the only component that talks to the RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrSubmissionFailed wraps signing/broadcast failures.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrConfirmationTimeout means the transaction was broadcast but never
	// mined within the wait bound. The run is abandoned; the caller holds
	// the transaction hash for manual follow-up.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

// Backend is the node surface the client needs, satisfied by
// *ethclient.Client.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config controls submission and confirmation behavior.
type Config struct {
	BroadcastTimeout    time.Duration
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
	GasLimit            uint64
}

// DefaultConfig returns the submission defaults: a short broadcast window
// and a confirmation wait covering several block intervals.
func DefaultConfig() Config {
	return Config{
		BroadcastTimeout:    30 * time.Second,
		ConfirmPollInterval: 5 * time.Second,
		ConfirmTimeout:      3 * time.Minute,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.BroadcastTimeout <= 0 {
		c.BroadcastTimeout = d.BroadcastTimeout
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = d.ConfirmPollInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	return c
}

// Client signs and broadcasts transactions for one signer account.
// Nonce assignment is serialized: concurrent runs sharing a signer queue
// behind nonceMu so they cannot collide.
type Client struct {
	backend Backend
	signer  Signer
	cfg     Config

	nonceMu sync.Mutex
}

// NewClient creates a submission client.
func NewClient(backend Backend, signer Signer, cfg Config) *Client {
	return &Client{backend: backend, signer: signer, cfg: cfg.normalize()}
}

// Signer exposes the account driving submissions.
func (c *Client) Signer() Signer {
	return c.signer
}

// Submit signs and broadcasts a contract call and returns the signed
// transaction. The nonce is assigned and the transaction sent under one
// lock so a second concurrent Submit observes the incremented pending nonce.
func (c *Client) Submit(ctx context.Context, to common.Address, calldata []byte) (*ethtypes.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.BroadcastTimeout)
	defer cancel()

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: pending nonce: %v", ErrSubmissionFailed, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", ErrSubmissionFailed, err)
	}

	gasLimit := c.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       &to,
			GasPrice: gasPrice,
			Data:     calldata,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: estimate gas: %v", ErrSubmissionFailed, err)
		}
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: broadcast: %v", ErrSubmissionFailed, err)
	}
	return signed, nil
}

// WaitMined polls for the receipt until the transaction is mined or the
// confirmation timeout elapses. The wait deliberately ignores caller
// cancellation: once broadcast, a run can only be watched or abandoned.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(c.cfg.ConfirmTimeout)
	ticker := time.NewTicker(c.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			// Transient RPC trouble; keep polling until the deadline.
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w after %s: %v", ErrConfirmationTimeout, c.cfg.ConfirmTimeout, err)
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrConfirmationTimeout, c.cfg.ConfirmTimeout)
		}
		<-ticker.C
	}
}

// RevertReason re-executes the mined call to recover the revert string.
// Returns "" when the node gives nothing decodable.
func (c *Client) RevertReason(ctx context.Context, tx *ethtypes.Transaction, receipt *ethtypes.Receipt) string {
	msg := ethereum.CallMsg{
		From:     c.signer.Address(),
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	data, err := c.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		return reasonFromError(err)
	}
	return reasonFromData(data)
}
