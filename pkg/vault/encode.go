// Package vault encodes calls to the on-chain vault verifier/executor.
// The contract exposes executeStrategy(bytes tradeData, bytes attestation)
// and decodes tradeData positionally as (uint256 amountIn, uint256
// amountOutMin, address[] path, address to, uint256 deadline); any layout
// mismatch surfaces as a generic revert, so the encoding here is fixed.
package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
)

var (
	tradeDataArgs abi.Arguments
	callArgs      abi.Arguments

	// executeStrategy(bytes,bytes)
	methodID []byte
)

func init() {
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	addressSliceT, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}

	tradeDataArgs = abi.Arguments{
		{Name: "amountIn", Type: uint256T},
		{Name: "amountOutMin", Type: uint256T},
		{Name: "path", Type: addressSliceT},
		{Name: "to", Type: addressT},
		{Name: "deadline", Type: uint256T},
	}
	callArgs = abi.Arguments{
		{Name: "tradeData", Type: bytesT},
		{Name: "attestation", Type: bytesT},
	}
	methodID = crypto.Keccak256([]byte("executeStrategy(bytes,bytes)"))[:4]
}

// EncodeTradeData packs trade parameters in the vault's fixed positional layout.
func EncodeTradeData(p strategy.TradeParams) ([]byte, error) {
	if p.AmountIn == nil {
		return nil, fmt.Errorf("amount in is required")
	}
	minOut := p.MinAmountOut
	if minOut == nil {
		minOut = new(big.Int)
	}
	data, err := tradeDataArgs.Pack(
		p.AmountIn,
		minOut,
		p.Path,
		p.Recipient,
		new(big.Int).SetUint64(p.Deadline),
	)
	if err != nil {
		return nil, fmt.Errorf("pack trade data: %w", err)
	}
	return data, nil
}

// DecodeTradeData unpacks trade data; the contract-side inverse, exposed
// for round-trip checks.
func DecodeTradeData(data []byte) (strategy.TradeParams, error) {
	values, err := tradeDataArgs.Unpack(data)
	if err != nil {
		return strategy.TradeParams{}, fmt.Errorf("unpack trade data: %w", err)
	}
	return strategy.TradeParams{
		AmountIn:     values[0].(*big.Int),
		MinAmountOut: values[1].(*big.Int),
		Path:         values[2].([]common.Address),
		Recipient:    values[3].(common.Address),
		Deadline:     values[4].(*big.Int).Uint64(),
	}, nil
}

// ExecuteStrategyCalldata builds the full calldata for
// executeStrategy(tradeData, attestation).
func ExecuteStrategyCalldata(tradeData, attestation []byte) ([]byte, error) {
	if len(tradeData) == 0 {
		return nil, fmt.Errorf("trade data is required")
	}
	if len(attestation) == 0 {
		return nil, fmt.Errorf("attestation is required")
	}
	packed, err := callArgs.Pack(tradeData, attestation)
	if err != nil {
		return nil, fmt.Errorf("pack call args: %w", err)
	}
	return append(append([]byte(nil), methodID...), packed...), nil
}
