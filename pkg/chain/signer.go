package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one account. Wallet context is passed in
// explicitly at run start; nothing reads ambient account state.
type Signer interface {
	// Address is the account the signer controls.
	Address() common.Address
	// SignTx signs tx for the signer's chain.
	SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
	// ChainID is the EIP-155 chain the signer is bound to.
	ChainID() *big.Int
}

// PrivateKeySigner signs with a local secp256k1 key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  ethtypes.Signer
}

// NewPrivateKeySigner parses a hex private key (with or without 0x) and
// binds it to chainID.
func NewPrivateKeySigner(hexKey string, chainID int64) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	id := big.NewInt(chainID)
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: id,
		signer:  ethtypes.LatestSignerForChainID(id),
	}, nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

func (s *PrivateKeySigner) SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}
