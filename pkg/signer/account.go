// Package signer implements the secp256k1 signing primitives a
// PrivateKeyAccount exposes to the rest of the wallet core: personal_sign,
// eth_sign, EIP-712 typed-data signing, and legacy/EIP-1559 transaction
// signing. It is the landing place for the key material the embedded
// wallet reconstructs from two Shamir shares.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"wallet-core/pkg/walleterr"
)

// PrivateKeyAccount owns a 32-byte secp256k1 private key for the lifetime of
// a signed-in session. Zero is called by SignOut; after that the account
// must not be used.
type PrivateKeyAccount struct {
	key *ecdsa.PrivateKey
}

// FromPrivateKeyBytes builds a PrivateKeyAccount from a raw 32-byte
// secp256k1 scalar. Callers holding shorter secret material (the embedded
// wallet's 16-byte shared secret) left-pad it to 32 bytes first.
func FromPrivateKeyBytes(raw []byte) (*PrivateKeyAccount, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, walleterr.New("signer.FromPrivateKeyBytes", walleterr.KindShareCorrupt, err)
	}
	return &PrivateKeyAccount{key: key}, nil
}

// GenerateAccount creates a fresh random account, used by tests.
func GenerateAccount() (*PrivateKeyAccount, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, walleterr.New("signer.GenerateAccount", walleterr.KindShareCorrupt, err)
	}
	return &PrivateKeyAccount{key: key}, nil
}

// Address returns the checksummed Ethereum address for the account.
func (a *PrivateKeyAccount) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

// Zero overwrites the private key's scalar in place, following the
// recommendation that reconstructed key material not outlive SignOut.
func (a *PrivateKeyAccount) Zero() {
	if a.key == nil {
		return
	}
	a.key.D.SetInt64(0)
}

// EthSign performs a raw ECDSA signature over Keccak-256(data) with no
// prefix, returning 65 bytes of r||s||v (v in {27,28}).
func (a *PrivateKeyAccount) EthSign(data []byte) ([]byte, error) {
	hash := crypto.Keccak256(data)
	return a.signHash(hash)
}

// PersonalSign implements the personal_sign convention: ECDSA sign of
// Keccak-256("\x19Ethereum Signed Message:\n" || len(msg) || msg).
func (a *PrivateKeyAccount) PersonalSign(msg []byte) ([]byte, error) {
	hash := PersonalMessageHash(msg)
	return a.signHash(hash)
}

// PersonalMessageHash computes the EIP-191 personal-message hash for msg,
// exposed so callers (notably the smart wallet facade) can compute the same
// hash an on-chain isValidSignature check will reproduce.
func PersonalMessageHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256(append([]byte(prefix), msg...))
}

func (a *PrivateKeyAccount) signHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, a.key)
	if err != nil {
		return nil, walleterr.New("signer.signHash", walleterr.KindInvalidSignature, err)
	}
	// crypto.Sign returns v in {0,1}; normalize to the 27/28 convention
	// personal_sign/eth_sign callers expect. Callers must not re-adjust.
	sig[64] += 27
	return sig, nil
}

// RecoverAddressFromPersonalSign inverts PersonalSign, recovering the
// signer's address from a message and its 65-byte r||s||v signature.
func RecoverAddressFromPersonalSign(msg, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, walleterr.New("signer.RecoverAddressFromPersonalSign", walleterr.KindInvalidSignature, fmt.Errorf("signature must be 65 bytes, got %d", len(sig)))
	}
	hash := PersonalMessageHash(msg)
	return recoverFromHash(hash, sig)
}

func recoverFromHash(hash, sig []byte) (common.Address, error) {
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, walleterr.New("signer.recoverFromHash", walleterr.KindInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignTransaction signs a legacy (EIP-155) or EIP-1559 transaction depending
// on which gas fields are populated in input, delegating to types.SignTx
// with the matching signer.
func (a *PrivateKeyAccount) SignTransaction(input TransactionInput, chainID *big.Int) (string, error) {
	tx, err := input.toTx()
	if err != nil {
		return "", err
	}

	var signer types.Signer
	if input.GasPrice != nil {
		signer = types.NewEIP155Signer(chainID)
	} else {
		signer = types.NewLondonSigner(chainID)
	}

	signedTx, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return "", walleterr.New("signer.SignTransaction", walleterr.KindInvalidSignature, err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return "", walleterr.New("signer.SignTransaction", walleterr.KindInvalidSignature, err)
	}
	return hexutil.Encode(raw), nil
}

// TransactionInput is the subset of transaction fields SignTransaction needs.
type TransactionInput struct {
	Nonce                uint64
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
	Gas                  uint64
	GasPrice             *big.Int // set => legacy EIP-155 RLP
	MaxFeePerGas         *big.Int // set (with MaxPriorityFeePerGas) => EIP-1559
	MaxPriorityFeePerGas *big.Int
	ChainID              *big.Int
}

func (t TransactionInput) toTx() (*types.Transaction, error) {
	if t.GasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    t.Nonce,
			To:       t.To,
			Value:    valueOrZero(t.Value),
			Gas:      t.Gas,
			GasPrice: t.GasPrice,
			Data:     t.Data,
		}), nil
	}
	if t.MaxFeePerGas == nil || t.MaxPriorityFeePerGas == nil {
		return nil, walleterr.New("signer.TransactionInput.toTx", walleterr.KindServerProtocol, fmt.Errorf("either gasPrice or both maxFeePerGas and maxPriorityFeePerGas must be set"))
	}
	if t.ChainID == nil {
		return nil, walleterr.New("signer.TransactionInput.toTx", walleterr.KindServerProtocol, fmt.Errorf("chainID is required for EIP-1559 transactions"))
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.ChainID,
		Nonce:     t.Nonce,
		To:        t.To,
		Value:     valueOrZero(t.Value),
		Gas:       t.Gas,
		GasTipCap: t.MaxPriorityFeePerGas,
		GasFeeCap: t.MaxFeePerGas,
		Data:      t.Data,
	}), nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
