package signer

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"wallet-core/pkg/walleterr"
)

// HashTypedData computes the EIP-712 signing hash
// Keccak256(0x1901 || domainSeparator || hashStruct(message)) for a fully
// assembled apitypes.TypedData value, the same construction the ERC-4337
// packed-UserOperation v0.8 hash and the smart wallet's session-key requests
// both use.
func HashTypedData(data apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return nil, walleterr.New("signer.HashTypedData", walleterr.KindInvalidSignature, err)
	}
	messageHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return nil, walleterr.New("signer.HashTypedData", walleterr.KindInvalidSignature, err)
	}
	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, messageHash...)
	return crypto.Keccak256(rawData), nil
}

// SignTypedDataV4 signs an arbitrary EIP-712 typed-data payload.
func (a *PrivateKeyAccount) SignTypedDataV4(data apitypes.TypedData) ([]byte, error) {
	hash, err := HashTypedData(data)
	if err != nil {
		return nil, err
	}
	return a.signHash(hash)
}

// SignTypedDataV4JSON parses a JSON-encoded EIP-712 payload (the form dapps
// hand to eth_signTypedData_v4) and signs it.
func (a *PrivateKeyAccount) SignTypedDataV4JSON(raw []byte) ([]byte, error) {
	var data apitypes.TypedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, walleterr.New("signer.SignTypedDataV4JSON", walleterr.KindInvalidSignature, err)
	}
	return a.SignTypedDataV4(data)
}

// AccountDomain builds the ("Account", "1", chainId, account) EIP-712 domain
// used both for session-key permission requests and for the smart wallet's
// AccountMessage wrapper in ERC-1271 PersonalSign verification.
func AccountDomain(chainID int64, account common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              "Account",
		Version:           "1",
		ChainId:           hexOrDecimal(chainID),
		VerifyingContract: account.Hex(),
	}
}

func hexOrDecimal(v int64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(big.NewInt(v))
}
