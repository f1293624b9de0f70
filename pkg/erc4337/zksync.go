package erc4337

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"wallet-core/pkg/walleterr"
)

// ZkTransaction is a native ZK-Sync EIP-712 transaction: no UserOperation,
// no EntryPoint, signed directly by the personal account under the
// ("zkSync", "2", chainId) domain.
type ZkTransaction struct {
	ChainID              int64
	Nonce                uint64
	From                 common.Address
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAddress     *common.Address
	PaymasterInput       []byte
}

// zkSyncDomain builds the fixed ("zkSync", "2", chainId) EIP-712 domain
// ZK-Sync native transactions are signed under, distinct from the
// ("Account","1",chainId,account) domain used for smart-account session
// keys.
func zkSyncDomain(chainID int64) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:    "zkSync",
		Version: "2",
		ChainId: (*math.HexOrDecimal256)(big.NewInt(chainID)),
	}
}

var zkTransactionTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// zkGasPerPubdataByteLimit is ZK-Sync's standard pubdata gas limit, a
// protocol constant rather than something bundlers report per request.
const zkGasPerPubdataByteLimit = 50000

func (tx ZkTransaction) typedData() apitypes.TypedData {
	paymaster := "0"
	paymasterInput := "0x"
	if tx.PaymasterAddress != nil {
		paymaster = new(big.Int).SetBytes(tx.PaymasterAddress.Bytes()).String()
		paymasterInput = hexutil.Encode(tx.PaymasterInput)
	}
	return apitypes.TypedData{
		Types:       zkTransactionTypes,
		PrimaryType: "Transaction",
		Domain:      zkSyncDomain(tx.ChainID),
		Message: apitypes.TypedDataMessage{
			"txType":                 "113",
			"from":                   new(big.Int).SetBytes(tx.From.Bytes()).String(),
			"to":                     new(big.Int).SetBytes(tx.To.Bytes()).String(),
			"gasLimit":               tx.GasLimit.String(),
			"gasPerPubdataByteLimit": big.NewInt(zkGasPerPubdataByteLimit).String(),
			"maxFeePerGas":           tx.MaxFeePerGas.String(),
			"maxPriorityFeePerGas":   tx.MaxPriorityFeePerGas.String(),
			"paymaster":              paymaster,
			"nonce":                  new(big.Int).SetUint64(tx.Nonce).String(),
			"value":                  valueOrZeroBig(tx.Value).String(),
			"data":                   hexutil.Encode(tx.Data),
			"factoryDeps":            []any{},
			"paymasterInput":         paymasterInput,
		},
	}
}

func valueOrZeroBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// zkWireTransaction is the JSON shape zk_broadcastTransaction expects: the
// transaction fields plus the computed 65-byte signature.
type zkWireTransaction struct {
	ChainID              string `json:"chainId"`
	Nonce                string `json:"nonce"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	Value                string `json:"value"`
	Data                 string `json:"data"`
	GasLimit             string `json:"gasLimit"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	Paymaster            string `json:"paymaster,omitempty"`
	PaymasterInput       string `json:"paymasterInput,omitempty"`
	Signature            string `json:"customSignature"`
}

func (tx ZkTransaction) marshalWire(sig []byte) json.RawMessage {
	w := zkWireTransaction{
		ChainID:              hexutil.EncodeBig(big.NewInt(tx.ChainID)),
		Nonce:                hexutil.EncodeUint64(tx.Nonce),
		From:                 tx.From.Hex(),
		To:                   tx.To.Hex(),
		Value:                hexutil.EncodeBig(valueOrZeroBig(tx.Value)),
		Data:                 hexutil.Encode(tx.Data),
		GasLimit:             hexutil.EncodeBig(tx.GasLimit),
		MaxFeePerGas:         hexutil.EncodeBig(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: hexutil.EncodeBig(tx.MaxPriorityFeePerGas),
		Signature:            hexutil.Encode(sig),
	}
	if tx.PaymasterAddress != nil {
		w.Paymaster = tx.PaymasterAddress.Hex()
		w.PaymasterInput = hexutil.Encode(tx.PaymasterInput)
	}
	raw, _ := json.Marshal(w)
	return raw
}

// ZkSendTransaction is the ZK-Sync transaction path: no UserOp, no
// EntryPoint. If gasless is requested, it first asks the bundler's
// zk_paymasterData method for a sponsoring paymaster and input, then signs
// the resulting EIP-712 transaction and broadcasts it.
func ZkSendTransaction(ctx context.Context, bundler BundlerClient, account PersonalAccount, tx ZkTransaction, gasless bool) (txHash string, err error) {
	if gasless {
		unsigned := tx.marshalWire(DummySignature)
		paymasterAddr, input, err := bundler.ZkPaymasterData(ctx, unsigned)
		if err != nil {
			return "", err
		}
		if paymasterAddr != "" {
			pm := common.HexToAddress(paymasterAddr)
			tx.PaymasterAddress = &pm
			tx.PaymasterInput = hexutil.MustDecode(input)
		}
	}

	sig, err := account.SignTypedDataV4(tx.typedData())
	if err != nil {
		return "", walleterr.New("erc4337.ZkSendTransaction", walleterr.KindInvalidSignature, err)
	}

	signedTx := tx.marshalWire(sig)
	return bundler.ZkBroadcastTransaction(ctx, signedTx)
}
