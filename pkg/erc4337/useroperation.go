package erc4337

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"wallet-core/pkg/walleterr"
)

// UserOperationV6 is the flat-field UserOperation shape used by EntryPoint
// v0.6.
type UserOperationV6 struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// UserOperationV7 is the split-field UserOperation shape used by EntryPoint
// v0.7, which separates factory/paymaster data out of the wire form, while
// hashing always operates on the packed form (PackedUserOperation).
type UserOperationV7 struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	PreVerificationGas            *big.Int
	MaxPriorityFeePerGas          *big.Int
	MaxFeePerGas                  *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// PackedUserOperation is the wire/hash shape v0.7 collapses into: a single
// initCode blob, two packed 32-byte fields, and a single paymasterAndData
// blob, mirroring EntryPoint v0.7's own PackedUserOperation struct.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// pad16 writes v big-endian into dst, which must be a 16-byte half of one of
// the packed 32-byte fields (accountGasLimits, gasFees, the paymaster gas
// limits).
func pad16(dst []byte, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	b := v.Bytes()
	if len(b) > 16 {
		panic("erc4337: value does not fit in 16 bytes")
	}
	copy(dst[16-len(b):16], b)
}

// Pack converts a UserOperationV7 into its PackedUserOperation form:
// accountGasLimits[0:16] == verificationGasLimit,
// accountGasLimits[16:32] == callGasLimit, and gasFees is
// maxPriorityFeePerGas || maxFeePerGas analogously.
func (op UserOperationV7) Pack() PackedUserOperation {
	var initCode []byte
	if op.Factory != nil {
		initCode = make([]byte, 0, 20+len(op.FactoryData))
		initCode = append(initCode, op.Factory.Bytes()...)
		initCode = append(initCode, op.FactoryData...)
	}

	var accountGasLimits [32]byte
	pad16(accountGasLimits[0:16], op.VerificationGasLimit)
	pad16(accountGasLimits[16:32], op.CallGasLimit)

	var gasFees [32]byte
	pad16(gasFees[0:16], op.MaxPriorityFeePerGas)
	pad16(gasFees[16:32], op.MaxFeePerGas)

	var paymasterAndData []byte
	if op.Paymaster != nil {
		paymasterAndData = make([]byte, 0, 20+16+16+len(op.PaymasterData))
		paymasterAndData = append(paymasterAndData, op.Paymaster.Bytes()...)
		var verGas, postGas [16]byte
		pad16(verGas[:], op.PaymasterVerificationGasLimit)
		pad16(postGas[:], op.PaymasterPostOpGasLimit)
		paymasterAndData = append(paymasterAndData, verGas[:]...)
		paymasterAndData = append(paymasterAndData, postGas[:]...)
		paymasterAndData = append(paymasterAndData, op.PaymasterData...)
	}

	return PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              nonceOrZero(op.Nonce),
		InitCode:           initCode,
		CallData:           op.CallData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: nonceOrZero(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          op.Signature,
	}
}

func nonceOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// uint256Type/addressType/bytes32Type are the ABI primitive types used to
// build the tuple encodings below.
var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
)

// HashV06 reproduces EntryPoint v0.6's getUserOpHash: abi.encode the flat
// op (with initCode/callData/paymasterAndData hashed rather than embedded),
// keccak256 it, then keccak256 it again together with the entry point
// address and chain id.
func (op UserOperationV6) HashV06(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	args := abi.Arguments{
		{Type: addressType}, {Type: uint256Type}, {Type: bytes32Type}, {Type: bytes32Type},
		{Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type},
		{Type: uint256Type}, {Type: uint256Type}, {Type: bytes32Type},
	}
	packed, err := args.Pack(
		op.Sender,
		nonceOrZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		nonceOrZero(op.CallGasLimit),
		nonceOrZero(op.VerificationGasLimit),
		nonceOrZero(op.PreVerificationGas),
		nonceOrZero(op.MaxFeePerGas),
		nonceOrZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, walleterr.New("erc4337.HashV06", walleterr.KindServerProtocol, err)
	}
	innerHash := crypto.Keccak256Hash(packed)

	outerArgs := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint256Type}}
	outerPacked, err := outerArgs.Pack(innerHash, entryPoint, chainID)
	if err != nil {
		return common.Hash{}, walleterr.New("erc4337.HashV06", walleterr.KindServerProtocol, err)
	}
	return crypto.Keccak256Hash(outerPacked), nil
}

// HashV07 computes EntryPoint v0.7's getUserOpHash over the packed form:
// the same two-level keccak256(abi.encode(...)) construction as v0.6, but
// over the packed tuple's hashed initCode/callData/paymasterAndData.
func (op UserOperationV7) HashV07(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed := op.Pack()

	args := abi.Arguments{
		{Type: addressType}, {Type: uint256Type}, {Type: bytes32Type}, {Type: bytes32Type},
		{Type: bytes32Type}, {Type: uint256Type}, {Type: bytes32Type}, {Type: bytes32Type},
	}
	inner, err := args.Pack(
		packed.Sender,
		packed.Nonce,
		crypto.Keccak256Hash(packed.InitCode),
		crypto.Keccak256Hash(packed.CallData),
		packed.AccountGasLimits,
		packed.PreVerificationGas,
		packed.GasFees,
		crypto.Keccak256Hash(packed.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, walleterr.New("erc4337.HashV07", walleterr.KindServerProtocol, err)
	}
	innerHash := crypto.Keccak256Hash(inner)

	outerArgs := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint256Type}}
	outer, err := outerArgs.Pack(innerHash, entryPoint, chainID)
	if err != nil {
		return common.Hash{}, walleterr.New("erc4337.HashV07", walleterr.KindServerProtocol, err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// wireV6 / wireV7 are the hexified JSON shapes sent to eth_sendUserOperation
// / eth_estimateUserOperationGas, matching the bundler RPC's expected field
// names.
type wireV6 struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
	Signature            string `json:"signature"`
}

func (op UserOperationV6) MarshalWire() json.RawMessage {
	w := wireV6{
		Sender:               op.Sender.Hex(),
		Nonce:                hexutil.EncodeBig(nonceOrZero(op.Nonce)),
		InitCode:             hexutil.Encode(op.InitCode),
		CallData:             hexutil.Encode(op.CallData),
		CallGasLimit:         hexutil.EncodeBig(nonceOrZero(op.CallGasLimit)),
		VerificationGasLimit: hexutil.EncodeBig(nonceOrZero(op.VerificationGasLimit)),
		PreVerificationGas:   hexutil.EncodeBig(nonceOrZero(op.PreVerificationGas)),
		MaxFeePerGas:         hexutil.EncodeBig(nonceOrZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: hexutil.EncodeBig(nonceOrZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     hexutil.Encode(op.PaymasterAndData),
		Signature:            hexutil.Encode(op.Signature),
	}
	raw, _ := json.Marshal(w)
	return raw
}

type wireV7 struct {
	Sender                        string `json:"sender"`
	Nonce                         string `json:"nonce"`
	Factory                       string `json:"factory,omitempty"`
	FactoryData                   string `json:"factoryData,omitempty"`
	CallData                      string `json:"callData"`
	VerificationGasLimit          string `json:"verificationGasLimit"`
	CallGasLimit                  string `json:"callGasLimit"`
	PreVerificationGas            string `json:"preVerificationGas"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
	MaxFeePerGas                  string `json:"maxFeePerGas"`
	Paymaster                     string `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 string `json:"paymasterData,omitempty"`
	Signature                     string `json:"signature"`
}

func (op UserOperationV7) MarshalWire() json.RawMessage {
	w := wireV7{
		Sender:               op.Sender.Hex(),
		Nonce:                hexutil.EncodeBig(nonceOrZero(op.Nonce)),
		CallData:             hexutil.Encode(op.CallData),
		VerificationGasLimit: hexutil.EncodeBig(nonceOrZero(op.VerificationGasLimit)),
		CallGasLimit:         hexutil.EncodeBig(nonceOrZero(op.CallGasLimit)),
		PreVerificationGas:   hexutil.EncodeBig(nonceOrZero(op.PreVerificationGas)),
		MaxPriorityFeePerGas: hexutil.EncodeBig(nonceOrZero(op.MaxPriorityFeePerGas)),
		MaxFeePerGas:         hexutil.EncodeBig(nonceOrZero(op.MaxFeePerGas)),
		Signature:            hexutil.Encode(op.Signature),
	}
	if op.Factory != nil {
		w.Factory = op.Factory.Hex()
		w.FactoryData = hexutil.Encode(op.FactoryData)
	}
	if op.Paymaster != nil {
		w.Paymaster = op.Paymaster.Hex()
		w.PaymasterVerificationGasLimit = hexutil.EncodeBig(nonceOrZero(op.PaymasterVerificationGasLimit))
		w.PaymasterPostOpGasLimit = hexutil.EncodeBig(nonceOrZero(op.PaymasterPostOpGasLimit))
		w.PaymasterData = hexutil.Encode(op.PaymasterData)
	}
	raw, _ := json.Marshal(w)
	return raw
}

// ErrUnsupportedVersion is returned when a UserOp is built against an
// EntryPoint address that does not string-match either canonical address
// and no override version was supplied.
var ErrUnsupportedVersion = fmt.Errorf("erc4337: unsupported or unrecognized EntryPoint version")
