package erc4337

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"wallet-core/pkg/chain"
	"wallet-core/pkg/walleterr"
)

// PersonalAccount is the signing capability this package needs from whatever
// wallet sits behind the smart account: a personal_sign over an arbitrary
// hash, EIP-712 typed-data signing (the ZK-Sync transaction form), and the
// address those operations bind to. External signers (an EOA or an injected
// wallet) stringify the hash before signing; the internal signer this module
// ships (pkg/signer.PrivateKeyAccount) signs the raw bytes directly, so the
// distinction is captured here rather than forced on every caller.
type PersonalAccount interface {
	Address() common.Address
	PersonalSign(msg []byte) ([]byte, error)
	SignTypedDataV4(data apitypes.TypedData) ([]byte, error)
}

// externalSigner is an optional capability a PersonalAccount implements to
// opt into the external-signer convention: sign the hash's hex string form
// rather than its raw bytes, matching wallets that stringify before
// hashing. The internal signer (pkg/signer.PrivateKeyAccount) does not
// implement this, so it defaults to raw-byte signing.
type externalSigner interface {
	PersonalAccount
	IsExternalSigner() bool
}

// signUserOpHash applies the signer-kind distinction: an external
// signer receives the 0x-prefixed hex string of the hash (re-hashed
// internally by personal_sign), an internal signer receives the raw hash
// bytes directly.
func signUserOpHash(signer PersonalAccount, hash common.Hash) ([]byte, error) {
	if ext, ok := signer.(externalSigner); ok && ext.IsExternalSigner() {
		return signer.PersonalSign([]byte(hash.Hex()))
	}
	return signer.PersonalSign(hash.Bytes())
}

// simpleAccountFactoryABI is the minimal factory surface the builder needs:
// computing a counterfactual account address and the createAccount calldata
// used as v0.6's initCode / v0.7's factoryData.
const simpleAccountFactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "salt", "type": "uint256"}
		],
		"name": "createAccount",
		"outputs": [{"internalType": "contract SimpleAccount", "name": "ret", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "salt", "type": "uint256"}
		],
		"name": "getAccountAddress",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// entryPointABI covers only the EntryPoint method the builder calls
// directly (getNonce); getUserOpHash is not called on-chain because HashV06/HashV07
// reproduce it locally, saving an RPC round trip.
const entryPointABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "sender", "type": "address"},
			{"internalType": "uint192", "name": "key", "type": "uint192"}
		],
		"name": "getNonce",
		"outputs": [{"internalType": "uint256", "name": "nonce", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	factoryABI          = mustParseABI(simpleAccountFactoryABI)
	entryPointABIParsed = mustParseABI(entryPointABI)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("erc4337: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// BuildParams describes one call/target a caller wants executed through the
// smart account, independent of EntryPoint version.
type BuildParams struct {
	ChainID     int64
	Account     common.Address
	Owner       common.Address
	FactoryAddr common.Address
	EntryPoint  common.Address
	CallData    []byte
	Sponsored   bool
	// StateOverrides is forwarded to eth_estimateUserOperationGas; the
	// ERC-20 paymaster path uses it to pin the account's token balance slot
	// so estimation succeeds regardless of real balance.
	StateOverrides map[string]any
}

// Builder assembles, estimates, paymaster-decorates,
// hashes, signs, and submits a UserOperation against either EntryPoint
// version, given a chain registry for on-chain reads and a bundler for
// off-chain RPCs.
type Builder struct {
	chains  *chain.Registry
	bundler BundlerClient

	mu          sync.Mutex
	isApproving map[common.Address]bool
}

// NewBuilder wires a Builder to a chain registry and a bundler client.
func NewBuilder(chains *chain.Registry, bundler BundlerClient) *Builder {
	return &Builder{chains: chains, bundler: bundler, isApproving: make(map[common.Address]bool)}
}

// resolveInitCode implements step 1 of the common pipeline: if the account
// already has code on chain, no factory data is needed; otherwise it packs
// createAccount(owner, salt=0) against the configured factory.
func (b *Builder) resolveInitCode(ctx context.Context, p BuildParams) (factoryAddr common.Address, factoryData []byte, err error) {
	deployed, err := b.chains.IsContractDeployed(ctx, p.ChainID, p.Account)
	if err != nil {
		return common.Address{}, nil, err
	}
	if deployed {
		return common.Address{}, nil, nil
	}
	data, err := factoryABI.Pack("createAccount", p.Owner, big.NewInt(0))
	if err != nil {
		return common.Address{}, nil, walleterr.New("erc4337.resolveInitCode", walleterr.KindServerProtocol, err)
	}
	return p.FactoryAddr, data, nil
}

// resolveNonce implements step 2: a random 192-bit key namespaces the nonce
// so concurrent callers avoid coordinating on a single incrementing counter;
// collisions are resolved by the EntryPoint itself.
func (b *Builder) resolveNonce(ctx context.Context, p BuildParams) (*big.Int, error) {
	var keyBytes [24]byte
	if _, err := rand.Read(keyBytes[:]); err != nil {
		return nil, walleterr.New("erc4337.resolveNonce", walleterr.KindServerProtocol, err)
	}
	key := new(big.Int).SetBytes(keyBytes[:])

	client, err := b.chains.Client(p.ChainID)
	if err != nil {
		return nil, err
	}
	data, err := entryPointABIParsed.Pack("getNonce", p.Account, key)
	if err != nil {
		return nil, walleterr.New("erc4337.resolveNonce", walleterr.KindServerProtocol, err)
	}
	entryPoint := p.EntryPoint
	out, err := client.CallContract(ctx, callMsg(entryPoint, data), nil)
	if err != nil {
		return nil, walleterr.New("erc4337.resolveNonce", walleterr.KindBundlerError, err)
	}
	vals, err := entryPointABIParsed.Unpack("getNonce", out)
	if err != nil || len(vals) != 1 {
		return nil, walleterr.New("erc4337.resolveNonce", walleterr.KindServerProtocol, fmt.Errorf("unexpected getNonce result"))
	}
	nonce, ok := vals[0].(*big.Int)
	if !ok {
		return nil, walleterr.New("erc4337.resolveNonce", walleterr.KindServerProtocol, fmt.Errorf("getNonce returned non-uint256"))
	}
	return nonce, nil
}

// gasPrice implements step 3, preferring the bundler's own oracle and
// falling back to the chain's suggested fees when the bundler method is
// unavailable.
func (b *Builder) gasPrice(ctx context.Context, chainID int64) (maxFee, maxPriority *big.Int, err error) {
	maxFeeHex, maxPriorityHex, err := b.bundler.GetUserOperationGasPrice(ctx)
	if err == nil {
		maxFee = hexOrNil(maxFeeHex)
		maxPriority = hexOrNil(maxPriorityHex)
		if maxFee != nil && maxPriority != nil {
			return maxFee, maxPriority, nil
		}
	}
	return b.chains.SuggestGasFees(ctx, chainID)
}

func hexOrNil(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil
	}
	return v
}

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

// BuildAndSendV06 runs the full pipeline for an EntryPoint v0.6 UserOp:
// resolve initCode/nonce/gas, two-phase paymaster+estimate, hash, sign, and
// submit, returning the eventual transaction hash once the bundler reports
// the operation mined.
func (b *Builder) BuildAndSendV06(ctx context.Context, p BuildParams, signer PersonalAccount) (txHash string, err error) {
	factoryAddr, factoryData, err := b.resolveInitCode(ctx, p)
	if err != nil {
		return "", err
	}
	var initCode []byte
	if factoryData != nil {
		initCode = append(append([]byte{}, factoryAddr.Bytes()...), factoryData...)
	}

	nonce, err := b.resolveNonce(ctx, p)
	if err != nil {
		return "", err
	}
	maxFee, maxPriority, err := b.gasPrice(ctx, p.ChainID)
	if err != nil {
		return "", err
	}

	op := UserOperationV6{
		Sender:               p.Account,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             p.CallData,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
		Signature:            DummySignature,
	}

	if p.Sponsored {
		if err := b.decoratePaymasterV06(ctx, &op, p.EntryPoint); err != nil {
			return "", err
		}
	}

	est, err := b.bundler.EstimateUserOperationGas(ctx, op.MarshalWire(), p.EntryPoint.Hex(), p.StateOverrides)
	if err != nil {
		return "", err
	}
	op.PreVerificationGas = hexOrNil(est.PreVerificationGas)
	op.VerificationGasLimit = hexOrNil(est.VerificationGasLimit)
	callGasLimit := hexOrNil(est.CallGasLimit)
	if callGasLimit == nil {
		callGasLimit = big.NewInt(0)
	}
	if len(initCode) > 0 {
		callGasLimit = new(big.Int).Add(callGasLimit, big.NewInt(CallGasLimitPadV06))
	}
	op.CallGasLimit = callGasLimit

	if p.Sponsored {
		if err := b.decoratePaymasterV06(ctx, &op, p.EntryPoint); err != nil {
			return "", err
		}
	}

	hash, err := op.HashV06(p.EntryPoint, big.NewInt(p.ChainID))
	if err != nil {
		return "", err
	}
	sig, err := signUserOpHash(signer, hash)
	if err != nil {
		return "", walleterr.New("erc4337.BuildAndSendV06", walleterr.KindInvalidSignature, err)
	}
	op.Signature = sig

	userOpHash, err := b.bundler.SendUserOperation(ctx, op.MarshalWire(), p.EntryPoint.Hex())
	if err != nil {
		return "", err
	}
	return b.pollReceipt(ctx, userOpHash)
}

func (b *Builder) decoratePaymasterV06(ctx context.Context, op *UserOperationV6, entryPoint common.Address) error {
	raw, err := b.bundler.SponsorUserOperation(ctx, op.MarshalWire(), entryPoint.Hex())
	if err != nil {
		return err
	}
	var out struct {
		PaymasterAndData string `json:"paymasterAndData"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return walleterr.New("erc4337.decoratePaymasterV06", walleterr.KindServerProtocol, err)
	}
	if out.PaymasterAndData != "" {
		op.PaymasterAndData = hexutil.MustDecode(out.PaymasterAndData)
	}
	return nil
}

// BuildAndSendV07 is the v0.7 analogue of BuildAndSendV06: same pipeline,
// split factory/paymaster fields and packed hashing per HashV07.
func (b *Builder) BuildAndSendV07(ctx context.Context, p BuildParams, signer PersonalAccount) (txHash string, err error) {
	factoryAddr, factoryData, err := b.resolveInitCode(ctx, p)
	if err != nil {
		return "", err
	}
	var factoryPtr *common.Address
	if factoryData != nil {
		fa := factoryAddr
		factoryPtr = &fa
	}

	nonce, err := b.resolveNonce(ctx, p)
	if err != nil {
		return "", err
	}
	maxFee, maxPriority, err := b.gasPrice(ctx, p.ChainID)
	if err != nil {
		return "", err
	}

	op := UserOperationV7{
		Sender:               p.Account,
		Nonce:                nonce,
		Factory:              factoryPtr,
		FactoryData:          factoryData,
		CallData:             p.CallData,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
		Signature:            DummySignature,
	}

	if p.Sponsored {
		if err := b.decoratePaymasterV07(ctx, &op, p.EntryPoint); err != nil {
			return "", err
		}
	}

	est, err := b.bundler.EstimateUserOperationGas(ctx, op.MarshalWire(), p.EntryPoint.Hex(), p.StateOverrides)
	if err != nil {
		return "", err
	}
	op.PreVerificationGas = hexOrNil(est.PreVerificationGas)
	op.VerificationGasLimit = hexOrNil(est.VerificationGasLimit)
	callGasLimit := hexOrNil(est.CallGasLimit)
	if callGasLimit == nil {
		callGasLimit = big.NewInt(0)
	}
	if factoryPtr != nil {
		callGasLimit = new(big.Int).Add(callGasLimit, big.NewInt(CallGasLimitPadV07))
	}
	op.CallGasLimit = callGasLimit
	if est.PaymasterVerificationGasLimit != "" {
		op.PaymasterVerificationGasLimit = hexOrNil(est.PaymasterVerificationGasLimit)
	}

	if p.Sponsored {
		if err := b.decoratePaymasterV07(ctx, &op, p.EntryPoint); err != nil {
			return "", err
		}
	}

	hash, err := op.HashV07(p.EntryPoint, big.NewInt(p.ChainID))
	if err != nil {
		return "", err
	}
	sig, err := signUserOpHash(signer, hash)
	if err != nil {
		return "", walleterr.New("erc4337.BuildAndSendV07", walleterr.KindInvalidSignature, err)
	}
	op.Signature = sig

	userOpHash, err := b.bundler.SendUserOperation(ctx, op.MarshalWire(), p.EntryPoint.Hex())
	if err != nil {
		return "", err
	}
	return b.pollReceipt(ctx, userOpHash)
}

func (b *Builder) decoratePaymasterV07(ctx context.Context, op *UserOperationV7, entryPoint common.Address) error {
	raw, err := b.bundler.SponsorUserOperation(ctx, op.MarshalWire(), entryPoint.Hex())
	if err != nil {
		return err
	}
	var out struct {
		Paymaster                     string `json:"paymaster"`
		PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit"`
		PaymasterData                 string `json:"paymasterData"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return walleterr.New("erc4337.decoratePaymasterV07", walleterr.KindServerProtocol, err)
	}
	if out.Paymaster == "" {
		return nil
	}
	pm := common.HexToAddress(out.Paymaster)
	op.Paymaster = &pm
	op.PaymasterVerificationGasLimit = hexOrNil(out.PaymasterVerificationGasLimit)
	op.PaymasterPostOpGasLimit = hexOrNil(out.PaymasterPostOpGasLimit)
	if out.PaymasterData != "" {
		op.PaymasterData = hexutil.MustDecode(out.PaymasterData)
	}
	return nil
}

// EnsureERC20Allowance guards the ERC-20 paymaster path's approve UserOp
// with an is_approving flag so a SendTransaction triggered from inside the
// approval itself does not recurse back into EnsureERC20Allowance. The
// returned ran flag is false on the short-circuited re-entrant call, so only
// the outermost caller treats the approval as having completed.
func (b *Builder) EnsureERC20Allowance(account common.Address, approve func() error) (ran bool, err error) {
	b.mu.Lock()
	if b.isApproving[account] {
		b.mu.Unlock()
		return false, nil
	}
	b.isApproving[account] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.isApproving, account)
		b.mu.Unlock()
	}()

	return true, approve()
}

// ERC20BalanceOverride builds the eth_estimateUserOperationGas state-override
// entry that pins an account's ERC-20 balance slot to 2^96-1 for the
// duration of estimation, so gas estimation succeeds regardless of the
// account's real token balance.
func ERC20BalanceOverride(token, account common.Address, balanceSlot *big.Int) map[string]any {
	slotArgs := abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	packed, _ := slotArgs.Pack(account, balanceSlot)
	storageKey := crypto.Keccak256Hash(packed)
	valueBytes := ERC20PaymasterMaxApproval.Bytes()
	var padded [32]byte
	copy(padded[32-len(valueBytes):], valueBytes)
	return map[string]any{
		token.Hex(): map[string]any{
			"stateDiff": map[string]string{
				storageKey.Hex(): hexutil.Encode(padded[:]),
			},
		},
	}
}

// pollReceipt polls eth_getUserOperationReceipt at 1 Hz until a transaction
// hash surfaces.
func (b *Builder) pollReceipt(ctx context.Context, userOpHash string) (string, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		receipt, err := b.bundler.GetUserOperationReceipt(ctx, userOpHash)
		if err == nil && receipt != nil && receipt.Receipt.TransactionHash != "" {
			return receipt.Receipt.TransactionHash, nil
		}
		select {
		case <-ctx.Done():
			return "", walleterr.New("erc4337.pollReceipt", walleterr.KindBundlerError, ctx.Err())
		case <-ticker.C:
		}
	}
}
