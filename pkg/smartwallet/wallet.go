package smartwallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"wallet-core/pkg/chain"
	"wallet-core/pkg/erc4337"
	"wallet-core/pkg/signer"
	"wallet-core/pkg/walleterr"
)

// smartAccountABI covers the account-side view methods the facade probes
// directly (outside the UserOperation path): the optional 1271 message-hash
// hook and the signature validator itself.
const smartAccountABI = `[
	{"inputs":[{"internalType":"bytes32","name":"hash","type":"bytes32"}],"name":"getMessageHash","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"hash","type":"bytes32"},{"internalType":"bytes","name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"internalType":"bytes4","name":"","type":"bytes4"}],"stateMutability":"view","type":"function"}
]`

var accountABI = mustParseAccountABI()

func mustParseAccountABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(smartAccountABI))
	if err != nil {
		panic("smartwallet: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// SmartWallet is an ERC-4337 account-abstraction client that wraps a
// PersonalAccount and drives it through an erc4337.Builder.
type SmartWallet struct {
	chainID     int64
	account     common.Address
	owner       common.Address
	factoryAddr common.Address
	entryPoint  common.Address
	entryPointV erc4337.EntryPointVersion
	isZkSync    bool

	personal       PersonalAccount
	chains         *chain.Registry
	builder        *erc4337.Builder
	bundler        erc4337.BundlerClient
	tokenPaymaster *TokenPaymasterConfig

	mu          sync.Mutex
	isDeploying bool
	isApproved  bool
}

// TokenPaymasterConfig enables the ERC-20 paymaster path (v0.7 only): gas is
// paid in Token via Paymaster, which requires a one-time max allowance from
// the account. BalanceSlot is the token contract's balances mapping slot,
// used to pin the account's balance during gas estimation.
type TokenPaymasterConfig struct {
	Token       common.Address
	Paymaster   common.Address
	BalanceSlot *big.Int
}

// Config describes the on-chain identity of the smart account this facade
// drives.
type Config struct {
	ChainID       int64
	Account       common.Address
	Owner         common.Address
	FactoryAddr   common.Address
	EntryPoint    common.Address
	EntryPointVer erc4337.EntryPointVersion
	IsZkSync      bool
	// TokenPaymaster, when set, routes gas payment through an ERC-20
	// paymaster on the v0.7 path.
	TokenPaymaster *TokenPaymasterConfig
}

// New builds a SmartWallet bound to personal (the signing wallet), a chain
// registry for reads, a builder for the UserOperation pipeline, and a
// bundler client used directly for the ZK-Sync native path.
func New(cfg Config, personal PersonalAccount, chains *chain.Registry, builder *erc4337.Builder, bundler erc4337.BundlerClient) *SmartWallet {
	return &SmartWallet{
		chainID:     cfg.ChainID,
		account:     cfg.Account,
		owner:       cfg.Owner,
		factoryAddr: cfg.FactoryAddr,
		entryPoint:  cfg.EntryPoint,
		entryPointV: cfg.EntryPointVer,
		isZkSync:    cfg.IsZkSync,
		personal:    personal,
		chains:      chains,
		builder:     builder,
		bundler:     bundler,

		tokenPaymaster: cfg.TokenPaymaster,
	}
}

// Address returns the smart account's address (not the personal signer's),
// except on a ZK-Sync chain, where the personal signer acts as the account
// and its address is returned.
func (w *SmartWallet) Address() common.Address {
	if w.isZkSync {
		return w.personal.Address()
	}
	return w.account
}

// IsDeployed reports whether the smart account already has code on chain.
// It caches nothing: every call is a fresh eth_getCode.
func (w *SmartWallet) IsDeployed(ctx context.Context) (bool, error) {
	return w.chains.IsContractDeployed(ctx, w.chainID, w.account)
}

// WaitUntilDeployed polls IsDeployed at 1 Hz until it returns true or ctx is
// cancelled, so a caller that lost the deploy race can wait out the
// in-flight deployment and then proceed without emitting a second
// initCode.
func (w *SmartWallet) WaitUntilDeployed(ctx context.Context) error {
	deployed, err := w.IsDeployed(ctx)
	if err != nil {
		return err
	}
	if deployed {
		return nil
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errDeploymentFailed("smartwallet.WaitUntilDeployed", ctx.Err())
		case <-ticker.C:
			deployed, err := w.IsDeployed(ctx)
			if err != nil {
				return err
			}
			if deployed {
				return nil
			}
		}
	}
}

// beginDeploy marks a deployment in progress, returning false if one is
// already running (the caller should wait instead of emitting a second
// initCode).
func (w *SmartWallet) beginDeploy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isDeploying {
		return false
	}
	w.isDeploying = true
	return true
}

func (w *SmartWallet) endDeploy() {
	w.mu.Lock()
	w.isDeploying = false
	w.mu.Unlock()
}

// ForceDeploy sends a zero-value self-call UserOp purely to trigger
// counterfactual deployment, independent of any business transaction.
func (w *SmartWallet) ForceDeploy(ctx context.Context) (txHash string, err error) {
	return w.SendTransaction(ctx, w.account, nil)
}

// SendTransaction builds, signs, and submits a UserOp (or, on a ZK-Sync
// chain, a native transaction) that calls (to, data) through the smart
// account, deploying it first if necessary. A concurrent caller arriving
// while deployment is in flight waits for it to finish and then proceeds
// with an empty initCode.
func (w *SmartWallet) SendTransaction(ctx context.Context, to common.Address, data []byte) (txHash string, err error) {
	if w.isZkSync {
		return w.sendZkTransaction(ctx, to, data)
	}

	// The allowance must be granted before the deploy flag is taken: the
	// approve UserOp is a full SendTransaction of its own, and on a fresh
	// account it is the op that carries the initCode.
	if w.tokenPaymaster != nil && w.entryPointV == erc4337.EntryPointV07 {
		if err := w.ensureTokenAllowance(ctx); err != nil {
			return "", err
		}
	}

	deployed, err := w.IsDeployed(ctx)
	if err != nil {
		return "", err
	}

	if !deployed {
		if w.beginDeploy() {
			defer w.endDeploy()
		} else {
			if err := w.WaitUntilDeployed(ctx); err != nil {
				return "", err
			}
			deployed = true
		}
	}

	callData, err := encodeExecute(to, data)
	if err != nil {
		return "", err
	}

	params := erc4337.BuildParams{
		ChainID:     w.chainID,
		Account:     w.account,
		Owner:       w.owner,
		FactoryAddr: w.factoryAddr,
		EntryPoint:  w.entryPoint,
		CallData:    callData,
		Sponsored:   true,
	}
	// An account already deployed (including by a concurrent deploy we waited
	// for) gets no factory; the builder also checks eth_getCode itself before
	// emitting initCode.
	if deployed {
		params.FactoryAddr = common.Address{}
	}

	if w.tokenPaymaster != nil && w.entryPointV == erc4337.EntryPointV07 {
		params.StateOverrides = erc4337.ERC20BalanceOverride(w.tokenPaymaster.Token, w.account, w.tokenPaymaster.BalanceSlot)
	}

	switch w.entryPointV {
	case erc4337.EntryPointV06:
		return w.builder.BuildAndSendV06(ctx, params, w.personal)
	case erc4337.EntryPointV07:
		return w.builder.BuildAndSendV07(ctx, params, w.personal)
	default:
		return "", walleterr.New("smartwallet.SendTransaction", walleterr.KindServerProtocol, nil)
	}
}

// ensureTokenAllowance grants the ERC-20 paymaster its one-time max
// allowance before the first gas-sponsored UserOp. The approve itself is a
// normal SendTransaction, which re-enters this method; the builder's
// is_approving guard short-circuits that inner call (ran=false), so only the
// outermost invocation records the approval as done.
func (w *SmartWallet) ensureTokenAllowance(ctx context.Context) error {
	w.mu.Lock()
	approved := w.isApproved
	w.mu.Unlock()
	if approved {
		return nil
	}

	ran, err := w.builder.EnsureERC20Allowance(w.account, func() error {
		approveData, err := encodeApprove(w.tokenPaymaster.Paymaster, erc4337.ERC20PaymasterMaxApproval)
		if err != nil {
			return err
		}
		_, err = w.SendTransaction(ctx, w.tokenPaymaster.Token, approveData)
		return err
	})
	if err != nil {
		return err
	}
	if ran {
		w.mu.Lock()
		w.isApproved = true
		w.mu.Unlock()
	}
	return nil
}

// encodeApprove packs the ERC-20 approve(spender, amount) calldata the
// allowance UserOp routes through execute().
func encodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	const approveABI = `[{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`
	parsed, err := abi.JSON(strings.NewReader(approveABI))
	if err != nil {
		return nil, walleterr.New("smartwallet.encodeApprove", walleterr.KindServerProtocol, err)
	}
	return parsed.Pack("approve", spender, amount)
}

// encodeExecute packs SimpleAccount's execute(address,uint256,bytes) call,
// the standard single-call entry point ERC-4337 smart accounts expose.
func encodeExecute(to common.Address, data []byte) ([]byte, error) {
	const executeABI = `[{"inputs":[{"internalType":"address","name":"dest","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
	parsed, err := abi.JSON(strings.NewReader(executeABI))
	if err != nil {
		return nil, walleterr.New("smartwallet.encodeExecute", walleterr.KindServerProtocol, err)
	}
	if data == nil {
		data = []byte{}
	}
	return parsed.Pack("execute", to, big.NewInt(0), data)
}

// PersonalSign signs msg on behalf of the smart account and verifies the
// result on-chain via ERC-1271 before returning it, failing closed if the
// account rejects it. Deployment is required first: an undeployed account
// has no isValidSignature to call.
func (w *SmartWallet) PersonalSign(ctx context.Context, msg []byte) ([]byte, error) {
	if w.isZkSync {
		return w.personal.PersonalSign(msg)
	}

	deployed, err := w.IsDeployed(ctx)
	if err != nil {
		return nil, err
	}
	if !deployed {
		return nil, errNotDeployed("smartwallet.PersonalSign")
	}

	originalHash := signer.PersonalMessageHash(msg)

	client, err := w.chains.Client(w.chainID)
	if err != nil {
		return nil, err
	}

	var hash32 [32]byte
	copy(hash32[:], originalHash)
	wrapped, probeErr := client.CallContract(ctx, callMsgFor(w.account, mustPack(accountABI, "getMessageHash", hash32)), nil)

	var sig []byte
	if probeErr == nil && len(wrapped) >= 32 {
		var wrappedHash [32]byte
		copy(wrappedHash[:], wrapped[len(wrapped)-32:])
		td := accountMessageTypedData(w.chainID, w.account, wrappedHash)
		sig, err = w.personal.SignTypedDataV4(td)
		if err != nil {
			return nil, errInvalidSignature("smartwallet.PersonalSign", err)
		}
	} else {
		sig, err = w.personal.PersonalSign(msg)
		if err != nil {
			return nil, errInvalidSignature("smartwallet.PersonalSign", err)
		}
	}

	magic, err := client.CallContract(ctx, callMsgFor(w.account, mustPack(accountABI, "isValidSignature", hash32, sig)), nil)
	if err != nil {
		return nil, errInvalidSignature("smartwallet.PersonalSign", err)
	}
	if hexutil.Encode(magic) != erc4337.ERC1271MagicValue && !strings.HasPrefix(hexutil.Encode(magic), erc4337.ERC1271MagicValue) {
		return nil, errInvalidSignature("smartwallet.PersonalSign", nil)
	}
	return sig, nil
}

// sendZkTransaction is the ZK-Sync branch: no UserOp, no
// EntryPoint; the smart account itself is the personal signer's address, so
// "to" is called directly rather than through execute().
func (w *SmartWallet) sendZkTransaction(ctx context.Context, to common.Address, data []byte) (string, error) {
	maxFee, maxPriority, err := w.chains.SuggestGasFees(ctx, w.chainID)
	if err != nil {
		return "", err
	}
	client, err := w.chains.Client(w.chainID)
	if err != nil {
		return "", err
	}
	nonce, err := client.PendingNonceAt(ctx, w.personal.Address())
	if err != nil {
		return "", walleterr.New("smartwallet.sendZkTransaction", walleterr.KindBundlerError, err)
	}
	tx := erc4337.ZkTransaction{
		ChainID:              w.chainID,
		Nonce:                nonce,
		From:                 w.personal.Address(),
		To:                   to,
		Value:                big.NewInt(0),
		Data:                 data,
		GasLimit:             big.NewInt(200_000),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
	}
	return erc4337.ZkSendTransaction(ctx, w.bundler, w.personal, tx, true)
}

func callMsgFor(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func mustPack(a abi.ABI, method string, args ...any) []byte {
	data, err := a.Pack(method, args...)
	if err != nil {
		panic("smartwallet: ABI pack of " + method + " failed: " + err.Error())
	}
	return data
}

func accountMessageTypedData(chainID int64, account common.Address, message [32]byte) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"AccountMessage": {
				{Name: "message", Type: "bytes32"},
			},
		},
		PrimaryType: "AccountMessage",
		Domain:      signer.AccountDomain(chainID, account),
		Message: apitypes.TypedDataMessage{
			"message": hexutil.Encode(message[:]),
		},
	}
}
