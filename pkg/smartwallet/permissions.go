package smartwallet

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"

	"wallet-core/pkg/signer"
	"wallet-core/pkg/walleterr"
)

// PermissionKind is the isAdmin field of a SignerPermissionRequest.
type PermissionKind int

const (
	PermissionSession PermissionKind = 0
	PermissionGrant   PermissionKind = 1
	PermissionRevoke  PermissionKind = 2
)

// SignerPermissionRequest mirrors the account contract's permission-request
// struct, signed via EIP-712 under the ("Account","1",chainId,account)
// domain before being submitted through the builder.
type SignerPermissionRequest struct {
	Signer                common.Address
	IsAdmin               PermissionKind
	ApprovedTargets       []common.Address
	NativeTokenLimitPerTx *big.Int
	PermissionStart       int64
	PermissionEnd         int64
	ReqValidityStart      int64
	ReqValidityEnd        int64
	UID                   [16]byte
}

var signerPermissionRequestTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"SignerPermissionRequest": {
		{Name: "signer", Type: "address"},
		{Name: "isAdmin", Type: "uint8"},
		{Name: "approvedTargets", Type: "address[]"},
		{Name: "nativeTokenLimitPerTx", Type: "uint256"},
		{Name: "permissionStartTimestamp", Type: "uint128"},
		{Name: "permissionEndTimestamp", Type: "uint128"},
		{Name: "reqValidityStartTimestamp", Type: "uint128"},
		{Name: "reqValidityEndTimestamp", Type: "uint128"},
		{Name: "uid", Type: "bytes32"},
	},
}

func (req SignerPermissionRequest) typedData(chainID int64, account common.Address) apitypes.TypedData {
	targets := make([]any, len(req.ApprovedTargets))
	for i, t := range req.ApprovedTargets {
		targets[i] = t.Hex()
	}
	limit := req.NativeTokenLimitPerTx
	if limit == nil {
		limit = big.NewInt(0)
	}
	uid := uidTo32(req.UID)
	return apitypes.TypedData{
		Types:       signerPermissionRequestTypes,
		PrimaryType: "SignerPermissionRequest",
		Domain:      signer.AccountDomain(chainID, account),
		Message: apitypes.TypedDataMessage{
			"signer":                    req.Signer.Hex(),
			"isAdmin":                   big.NewInt(int64(req.IsAdmin)).String(),
			"approvedTargets":           targets,
			"nativeTokenLimitPerTx":     limit.String(),
			"permissionStartTimestamp":  big.NewInt(req.PermissionStart).String(),
			"permissionEndTimestamp":    big.NewInt(req.PermissionEnd).String(),
			"reqValidityStartTimestamp": big.NewInt(req.ReqValidityStart).String(),
			"reqValidityEndTimestamp":   big.NewInt(req.ReqValidityEnd).String(),
			"uid":                       hexutil.Encode(uid[:]),
		},
	}
}

// setPermissionsForSignerABI is the single account method every permission
// operation below calls through the builder, after the request has been
// EIP-712-signed separately — signing is deliberately split from estimation
// so a hardware signer is not prompted twice.
const setPermissionsForSignerABI = `[{"inputs":[{"components":[{"internalType":"address","name":"signer","type":"address"},{"internalType":"uint8","name":"isAdmin","type":"uint8"},{"internalType":"address[]","name":"approvedTargets","type":"address[]"},{"internalType":"uint256","name":"nativeTokenLimitPerTx","type":"uint256"},{"internalType":"uint128","name":"permissionStartTimestamp","type":"uint128"},{"internalType":"uint128","name":"permissionEndTimestamp","type":"uint128"},{"internalType":"uint128","name":"reqValidityStartTimestamp","type":"uint128"},{"internalType":"uint128","name":"reqValidityEndTimestamp","type":"uint128"},{"internalType":"bytes32","name":"uid","type":"bytes32"}],"internalType":"struct SignerPermissionRequest","name":"_req","type":"tuple"},{"internalType":"bytes","name":"_signature","type":"bytes"}],"name":"setPermissionsForSigner","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var permissionsABI = mustParsePermissionsABI()

func mustParsePermissionsABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(setPermissionsForSignerABI))
	if err != nil {
		panic("smartwallet: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

func newUID() [16]byte {
	id := uuid.New()
	var uid [16]byte
	copy(uid[:], id[:])
	return uid
}

// submitPermissionRequest signs req and submits setPermissionsForSigner
// through the builder, the common tail shared by all four operations below.
func (w *SmartWallet) submitPermissionRequest(ctx context.Context, req SignerPermissionRequest) (txHash string, err error) {
	if w.isZkSync {
		return "", errNotSupportedOnZkSync("smartwallet.submitPermissionRequest")
	}

	sig, err := w.personal.SignTypedDataV4(req.typedData(w.chainID, w.account))
	if err != nil {
		return "", walleterr.New("smartwallet.submitPermissionRequest", walleterr.KindInvalidSignature, err)
	}

	targets := make([]common.Address, len(req.ApprovedTargets))
	copy(targets, req.ApprovedTargets)
	limit := req.NativeTokenLimitPerTx
	if limit == nil {
		limit = big.NewInt(0)
	}
	callData, err := permissionsABI.Pack("setPermissionsForSigner", struct {
		Signer                    common.Address
		IsAdmin                   uint8
		ApprovedTargets           []common.Address
		NativeTokenLimitPerTx     *big.Int
		PermissionStartTimestamp  *big.Int
		PermissionEndTimestamp    *big.Int
		ReqValidityStartTimestamp *big.Int
		ReqValidityEndTimestamp   *big.Int
		Uid                       [32]byte
	}{
		Signer:                    req.Signer,
		IsAdmin:                   uint8(req.IsAdmin),
		ApprovedTargets:           targets,
		NativeTokenLimitPerTx:     limit,
		PermissionStartTimestamp:  big.NewInt(req.PermissionStart),
		PermissionEndTimestamp:    big.NewInt(req.PermissionEnd),
		ReqValidityStartTimestamp: big.NewInt(req.ReqValidityStart),
		ReqValidityEndTimestamp:   big.NewInt(req.ReqValidityEnd),
		Uid:                       uidTo32(req.UID),
	}, sig)
	if err != nil {
		return "", walleterr.New("smartwallet.submitPermissionRequest", walleterr.KindServerProtocol, err)
	}

	return w.SendTransaction(ctx, w.account, callData)
}

func uidTo32(uid [16]byte) [32]byte {
	var out [32]byte
	copy(out[:16], uid[:])
	return out
}

// CreateSessionKey grants a restricted, time-boxed signer (isAdmin=session)
// limited to approvedTargets and a per-tx native token spend cap.
func (w *SmartWallet) CreateSessionKey(ctx context.Context, signerAddr common.Address, approvedTargets []common.Address, nativeTokenLimitPerTx *big.Int, start, end int64) (txHash string, err error) {
	req := SignerPermissionRequest{
		Signer:                signerAddr,
		IsAdmin:               PermissionSession,
		ApprovedTargets:       approvedTargets,
		NativeTokenLimitPerTx: nativeTokenLimitPerTx,
		PermissionStart:       start,
		PermissionEnd:         end,
		ReqValidityStart:      start,
		ReqValidityEnd:        end,
		UID:                   newUID(),
	}
	return w.submitPermissionRequest(ctx, req)
}

// AddAdmin grants full admin permission (isAdmin=grant) to signerAddr.
func (w *SmartWallet) AddAdmin(ctx context.Context, signerAddr common.Address, validFrom, validUntil int64) (txHash string, err error) {
	req := SignerPermissionRequest{
		Signer:           signerAddr,
		IsAdmin:          PermissionGrant,
		ReqValidityStart: validFrom,
		ReqValidityEnd:   validUntil,
		UID:              newUID(),
	}
	return w.submitPermissionRequest(ctx, req)
}

// RemoveAdmin revokes admin permission (isAdmin=revoke) from signerAddr.
func (w *SmartWallet) RemoveAdmin(ctx context.Context, signerAddr common.Address, validFrom, validUntil int64) (txHash string, err error) {
	req := SignerPermissionRequest{
		Signer:           signerAddr,
		IsAdmin:          PermissionRevoke,
		ReqValidityStart: validFrom,
		ReqValidityEnd:   validUntil,
		UID:              newUID(),
	}
	return w.submitPermissionRequest(ctx, req)
}

// getAllActiveSignersABI is the account's permission-enumeration view,
// returning every signer whose permission window is currently open.
const getAllActiveSignersABI = `[{"inputs":[],"name":"getAllActiveSigners","outputs":[{"components":[{"internalType":"address","name":"signer","type":"address"},{"internalType":"address[]","name":"approvedTargets","type":"address[]"},{"internalType":"uint256","name":"nativeTokenLimitPerTransaction","type":"uint256"},{"internalType":"uint128","name":"startTimestamp","type":"uint128"},{"internalType":"uint128","name":"endTimestamp","type":"uint128"}],"internalType":"struct IAccountPermissions.SignerPermissions[]","name":"signers","type":"tuple[]"}],"stateMutability":"view","type":"function"}]`

var activeSignersABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(getAllActiveSignersABI))
	if err != nil {
		panic("smartwallet: invalid embedded ABI: " + err.Error())
	}
	return parsed
}()

// ActiveSigner is one entry of the account's current permission table.
type ActiveSigner struct {
	Signer                common.Address
	ApprovedTargets       []common.Address
	NativeTokenLimitPerTx *big.Int
	StartTimestamp        int64
	EndTimestamp          int64
}

// GetAllActiveSigners reads the account's currently active session keys and
// admins via the getAllActiveSigners view.
func (w *SmartWallet) GetAllActiveSigners(ctx context.Context) ([]ActiveSigner, error) {
	if w.isZkSync {
		return nil, errNotSupportedOnZkSync("smartwallet.GetAllActiveSigners")
	}

	client, err := w.chains.Client(w.chainID)
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, callMsgFor(w.account, mustPack(activeSignersABI, "getAllActiveSigners")), nil)
	if err != nil {
		return nil, walleterr.New("smartwallet.GetAllActiveSigners", walleterr.KindBundlerError, err)
	}

	vals, err := activeSignersABI.Unpack("getAllActiveSigners", out)
	if err != nil || len(vals) != 1 {
		return nil, walleterr.New("smartwallet.GetAllActiveSigners", walleterr.KindServerProtocol, err)
	}
	type signerTuple struct {
		Signer                         common.Address
		ApprovedTargets                []common.Address
		NativeTokenLimitPerTransaction *big.Int
		StartTimestamp                 *big.Int
		EndTimestamp                   *big.Int
	}
	raw := *abi.ConvertType(vals[0], new([]signerTuple)).(*[]signerTuple)

	signers := make([]ActiveSigner, len(raw))
	for i, s := range raw {
		signers[i] = ActiveSigner{
			Signer:                s.Signer,
			ApprovedTargets:       s.ApprovedTargets,
			NativeTokenLimitPerTx: s.NativeTokenLimitPerTransaction,
			StartTimestamp:        s.StartTimestamp.Int64(),
			EndTimestamp:          s.EndTimestamp.Int64(),
		}
	}
	return signers, nil
}

// RevokeSessionKey withdraws a previously granted session key by setting its
// PermissionEnd to now and submitting a fresh signed request.
func (w *SmartWallet) RevokeSessionKey(ctx context.Context, signerAddr common.Address, now int64) (txHash string, err error) {
	req := SignerPermissionRequest{
		Signer:           signerAddr,
		IsAdmin:          PermissionSession,
		PermissionStart:  now,
		PermissionEnd:    now,
		ReqValidityStart: now,
		ReqValidityEnd:   now,
		UID:              newUID(),
	}
	return w.submitPermissionRequest(ctx, req)
}
