package erc4337

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"wallet-core/pkg/walleterr"
)

// BundlerClient is the RPC surface the builder consumes: standard ERC-4337
// bundler methods plus the thirdweb/paymaster extensions and the ZK-Sync
// broadcast method this module consumes.
type BundlerClient interface {
	SendUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (userOpHash string, err error)
	EstimateUserOperationGas(ctx context.Context, op json.RawMessage, entryPoint string, stateOverrides map[string]any) (GasEstimate, error)
	GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error)
	GetUserOperationGasPrice(ctx context.Context) (maxFeePerGas, maxPriorityFeePerGas string, err error)
	SponsorUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (paymasterFields json.RawMessage, err error)
	ZkPaymasterData(ctx context.Context, tx json.RawMessage) (paymasterAddress, input string, err error)
	ZkBroadcastTransaction(ctx context.Context, signedTx json.RawMessage) (txHash string, err error)
}

// GasEstimate is the response shape of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas   string `json:"preVerificationGas"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	CallGasLimit         string `json:"callGasLimit"`
	// v0.7 bundlers additionally split out paymaster verification gas.
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
}

// UserOperationReceipt is the response shape of eth_getUserOperationReceipt.
type UserOperationReceipt struct {
	UserOpHash string `json:"userOpHash"`
	Success    bool   `json:"success"`
	Receipt    struct {
		TransactionHash string `json:"transactionHash"`
	} `json:"receipt"`
}

// jsonRPCBundler is a minimal JSON-RPC 2.0 HTTP client implementing
// BundlerClient, following the same plain net/http + encoding/json pattern
// used for the auth server client rather than a dedicated JSON-RPC library.
type jsonRPCBundler struct {
	url        string
	httpClient *http.Client
	nextID     int
}

// NewJSONRPCBundler builds a BundlerClient that speaks JSON-RPC 2.0 over
// HTTP to url (the bundler/paymaster endpoint).
func NewJSONRPCBundler(url string, httpClient *http.Client) BundlerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &jsonRPCBundler{url: url, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *jsonRPCBundler) call(ctx context.Context, method string, params []any, out any) error {
	b.nextID++
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: b.nextID, Method: method, Params: params})
	if err != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(reqBody))
	if err != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, err)
	}
	if rpcResp.Error != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, fmt.Errorf("%s: %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return walleterr.New("erc4337.jsonRPCBundler.call", walleterr.KindBundlerError, err)
	}
	return nil
}

func (b *jsonRPCBundler) SendUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (string, error) {
	var hash string
	err := b.call(ctx, "eth_sendUserOperation", []any{json.RawMessage(op), entryPoint}, &hash)
	return hash, err
}

func (b *jsonRPCBundler) EstimateUserOperationGas(ctx context.Context, op json.RawMessage, entryPoint string, stateOverrides map[string]any) (GasEstimate, error) {
	var est GasEstimate
	params := []any{json.RawMessage(op), entryPoint}
	if stateOverrides != nil {
		params = append(params, stateOverrides)
	}
	err := b.call(ctx, "eth_estimateUserOperationGas", params, &est)
	return est, err
}

func (b *jsonRPCBundler) GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error) {
	var receipt UserOperationReceipt
	err := b.call(ctx, "eth_getUserOperationReceipt", []any{userOpHash}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (b *jsonRPCBundler) GetUserOperationGasPrice(ctx context.Context) (string, string, error) {
	var out struct {
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	}
	err := b.call(ctx, "thirdweb_getUserOperationGasPrice", nil, &out)
	return out.MaxFeePerGas, out.MaxPriorityFeePerGas, err
}

func (b *jsonRPCBundler) SponsorUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (json.RawMessage, error) {
	var out json.RawMessage
	err := b.call(ctx, "pm_sponsorUserOperation", []any{json.RawMessage(op), entryPoint}, &out)
	return out, err
}

func (b *jsonRPCBundler) ZkPaymasterData(ctx context.Context, tx json.RawMessage) (string, string, error) {
	var out struct {
		Paymaster string `json:"paymaster"`
		Input     string `json:"input"`
	}
	err := b.call(ctx, "zk_paymasterData", []any{json.RawMessage(tx)}, &out)
	return out.Paymaster, out.Input, err
}

func (b *jsonRPCBundler) ZkBroadcastTransaction(ctx context.Context, signedTx json.RawMessage) (string, error) {
	var hash string
	err := b.call(ctx, "zk_broadcastTransaction", []any{json.RawMessage(signedTx)}, &hash)
	return hash, err
}
