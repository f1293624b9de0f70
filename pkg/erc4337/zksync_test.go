package erc4337

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"wallet-core/pkg/signer"
)

type fakeZkBundler struct {
	paymasterAddr  string
	paymasterData  string
	broadcastHash  string
	sentTx         json.RawMessage
	paymasterCalls int
}

func (f *fakeZkBundler) SendUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (string, error) {
	return "", nil
}
func (f *fakeZkBundler) EstimateUserOperationGas(ctx context.Context, op json.RawMessage, entryPoint string, stateOverrides map[string]any) (GasEstimate, error) {
	return GasEstimate{}, nil
}
func (f *fakeZkBundler) GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error) {
	return nil, nil
}
func (f *fakeZkBundler) GetUserOperationGasPrice(ctx context.Context) (string, string, error) {
	return "", "", nil
}
func (f *fakeZkBundler) SponsorUserOperation(ctx context.Context, op json.RawMessage, entryPoint string) (json.RawMessage, error) {
	return nil, nil
}
func (f *fakeZkBundler) ZkPaymasterData(ctx context.Context, tx json.RawMessage) (string, string, error) {
	f.paymasterCalls++
	return f.paymasterAddr, f.paymasterData, nil
}
func (f *fakeZkBundler) ZkBroadcastTransaction(ctx context.Context, signedTx json.RawMessage) (string, error) {
	f.sentTx = signedTx
	return f.broadcastHash, nil
}

func TestZkSendTransactionGaslessAttachesPaymaster(t *testing.T) {
	account, err := signer.GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	bundler := &fakeZkBundler{
		paymasterAddr: common.HexToAddress("0x5555555555555555555555555555555555555555").Hex(),
		paymasterData: "0x1234",
		broadcastHash: "0xabc",
	}

	tx := ZkTransaction{
		ChainID:              324,
		Nonce:                1,
		From:                 account.Address(),
		To:                   common.HexToAddress("0x6666666666666666666666666666666666666666"),
		Value:                big.NewInt(0),
		GasLimit:             big.NewInt(100000),
		MaxFeePerGas:         big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}

	hash, err := ZkSendTransaction(context.Background(), bundler, account, tx, true)
	if err != nil {
		t.Fatalf("ZkSendTransaction: %v", err)
	}
	if hash != "0xabc" {
		t.Fatalf("hash = %s, want 0xabc", hash)
	}
	if bundler.sentTx == nil {
		t.Fatal("expected ZkBroadcastTransaction to be called")
	}
	var wire zkWireTransaction
	if err := json.Unmarshal(bundler.sentTx, &wire); err != nil {
		t.Fatalf("unmarshal broadcast tx: %v", err)
	}
	if wire.Paymaster != bundler.paymasterAddr || wire.PaymasterInput != bundler.paymasterData {
		t.Fatalf("broadcast paymaster = %s/%s, want %s/%s", wire.Paymaster, wire.PaymasterInput, bundler.paymasterAddr, bundler.paymasterData)
	}
}

func TestZkSendTransactionNonGaslessSkipsPaymasterLookup(t *testing.T) {
	account, err := signer.GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	bundler := &fakeZkBundler{broadcastHash: "0xdef"}

	tx := ZkTransaction{
		ChainID:              324,
		Nonce:                0,
		From:                 account.Address(),
		To:                   common.HexToAddress("0x7777777777777777777777777777777777777777"),
		Value:                big.NewInt(1),
		GasLimit:             big.NewInt(21000),
		MaxFeePerGas:         big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}

	hash, err := ZkSendTransaction(context.Background(), bundler, account, tx, false)
	if err != nil {
		t.Fatalf("ZkSendTransaction: %v", err)
	}
	if hash != "0xdef" {
		t.Fatalf("hash = %s, want 0xdef", hash)
	}
	if bundler.paymasterCalls != 0 {
		t.Fatalf("ZkPaymasterData called %d times, want 0", bundler.paymasterCalls)
	}
}
