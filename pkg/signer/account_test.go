package signer

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPersonalSignRecoverRoundTrip(t *testing.T) {
	acct, err := GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}

	messages := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte{0xAB}, 130),
	}
	for _, msg := range messages {
		sig, err := acct.PersonalSign(msg)
		if err != nil {
			t.Fatalf("PersonalSign(%q): %v", msg, err)
		}
		if len(sig) != 65 {
			t.Fatalf("signature length = %d, want 65", len(sig))
		}
		if sig[64] != 27 && sig[64] != 28 {
			t.Fatalf("v byte = %d, want 27 or 28", sig[64])
		}
		recovered, err := RecoverAddressFromPersonalSign(msg, sig)
		if err != nil {
			t.Fatalf("RecoverAddressFromPersonalSign(%q): %v", msg, err)
		}
		if recovered != acct.Address() {
			t.Fatalf("recovered %s, want %s", recovered, acct.Address())
		}
	}
}

func TestEthSignProducesValidSignature(t *testing.T) {
	acct, err := GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	sig, err := acct.EthSign([]byte("raw payload"))
	if err != nil {
		t.Fatalf("EthSign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
}

func TestSignTransactionLegacyAndLondon(t *testing.T) {
	acct, err := GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	to := common.HexToAddress("0x000000000000000000000000000000000000aa")
	chainID := big.NewInt(11155111)

	legacy := TransactionInput{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	}
	raw, err := acct.SignTransaction(legacy, chainID)
	if err != nil {
		t.Fatalf("SignTransaction(legacy): %v", err)
	}
	if raw[:2] != "0x" {
		t.Fatalf("legacy tx hex missing 0x prefix: %s", raw)
	}

	london := TransactionInput{
		Nonce:                1,
		To:                   &to,
		Value:                big.NewInt(1),
		Gas:                  21000,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		ChainID:              chainID,
	}
	raw, err = acct.SignTransaction(london, chainID)
	if err != nil {
		t.Fatalf("SignTransaction(1559): %v", err)
	}
	if raw[:2] != "0x" {
		t.Fatalf("1559 tx hex missing 0x prefix: %s", raw)
	}
}

func TestSignTransactionRequiresGasFields(t *testing.T) {
	acct, err := GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	to := common.HexToAddress("0x000000000000000000000000000000000000aa")
	_, err = acct.SignTransaction(TransactionInput{Nonce: 0, To: &to}, big.NewInt(1))
	if err == nil {
		t.Fatal("expected error when neither gasPrice nor 1559 fee fields are set")
	}
}
