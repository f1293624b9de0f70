package smartwallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"wallet-core/pkg/signer"
)

func fixtureRequest() SignerPermissionRequest {
	var uid [16]byte
	for i := range uid {
		uid[i] = byte(i + 1)
	}
	return SignerPermissionRequest{
		Signer:                common.HexToAddress("0x1111111111111111111111111111111111111111"),
		IsAdmin:               PermissionSession,
		ApprovedTargets:       []common.Address{common.HexToAddress("0x2222222222222222222222222222222222222222")},
		NativeTokenLimitPerTx: big.NewInt(1_000_000_000_000_000_000),
		PermissionStart:       1700000000,
		PermissionEnd:         1700003600,
		ReqValidityStart:      1700000000,
		ReqValidityEnd:        1700003600,
		UID:                   uid,
	}
}

func TestPermissionRequestTypedDataHashIsDeterministic(t *testing.T) {
	account := common.HexToAddress("0x3333333333333333333333333333333333333333")
	req := fixtureRequest()

	h1, err := signer.HashTypedData(req.typedData(1, account))
	if err != nil {
		t.Fatalf("HashTypedData: %v", err)
	}
	h2, err := signer.HashTypedData(req.typedData(1, account))
	if err != nil {
		t.Fatalf("HashTypedData: %v", err)
	}
	if string(h1) != string(h2) {
		t.Fatal("typed-data hash not deterministic")
	}

	h3, err := signer.HashTypedData(req.typedData(137, account))
	if err != nil {
		t.Fatalf("HashTypedData: %v", err)
	}
	if string(h1) == string(h3) {
		t.Fatal("typed-data hash must be bound to the chain id")
	}
}

func TestPermissionRequestSignatureRecovers(t *testing.T) {
	account := common.HexToAddress("0x3333333333333333333333333333333333333333")
	req := fixtureRequest()

	personal, err := signer.GenerateAccount()
	if err != nil {
		t.Fatalf("GenerateAccount: %v", err)
	}
	td := req.typedData(1, account)
	sig, err := personal.SignTypedDataV4(td)
	if err != nil {
		t.Fatalf("SignTypedDataV4: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	hash, err := signer.HashTypedData(td)
	if err != nil {
		t.Fatalf("HashTypedData: %v", err)
	}
	rsv := append([]byte{}, sig...)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, rsv)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != personal.Address() {
		t.Fatalf("recovered signer = %s, want %s", got.Hex(), personal.Address().Hex())
	}
}

func TestEncodeExecuteUsesCanonicalSelector(t *testing.T) {
	to := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data, err := encodeExecute(to, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("encodeExecute: %v", err)
	}

	wantSelector := ethcrypto.Keccak256([]byte("execute(address,uint256,bytes)"))[:4]
	if string(data[:4]) != string(wantSelector) {
		t.Fatalf("selector = %x, want %x", data[:4], wantSelector)
	}
}

func TestUidTo32LeftAligns(t *testing.T) {
	var uid [16]byte
	uid[0] = 0xAA
	uid[15] = 0xBB

	out := uidTo32(uid)
	if out[0] != 0xAA || out[15] != 0xBB {
		t.Fatalf("uid bytes not preserved: %x", out)
	}
	for i := 16; i < 32; i++ {
		if out[i] != 0 {
			t.Fatalf("expected zero padding in high bytes, got %x", out)
		}
	}
}
