package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntryPointVersion selects which ERC-4337 EntryPoint revision a UserOp
// targets; the two versions differ in field layout and gas accounting.
type EntryPointVersion int

const (
	EntryPointV06 EntryPointVersion = 6
	EntryPointV07 EntryPointVersion = 7
)

// Canonical EntryPoint addresses. The version selector the builder uses is
// string-equality on the supplied address against these two.
var (
	EntryPointAddressV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	EntryPointAddressV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
)

// VersionForEntryPoint resolves the protocol version for a given EntryPoint
// address by string equality against the two canonical addresses, reporting
// ok=false for any other address.
func VersionForEntryPoint(addr common.Address) (EntryPointVersion, bool) {
	switch addr {
	case EntryPointAddressV06:
		return EntryPointV06, true
	case EntryPointAddressV07:
		return EntryPointV07, true
	default:
		return 0, false
	}
}

// DummySignature is a syntactically valid but meaningless 65-byte signature
// used during paymaster-data requests and gas estimation, before the real
// signature exists.
var DummySignature = common.Hex2Bytes("fffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// ERC1271MagicValue is the return value a smart account's isValidSignature
// must produce for a signature to be considered valid.
const ERC1271MagicValue = "0x1626ba7e"

// Gas padding applied after estimation on a not-yet-deployed account, since
// estimation underestimates calldata cost in that case.
const (
	CallGasLimitPadV06 = 50_000
	CallGasLimitPadV07 = 21_000
)

// ERC20PaymasterMaxApproval is the allowance granted to an ERC-20 paymaster,
// chosen as 2^96-1 (matches common paymaster implementations' packed uint96
// allowance slot).
var ERC20PaymasterMaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
