package smartwallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"wallet-core/pkg/signer"
)

// PersonalAccount is the signing wallet a SmartWallet drives: either the
// embedded wallet's PrivateKeyAccount or an external/injected signer. It is
// referenced unidirectionally here, rather than smartwallet and erc4337
// depending on each other's concrete types, so either side can be swapped
// independently. Typed-data signing is part of the capability set because
// session-key requests, the ERC-1271 AccountMessage wrapper, and ZK-Sync
// transactions are all EIP-712 payloads. A concrete type that additionally
// implements IsExternalSigner() bool opts into the builder's external-signer
// signing convention (see erc4337.signUserOpHash); this package does not
// need its own copy of that distinction.
type PersonalAccount interface {
	Address() common.Address
	PersonalSign(msg []byte) ([]byte, error)
	SignTypedDataV4(data apitypes.TypedData) ([]byte, error)
}

var _ PersonalAccount = (*signer.PrivateKeyAccount)(nil)
