// Package smartwallet implements an ERC-4337 smart account facade that
// wraps a personal signing wallet (embedded or external), drives deployment
// through the UserOperation builder, verifies its own signatures via
// ERC-1271, and manages session-key/admin permissioning.
package smartwallet

import "wallet-core/pkg/walleterr"

func errNotDeployed(op string) error {
	return walleterr.New(op, walleterr.KindNotDeployed, nil)
}

func errDeploymentFailed(op string, cause error) error {
	return walleterr.New(op, walleterr.KindDeploymentFailed, cause)
}

func errNotSupportedOnZkSync(op string) error {
	return walleterr.New(op, walleterr.KindNotSupportedOnZkSync, nil)
}

func errInvalidSignature(op string, cause error) error {
	return walleterr.New(op, walleterr.KindInvalidSignature, cause)
}
