// Package walleterr defines the error kinds shared by every component of the
// wallet core, so callers can branch on the failure class with errors.Is
// instead of string-matching messages.
package walleterr

import "errors"

// Kind classifies a failure into one of the wallet core's known error
// categories. It is never retried implicitly by the core itself.
type Kind string

const (
	KindIdentityMismatch     Kind = "identity_mismatch"
	KindNotSignedIn          Kind = "not_signed_in"
	KindUnauthorized         Kind = "unauthorized"
	KindWalletUninitialized  Kind = "wallet_uninitialized"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindShareCorrupt         Kind = "share_corrupt"
	KindWrongRecoveryCode    Kind = "wrong_recovery_code"
	KindServerProtocol       Kind = "server_protocol"
	KindNotSupportedOnZkSync Kind = "not_supported_on_zksync"
	KindNotDeployed          Kind = "not_deployed"
	KindDeploymentFailed     Kind = "deployment_failed"
	KindBundlerError         Kind = "bundler_error"
	KindInvalidSignature     Kind = "invalid_signature"
)

// Error wraps a Kind, the operation that produced it, and the underlying
// cause so that log output keeps a full chain while callers can still test
// against a sentinel with errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, walleterr.Sentinel(Kind)) match any *Error sharing
// that kind, regardless of Op or wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error for the given operation and kind, optionally wrapping
// a lower-level cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a comparable *Error carrying only a Kind, suitable as the
// target of errors.Is.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
