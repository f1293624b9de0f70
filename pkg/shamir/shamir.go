// Package shamir implements the 2-of-3 Shamir secret sharing scheme used to
// split a wallet's private key seed across a device, an auth server, and a
// user-held recovery code. Any two of the three shares reconstruct the
// original secret; no single share reveals any bit of it.
package shamir

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"wallet-core/pkg/walleterr"
)

// ShareID identifies which of the three parties a share belongs to. The
// numbering is fixed by the wire format: 1=device, 2=auth, 3=recovery.
type ShareID int

const (
	ShareDevice   ShareID = 1
	ShareAuth     ShareID = 2
	ShareRecovery ShareID = 3
)

func (id ShareID) String() string {
	switch id {
	case ShareDevice:
		return "device"
	case ShareAuth:
		return "auth"
	case ShareRecovery:
		return "recovery"
	default:
		return fmt.Sprintf("unknown(%d)", int(id))
	}
}

// SecretSize is the fixed length, in bytes, of the secret being split.
const SecretSize = 16

// prime is the fixed 128-bit field modulus shares are computed over: 2^128 -
// 159. It must match the value the auth server uses, since shares are only
// meaningful as points on the same polynomial; see DESIGN.md for why this
// value was chosen.
var prime = func() *big.Int {
	twoTo128 := new(big.Int).Lsh(big.NewInt(1), 128)
	return new(big.Int).Sub(twoTo128, big.NewInt(159))
}()

// Prime returns the field modulus used for all polynomial arithmetic.
func Prime() *big.Int { return new(big.Int).Set(prime) }

// Share is one (x, y) point on the secret's degree-1 polynomial.
type Share struct {
	ID ShareID
	Y  *big.Int
}

// Encode renders the share in the stable wire form "<idHex>:<yHex>".
func (s Share) Encode() string {
	return fmt.Sprintf("%x:%x", int(s.ID), s.Y)
}

// Decode parses the "<idHex>:<yHex>" wire form produced by Encode.
func Decode(text string) (Share, error) {
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return Share{}, walleterr.New("shamir.Decode", walleterr.KindShareCorrupt, fmt.Errorf("malformed share %q", text))
	}
	idVal, ok := new(big.Int).SetString(parts[0], 16)
	if !ok || !idVal.IsInt64() {
		return Share{}, walleterr.New("shamir.Decode", walleterr.KindShareCorrupt, fmt.Errorf("malformed share id %q", parts[0]))
	}
	y, ok := new(big.Int).SetString(parts[1], 16)
	if !ok {
		return Share{}, walleterr.New("shamir.Decode", walleterr.KindShareCorrupt, fmt.Errorf("malformed share value %q", parts[1]))
	}
	return Share{ID: ShareID(idVal.Int64()), Y: y}, nil
}

// evaluatePolynomial computes f(x) = secret + a1*x mod p for the degree-1
// polynomial used by Split.
func evaluatePolynomial(secret, a, x, p *big.Int) *big.Int {
	term := new(big.Int).Mul(a, x)
	term.Mod(term, p)
	y := new(big.Int).Add(secret, term)
	y.Mod(y, p)
	return y
}

// Split divides a 16-byte secret into the device, auth, and recovery shares
// of a degree-1 polynomial f(x) = secret + a*x mod P, returning f(1), f(2),
// f(3) respectively.
func Split(secret [SecretSize]byte) (device, auth, recovery Share, err error) {
	s := new(big.Int).SetBytes(secret[:])
	if s.Cmp(prime) >= 0 {
		return Share{}, Share{}, Share{}, walleterr.New("shamir.Split", walleterr.KindShareCorrupt, fmt.Errorf("secret exceeds field size"))
	}

	a, rerr := rand.Int(rand.Reader, new(big.Int).Sub(prime, big.NewInt(1)))
	if rerr != nil {
		return Share{}, Share{}, Share{}, walleterr.New("shamir.Split", walleterr.KindShareCorrupt, rerr)
	}
	a.Add(a, big.NewInt(1)) // a in [1, P)

	device = Share{ID: ShareDevice, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareDevice)), prime)}
	auth = Share{ID: ShareAuth, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareAuth)), prime)}
	recovery = Share{ID: ShareRecovery, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareRecovery)), prime)}
	return device, auth, recovery, nil
}

// splitDeterministic is a test-only counterpart of Split that takes the
// coefficient `a` as an argument instead of drawing it at random, used to
// pin the S1 enrollment fixture. Unlike Split it does not check secret < P.
func splitDeterministic(secret [SecretSize]byte, a *big.Int) (device, auth, recovery Share) {
	s := new(big.Int).SetBytes(secret[:])
	device = Share{ID: ShareDevice, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareDevice)), prime)}
	auth = Share{ID: ShareAuth, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareAuth)), prime)}
	recovery = Share{ID: ShareRecovery, Y: evaluatePolynomial(s, a, big.NewInt(int64(ShareRecovery)), prime)}
	return device, auth, recovery
}

// lagrangeAtZero reconstructs f(0) from exactly two (x, y) points via
// Lagrange interpolation over the fixed field, mirroring the n-point
// interpolation the auth server's own threshold scheme uses, specialized to
// the 2-point case this wallet core requires.
func lagrangeAtZero(a, b Share) (*big.Int, error) {
	if a.ID == b.ID {
		return nil, walleterr.New("shamir.Combine", walleterr.KindShareCorrupt, fmt.Errorf("duplicate share index %d", a.ID))
	}
	xa := big.NewInt(int64(a.ID))
	xb := big.NewInt(int64(b.ID))

	// lambda_a = (0 - xb) / (xa - xb) mod p ; lambda_b = (0 - xa) / (xb - xa) mod p
	numA := new(big.Int).Neg(xb)
	numA.Mod(numA, prime)
	denA := new(big.Int).Sub(xa, xb)
	denA.Mod(denA, prime)
	denAInv := new(big.Int).ModInverse(denA, prime)
	if denAInv == nil {
		return nil, walleterr.New("shamir.Combine", walleterr.KindShareCorrupt, fmt.Errorf("non-invertible share denominator"))
	}
	lambdaA := new(big.Int).Mul(numA, denAInv)
	lambdaA.Mod(lambdaA, prime)

	numB := new(big.Int).Neg(xa)
	numB.Mod(numB, prime)
	denB := new(big.Int).Sub(xb, xa)
	denB.Mod(denB, prime)
	denBInv := new(big.Int).ModInverse(denB, prime)
	if denBInv == nil {
		return nil, walleterr.New("shamir.Combine", walleterr.KindShareCorrupt, fmt.Errorf("non-invertible share denominator"))
	}
	lambdaB := new(big.Int).Mul(numB, denBInv)
	lambdaB.Mod(lambdaB, prime)

	secret := new(big.Int).Mul(a.Y, lambdaA)
	secret.Mod(secret, prime)
	term := new(big.Int).Mul(b.Y, lambdaB)
	term.Mod(term, prime)
	secret.Add(secret, term)
	secret.Mod(secret, prime)
	return secret, nil
}

// Combine reconstructs the original 16-byte secret from any two of the three
// shares. It fails with walleterr.KindShareCorrupt if the shares share an
// index or otherwise fail to decode to a consistent point.
func Combine(a, b Share) ([SecretSize]byte, error) {
	secret, err := lagrangeAtZero(a, b)
	if err != nil {
		return [SecretSize]byte{}, err
	}
	var out [SecretSize]byte
	secret.FillBytes(out[:])
	return out, nil
}

// NewShare regenerates the share for `id` from any two existing shares,
// without ever reconstructing the secret's 16-byte form directly — used
// after recovery to re-derive the device share without rewriting it through
// a secret round trip. Since the polynomial is degree-1, this needs the
// reconstructed secret as its constant term anyway; the distinction from
// Combine is purely the return shape (a share, not raw bytes).
func NewShare(id ShareID, a, b Share) (Share, error) {
	secret, err := lagrangeAtZero(a, b)
	if err != nil {
		return Share{}, err
	}
	xa := big.NewInt(int64(a.ID))
	xb := big.NewInt(int64(b.ID))
	// Recover the linear coefficient from the two points, then evaluate
	// at the requested x: coeff = (ya - secret) / xa mod p, since
	// f(x) = secret + coeff*x.
	numerator := new(big.Int).Sub(a.Y, secret)
	numerator.Mod(numerator, prime)
	xaInv := new(big.Int).ModInverse(xa, prime)
	if xaInv == nil {
		return Share{}, walleterr.New("shamir.NewShare", walleterr.KindShareCorrupt, fmt.Errorf("non-invertible share index"))
	}
	coeff := new(big.Int).Mul(numerator, xaInv)
	coeff.Mod(coeff, prime)

	// Sanity-check against the second point so a corrupted pair is caught
	// here rather than silently producing a wrong share.
	check := evaluatePolynomial(secret, coeff, xb, prime)
	if check.Cmp(b.Y) != 0 {
		return Share{}, walleterr.New("shamir.NewShare", walleterr.KindShareCorrupt, fmt.Errorf("inconsistent share pair"))
	}

	y := evaluatePolynomial(secret, coeff, big.NewInt(int64(id)), prime)
	return Share{ID: id, Y: y}, nil
}
