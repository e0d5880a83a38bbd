// Package decimal implements exact fixed-point arithmetic for prices,
// amounts and balances. Values carry at most 18 fractional digits.
package decimal

import (
	"fmt"
	"math/big"
)

// MaxUserScale is 7 fractional digits. No code in this module checks
// it: order acceptance checks each symbol's own base and quote scales.
const MaxUserScale = 7

// pow10 to 18 places, used to scale values by their fractional digits
// and for the merkle-leaf 1e18 conversion in ToMerkleUint128.
var pow10 [19]*big.Int

func init() {
	ten := big.NewInt(10)
	pow10[0] = big.NewInt(1)
	for i := 1; i < len(pow10); i++ {
		pow10[i] = new(big.Int).Mul(pow10[i-1], ten)
	}
}

// Decimal is an exact decimal value represented as unscaled * 10^-scale.
type Decimal struct {
	unscaled *big.Int
	scale    uint
}

// Zero is the additive identity.
var Zero = Decimal{unscaled: big.NewInt(0), scale: 0}

// New builds a Decimal from an unscaled integer and a scale (number of
// fractional digits).
func New(unscaled int64, scale uint) Decimal {
	return Decimal{unscaled: big.NewInt(unscaled), scale: scale}
}

// Parse reads a decimal literal like "123.4500". Returns an error if the
// string isn't a valid decimal.
func Parse(s string) (Decimal, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal: invalid literal %q", s)
	}
	return fromRat(r)
}

func fromRat(r *big.Rat) (Decimal, error) {
	denom := r.Denom()
	// denom divides a power of ten only if its prime factors are 2 and 5,
	// and neither exponent can exceed denom's bit length.
	probe := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(denom.BitLen())), nil)
	if new(big.Int).Mod(probe, denom).Sign() != 0 {
		return Decimal{}, fmt.Errorf("decimal: non-terminating decimal expansion")
	}
	scale := uint(0)
	for new(big.Int).Mod(pow10[scale], denom).Sign() != 0 {
		scale++
		if scale > 18 {
			return Decimal{}, fmt.Errorf("decimal: too many fractional digits")
		}
	}
	unscaled := new(big.Int).Mul(r.Num(), pow10[scale])
	unscaled.Div(unscaled, denom)
	return Decimal{unscaled: unscaled, scale: scale}, nil
}

// Scale returns the number of fractional digits currently tracked.
func (d Decimal) Scale() uint { return d.scale }

// IsPositive reports whether d is strictly greater than zero.
func (d Decimal) IsPositive() bool { return d.unscaled != nil && d.unscaled.Sign() > 0 }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.unscaled == nil || d.unscaled.Sign() == 0 }

// Sign returns -1, 0 or 1.
func (d Decimal) Sign() int {
	if d.unscaled == nil {
		return 0
	}
	return d.unscaled.Sign()
}

func (d Decimal) rat() *big.Rat {
	if d.unscaled == nil {
		return new(big.Rat)
	}
	r := new(big.Rat).SetInt(d.unscaled)
	return r.Quo(r, new(big.Rat).SetInt(pow10[d.scale]))
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	r := new(big.Rat).Add(d.rat(), other.rat())
	dec, _ := fromRat(r)
	return dec
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	r := new(big.Rat).Sub(d.rat(), other.rat())
	dec, _ := fromRat(r)
	return dec
}

// Mul returns d * other.
func (d Decimal) Mul(other Decimal) Decimal {
	r := new(big.Rat).Mul(d.rat(), other.rat())
	dec, _ := fromRat(r)
	return dec
}

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	if d.unscaled == nil {
		return d
	}
	return Decimal{unscaled: new(big.Int).Neg(d.unscaled), scale: d.scale}
}

// Cmp compares d to other: -1, 0, 1.
func (d Decimal) Cmp(other Decimal) int {
	return d.rat().Cmp(other.rat())
}

// Min returns the smaller of d and other.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the canonical decimal form.
func (d Decimal) String() string {
	if d.unscaled == nil {
		return "0"
	}
	return d.rat().FloatString(int(d.scale))
}

// MarshalJSON renders as a quoted decimal string, matching the
// original implementation's JSON command format.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON reads a quoted decimal string.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ToMerkleUint128 converts d into the SMT leaf integer representation:
// trunc(d) * 1e18 + frac(d) scaled to 18 fractional digits. Returns
// false if d is negative or does not fit.
func (d Decimal) ToMerkleUint128() (*big.Int, bool) {
	if d.unscaled == nil {
		return new(big.Int), true
	}
	if d.unscaled.Sign() < 0 {
		return nil, false
	}
	if d.scale > 18 {
		return nil, false
	}
	scaled := new(big.Int).Mul(d.unscaled, pow10[18-d.scale])
	if scaled.BitLen() > 128 {
		return nil, false
	}
	return scaled, true
}
