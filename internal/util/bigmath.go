package util

import (
	"math/big"

	"github.com/holiman/uint256"
)

// PriceFixedPoint1e18 returns floor(price * 1e18) as a *uint256.Int,
// truncating toward zero (spec.md §9: "banker-independent truncation,
// floor toward zero on non-negative values"). price must be finite and
// non-negative; callers check that before calling.
func PriceFixedPoint1e18(price float64) *uint256.Int {
	if price <= 0 {
		return uint256.NewInt(0)
	}

	bf := new(big.Float).SetPrec(200).SetFloat64(price)
	bf.Mul(bf, new(big.Float).SetPrec(200).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	bi, _ := bf.Int(nil) // Int truncates toward zero.
	if bi.Sign() < 0 {
		return uint256.NewInt(0)
	}

	u, overflow := uint256.FromBig(bi)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

// ClampBig returns v clamped to [lo, hi]. lo must be <= hi.
func ClampBig(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return new(big.Int).Set(v)
}

// ScaleLinear computes lo + floor(f*100)/100 * (hi-lo) with f clamped to
// [0,1] first, preserving big-integer precision throughout (spec.md §4.5
// "Amount scaling").
func ScaleLinear(f float64, lo, hi *big.Int) *big.Int {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}

	centipoints := int64(f * 100) // floor(f*100)
	span := new(big.Int).Sub(hi, lo)
	scaled := new(big.Int).Mul(span, big.NewInt(centipoints))
	scaled.Div(scaled, big.NewInt(100))

	return new(big.Int).Add(lo, scaled)
}

// ParseNonNegativeBigInt parses s as a base-10 non-negative integer,
// reporting ok=false if s is not a valid non-negative integer string.
func ParseNonNegativeBigInt(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
