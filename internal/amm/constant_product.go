// Package amm implements constant-product pool pricing.
package amm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FeeDenom is the bps denominator applied to swap fees.
const FeeDenom = 10000

var (
	feeDenomBig = big.NewInt(FeeDenom)
	zero        = new(big.Int)
)

// AmountOut returns the output of a constant-product swap for amountIn given
// pool reserves and a fee in bps. The fee is applied to the input before the
// product rule:
//
//	out = in*(1-fee)*reserveOut / (reserveIn + in*(1-fee))
//
// Zero input or zero reserves yield zero. The result is always strictly less
// than reserveOut for positive reserves.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return new(big.Int)
	}
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	if feeBps >= FeeDenom {
		return new(big.Int)
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(FeeDenom-feeBps)))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, feeDenomBig)
	den.Add(den, inWithFee)
	return num.Div(num, den)
}

// AmountIn returns the input required to receive amountOut from the pool,
// the inverse of AmountOut:
//
//	in = reserveIn*out / ((reserveOut - out) * (1-fee))
//
// rounded up so that feeding the result back through AmountOut recovers at
// least amountOut less integer truncation. A target at or above reserveOut is
// unobtainable and yields zero, as do zero amounts or reserves.
func AmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return new(big.Int)
	}
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	if feeBps >= FeeDenom || amountOut.Cmp(reserveOut) >= 0 {
		return new(big.Int)
	}

	num := new(big.Int).Mul(reserveIn, amountOut)
	num.Mul(num, feeDenomBig)
	den := new(big.Int).Sub(reserveOut, amountOut)
	den.Mul(den, big.NewInt(int64(FeeDenom-feeBps)))

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ToUnits converts a human-denominated amount to token smallest units,
// truncating any fraction below one unit.
func ToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}
	return amount.Shift(decimals).BigInt()
}

// FromUnits converts token smallest units back to a human-denominated amount.
func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil || units.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
