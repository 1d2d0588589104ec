package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MinimumLiquidity is the amount of LP shares permanently locked by the first mint of a pair.
const MinimumLiquidity = 1000

// MaxDecimals is the largest decimals value whose scale (10^dec) fits in 256 bits.
const MaxDecimals = 77

var (
	ten = uint256.NewInt(10)

	// precomputed 10^dec for typical ERC20 decimals (0..18)
	precomputedScales [19]*uint256.Int

	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidAmount is returned when an amount cannot be used, e.g. zero where a positive value is required.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrOverflow = errors.New("uint256 overflow")
	// ErrDivisionByZero is returned when a share is computed against an empty supply or reserve.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrInsufficientLiquidity is returned when a pool has no reserves to quote against.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInsufficientLiquidityMinted is returned when a deposit would mint zero shares.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
)

func init() {
	precomputedScales[0] = uint256.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(uint256.Int).Mul(precomputedScales[i-1], ten)
	}
}

// GetScaledDecimal returns 10^dec. It returns a *uint256.Int that MUST NOT be modified.
// dec must not exceed MaxDecimals.
func GetScaledDecimal(dec uint8) *uint256.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec]
	}
	return new(uint256.Int).Exp(ten, uint256.NewInt(uint64(dec)))
}

// MulDiv computes floor(x * y / d). The product must fit in 256 bits, matching
// SafeMath semantics of the pair contracts it mirrors.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if x == nil || y == nil || d == nil {
		return nil, ErrNilAmount
	}
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return product.Div(product, d), nil
}

// ShareOf returns the amount of a pool token redeemed by burning liquidity shares:
// liquidity * balance / totalSupply, rounded down.
func ShareOf(liquidity, balance, totalSupply *uint256.Int) (*uint256.Int, error) {
	if liquidity == nil || balance == nil || totalSupply == nil {
		return nil, ErrNilAmount
	}
	if totalSupply.IsZero() {
		return nil, fmt.Errorf("%w: total supply is zero", ErrDivisionByZero)
	}
	return MulDiv(liquidity, balance, totalSupply)
}

// Quote returns the amount of token B equivalent to amountA at the current reserve ratio.
// Adopted from UniswapV2Library.quote.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA == nil || reserveA == nil || reserveB == nil {
		return nil, ErrNilAmount
	}
	if amountA.IsZero() {
		return nil, fmt.Errorf("%w: quote amount is zero", ErrInvalidAmount)
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return MulDiv(amountA, reserveB, reserveA)
}

// InitialLiquidity returns the shares minted to the first depositor of an empty pair,
// sqrt(amount0 * amount1) - MinimumLiquidity.
func InitialLiquidity(amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if amount0 == nil || amount1 == nil {
		return nil, ErrNilAmount
	}
	product, overflow := new(uint256.Int).MulOverflow(amount0, amount1)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, amount0.Dec(), amount1.Dec())
	}
	root := new(uint256.Int).Sqrt(product)
	minimum := uint256.NewInt(MinimumLiquidity)
	if root.Cmp(minimum) <= 0 {
		return nil, fmt.Errorf("%w: sqrt(k)=%s", ErrInsufficientLiquidityMinted, root.Dec())
	}
	return root.Sub(root, minimum), nil
}

// ProportionalLiquidity returns the shares minted for a deposit into a pair that
// already has supply: min(amount0 * totalSupply / reserve0, amount1 * totalSupply / reserve1).
func ProportionalLiquidity(amount0, amount1, reserve0, reserve1, totalSupply *uint256.Int) (*uint256.Int, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.IsZero() || reserve1.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	liquidity0, err := MulDiv(amount0, totalSupply, reserve0)
	if err != nil {
		return nil, err
	}
	liquidity1, err := MulDiv(amount1, totalSupply, reserve1)
	if err != nil {
		return nil, err
	}
	liquidity := Min(liquidity0, liquidity1)
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Normalize rescales amount from one decimals precision to another.
// Scaling down truncates; scaling up fails with ErrOverflow if the result exceeds 256 bits.
func Normalize(amount *uint256.Int, fromDecimals, toDecimals uint8) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if fromDecimals > MaxDecimals || toDecimals > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals %d -> %d", ErrOverflow, fromDecimals, toDecimals)
	}
	switch {
	case fromDecimals == toDecimals:
		return new(uint256.Int).Set(amount), nil
	case fromDecimals > toDecimals:
		return new(uint256.Int).Div(amount, GetScaledDecimal(fromDecimals-toDecimals)), nil
	default:
		scaled, overflow := new(uint256.Int).MulOverflow(amount, GetScaledDecimal(toDecimals-fromDecimals))
		if overflow {
			return nil, fmt.Errorf("%w: normalizing %s from %d to %d decimals", ErrOverflow, amount.Dec(), fromDecimals, toDecimals)
		}
		return scaled, nil
	}
}

// Price returns how many whole token1 one whole token0 is worth at the given
// reserves, after normalizing both sides to 18 decimals. A pool with no token0
// reserve has no price and fails with ErrInsufficientLiquidity.
func Price(reserve0, reserve1 *uint256.Int, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	if reserve0 == nil || reserve1 == nil {
		return decimal.Zero, ErrNilAmount
	}
	if reserve0.IsZero() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	n0, err := Normalize(reserve0, decimals0, 18)
	if err != nil {
		return decimal.Zero, err
	}
	n1, err := Normalize(reserve1, decimals1, 18)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(n1.ToBig(), 0).DivRound(decimal.NewFromBigInt(n0.ToBig(), 0), 18), nil
}

// FormatUnits converts a raw token amount into a decimal value in whole-token units.
func FormatUnits(amount *uint256.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals))
}

// ParseUnits converts a human-readable amount such as "12.5" into raw units with the given decimals.
// Amounts with more fractional digits than decimals allows are rejected.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, value, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, value, decimals)
	}
	raw, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, value)
	}
	return raw, nil
}

// FromBig converts a non-negative big.Int into a uint256, rejecting negatives and overflow.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return nil, ErrNilAmount
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, b.String())
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, b.String())
	}
	return z, nil
}
