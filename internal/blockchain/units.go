package blockchain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"fyts-validation/pkg/errors"
)

// ToBaseUnits 可读金额转换为最小单位，金额必须为正且小数位不超过 decimals
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, errors.New(errors.ErrInvalidAmount,
			fmt.Sprintf("amount must be positive: %s", amount.String()), nil)
	}

	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, errors.New(errors.ErrInvalidAmount,
			fmt.Sprintf("amount %s has more than %d decimal places", amount.String(), decimals), nil)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits ToBaseUnits 的逆运算
func FromBaseUnits(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// FormatUnits 将最小单位金额格式化为可读字符串
func FormatUnits(value *big.Int, decimals uint8) string {
	return FromBaseUnits(value, decimals).String()
}
