package tracking

import (
	"math"

	"github.com/shopspring/decimal"
)

var halfToken = decimal.RequireFromString("0.5")

// RewardForMiles 里程换算奖励：满 1 英里按整英里数，[0.5, 1) 为 0.5，其余为 0
func RewardForMiles(miles float64) decimal.Decimal {
	switch {
	case miles >= 1:
		return decimal.NewFromFloat(math.Floor(miles))
	case miles >= 0.5:
		return halfToken
	default:
		return decimal.Zero
	}
}
