package exchange

import (
	"errors"
	"fmt"
	"math"
)

// ErrPriceAnomaly 价格相对上一次的变化超过阈值
var ErrPriceAnomaly = errors.New("price anomaly")

// ValidatePriceChange 检查 |current-previous|/previous 是否超过阈值；没有有效的上一次价格时总是通过
func ValidatePriceChange(current, previous, threshold float64) error {
	if previous <= 0 || math.IsNaN(previous) {
		return nil
	}
	change := math.Abs(current-previous) / previous
	if change > threshold {
		return fmt.Errorf("%w: %.8g -> %.8g (%.2f%%)", ErrPriceAnomaly, previous, current, change*100)
	}
	return nil
}
