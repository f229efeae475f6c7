package schedule

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parsePrice parses a UK formatted price into pence.
// Format examples: "£1,234.50" -> 123450, "95" -> 9500, "45.00" -> 4500.
func parsePrice(s string) (int64, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(s), "£")
	clean = strings.ReplaceAll(clean, ",", "")

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, err
	}

	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %s", s)
	}

	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
