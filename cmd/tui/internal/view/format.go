package view

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dbTimeout = 5 * time.Second

// FormatAmount formats an amount stored as pence, e.g. 9500 as "95.00".
func FormatAmount(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}

	return fmt.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}

// ParseAmount reads a pounds amount such as "95" or "95.50" into pence.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "£")

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (len(frac) == 0 || len(frac) > 2)) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	pounds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || pounds < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var pence int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}

		if pence, err = strconv.ParseInt(frac, 10, 64); err != nil || pence < 0 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}

	return pounds*100 + pence, nil
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
