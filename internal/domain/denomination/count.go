package denomination

import (
	"errors"
	"fmt"
)

// ErrUnconfirmedCount indicates a count that is zero without every denomination being reviewed
var ErrUnconfirmedCount = errors.New("count is zero and not every denomination was explicitly confirmed")

// ErrInvalidCount indicates a count whose kind or amount is malformed
var ErrInvalidCount = errors.New("invalid cash count")

// CountKind distinguishes a raw total from a per-denomination breakdown
type CountKind string

const (
	CountKindTotal     CountKind = "TOTAL"
	CountKindBreakdown CountKind = "BREAKDOWN"
)

// CashCount is either a raw total or a denomination breakdown. Touched lists the face values the
// counter explicitly reviewed, which is how a legitimate all-zero count is told apart from an
// untouched form.
type CashCount struct {
	Kind          CountKind `json:"kind"`
	Amount        int64     `json:"amount,omitempty"`
	Denominations Set       `json:"denominations,omitempty"`
	Touched       []int64   `json:"touched,omitempty"`
}

// TotalCount builds a raw-total count
func TotalCount(amount int64, touched ...int64) CashCount {
	return CashCount{Kind: CountKindTotal, Amount: amount, Touched: touched}
}

// BreakdownCount builds a breakdown count
func BreakdownCount(set Set, touched ...int64) CashCount {
	return CashCount{Kind: CountKindBreakdown, Denominations: set, Touched: touched}
}

// ResolveTotal is the single source of truth for the amount a count represents
func ResolveTotal(c CashCount) int64 {
	if c.Kind == CountKindBreakdown {
		return c.Denominations.Total()
	}
	return c.Amount
}

// Breakdown returns the counted set, or an empty set for raw totals
func (c CashCount) Breakdown() Set {
	if c.Kind != CountKindBreakdown {
		return Set{}
	}
	return c.Denominations.Clone()
}

// Validate enforces that every accepted denomination was explicitly reviewed or the total is positive.
// An empty accepted list skips the face value whitelist.
func (c CashCount) Validate(accepted []int64) error {
	switch c.Kind {
	case CountKindTotal:
		if c.Amount < 0 {
			return fmt.Errorf("%w: negative total %d", ErrInvalidCount, c.Amount)
		}
	case CountKindBreakdown:
		if err := c.Denominations.Validate(); err != nil {
			return err
		}
		if len(accepted) > 0 {
			allowed := make(map[int64]struct{}, len(accepted))
			for _, face := range accepted {
				allowed[face] = struct{}{}
			}
			for face, qty := range c.Denominations {
				if _, ok := allowed[face]; !ok && qty != 0 {
					return fmt.Errorf("%w: face value %d is not accepted", ErrInvalidDenomination, face)
				}
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCount, c.Kind)
	}

	if ResolveTotal(c) > 0 {
		return nil
	}

	touched := make(map[int64]struct{}, len(c.Touched))
	for _, face := range c.Touched {
		touched[face] = struct{}{}
	}
	for _, face := range accepted {
		if _, ok := touched[face]; !ok {
			return fmt.Errorf("%w: face value %d", ErrUnconfirmedCount, face)
		}
	}
	if len(accepted) == 0 && len(touched) == 0 {
		return ErrUnconfirmedCount
	}
	return nil
}
