// Package denomination holds the bill-count value objects the vault ledger is built on.
// Every amount is an integer number of face-value units; totals are derived by multiplying
// counts by face value, so no rounding can ever be introduced.
package denomination

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	ErrInvalidDenomination = errors.New("face value must be positive and quantity non-negative")
	ErrDuplicateFaceValue  = errors.New("duplicate face value in denomination list")
	ErrEmptySet            = errors.New("denomination set must contain at least one bill")
	ErrAmountOverflow      = errors.New("amount exceeds the representable range")
)

// ErrInsufficientStock indicates that applying a change would leave a face value with a negative quantity
type ErrInsufficientStock struct {
	FaceValue int64
	Available int64
	Requested int64
}

func (e ErrInsufficientStock) Error() string {
	return "insufficient stock for face value " + strconv.FormatInt(e.FaceValue, 10) +
		": available " + strconv.FormatInt(e.Available, 10) +
		", requested " + strconv.FormatInt(e.Requested, 10)
}

// Is implements the errors.Is interface for ErrInsufficientStock
func (e ErrInsufficientStock) Is(target error) bool {
	t, ok := target.(ErrInsufficientStock)
	if !ok {
		return false
	}
	// A zero-valued target matches any insufficient stock error
	if t.FaceValue == 0 {
		return true
	}
	return e.FaceValue == t.FaceValue
}

// Denomination is a bill face value and how many of it are held or counted
type Denomination struct {
	FaceValue int64 `json:"face_value" bson:"face_value"`
	Quantity  int64 `json:"quantity" bson:"quantity"`
}

// Set maps a face value to its quantity. Zero quantities are allowed and carry no value.
type Set map[int64]int64

// Delta is a signed per-face-value quantity change
type Delta map[int64]int64

// FromEntries builds a Set from a list, rejecting duplicates and invalid values
func FromEntries(entries []Denomination) (Set, error) {
	set := make(Set, len(entries))
	for _, e := range entries {
		if e.FaceValue <= 0 || e.Quantity < 0 {
			return nil, fmt.Errorf("%w: face value %d, quantity %d", ErrInvalidDenomination, e.FaceValue, e.Quantity)
		}
		if _, exists := set[e.FaceValue]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateFaceValue, e.FaceValue)
		}
		set[e.FaceValue] = e.Quantity
	}
	return set, nil
}

// Validate checks that every face value is positive, every quantity non-negative and that
// the total fits in an int64. Total is only meaningful on a set that passed Validate.
func (s Set) Validate() error {
	for face, qty := range s {
		if face <= 0 || qty < 0 {
			return fmt.Errorf("%w: face value %d, quantity %d", ErrInvalidDenomination, face, qty)
		}
	}
	_, err := s.CheckedTotal()
	return err
}

// CheckedTotal is Total that fails with ErrAmountOverflow instead of wrapping
func (s Set) CheckedTotal() (int64, error) {
	var total int64
	for face, qty := range s {
		value, err := MulAmount(face, qty)
		if err != nil {
			return 0, fmt.Errorf("face value %d, quantity %d: %w", face, qty, err)
		}
		if total, err = AddAmount(total, value); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// AddAmount adds two amounts, failing with ErrAmountOverflow instead of wrapping
func AddAmount(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// MulAmount multiplies two amounts, failing with ErrAmountOverflow instead of wrapping
func MulAmount(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrAmountOverflow
	}
	return product, nil
}

// Total returns the sum of face value times quantity
func (s Set) Total() int64 {
	var total int64
	for face, qty := range s {
		total += face * qty
	}
	return total
}

// Clone returns an independent copy, never nil
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for face, qty := range s {
		out[face] = qty
	}
	return out
}

// Equal compares two sets treating missing face values as zero
func (s Set) Equal(other Set) bool {
	for face, qty := range s {
		if other[face] != qty {
			return false
		}
	}
	for face, qty := range other {
		if s[face] != qty {
			return false
		}
	}
	return true
}

// Entries returns the non-zero entries ordered by descending face value
func (s Set) Entries() []Denomination {
	out := make([]Denomination, 0, len(s))
	for face, qty := range s {
		if qty == 0 {
			continue
		}
		out = append(out, Denomination{FaceValue: face, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FaceValue > out[j].FaceValue })
	return out
}

// IsEmpty reports whether the set holds no bills
func (s Set) IsEmpty() bool {
	for _, qty := range s {
		if qty != 0 {
			return false
		}
	}
	return true
}

// Merge returns the quantity-wise sum of a and b
func Merge(a, b Set) (Set, error) {
	out := a.Clone()
	for face, qty := range b {
		sum, err := AddAmount(out[face], qty)
		if err != nil {
			return nil, fmt.Errorf("face value %d: %w", face, err)
		}
		out[face] = sum
	}
	if _, err := out.CheckedTotal(); err != nil {
		return nil, err
	}
	return out, nil
}

// Subtract returns a minus b, failing if any resulting quantity would be negative
func Subtract(a, b Set) (Set, error) {
	delta := make(Delta, len(b))
	for face, qty := range b {
		delta[face] = -qty
	}
	return a.Apply(delta)
}

// Apply returns a new set with delta applied. Nothing is applied if any face value would go
// negative or the resulting total would overflow.
func (s Set) Apply(delta Delta) (Set, error) {
	out := s.Clone()
	// Check in a stable order so the reported face value is deterministic
	faces := make([]int64, 0, len(delta))
	for face := range delta {
		faces = append(faces, face)
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i] > faces[j] })

	for _, face := range faces {
		if face <= 0 {
			return nil, fmt.Errorf("%w: face value %d", ErrInvalidDenomination, face)
		}
		change := delta[face]
		next, err := AddAmount(out[face], change)
		if err != nil {
			return nil, fmt.Errorf("face value %d: %w", face, err)
		}
		if next < 0 {
			return nil, ErrInsufficientStock{FaceValue: face, Available: out[face], Requested: -change}
		}
		out[face] = next
	}
	if _, err := out.CheckedTotal(); err != nil {
		return nil, err
	}
	return out, nil
}

// Diff returns the delta that turns base into target
func Diff(target, base Set) Delta {
	delta := make(Delta)
	for face, qty := range target {
		if d := qty - base[face]; d != 0 {
			delta[face] = d
		}
	}
	for face, qty := range base {
		if _, seen := target[face]; !seen && qty != 0 {
			delta[face] = -qty
		}
	}
	return delta
}

// FromSet turns a set into a positive delta
func FromSet(s Set) Delta {
	delta := make(Delta, len(s))
	for face, qty := range s {
		if qty != 0 {
			delta[face] = qty
		}
	}
	return delta
}

// Total returns the signed value of the delta
func (d Delta) Total() int64 {
	var total int64
	for face, qty := range d {
		total += face * qty
	}
	return total
}

// IsZero reports whether the delta changes nothing
func (d Delta) IsZero() bool {
	for _, qty := range d {
		if qty != 0 {
			return false
		}
	}
	return true
}
