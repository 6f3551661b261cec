package stream

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrDemandUnderflow = errors.New("demand underflow: more values emitted than requested")
	ErrInvalidDemand   = errors.New("invalid demand (known: none, unlimited, or a non-negative count)")
)

// Demand is the number of values a subscriber currently permits a publisher
// to deliver. The zero value is None.
//
// Order: None < Max(n) < Unlimited, Max(n) < Max(m) iff n < m.
type Demand struct {
	n         uint64
	unlimited bool
}

var (
	None      = Demand{}
	Unlimited = Demand{unlimited: true}
)

// Max returns a bounded demand of n values. Max(0) is None.
func Max(n uint64) Demand {
	return Demand{n: n}
}

func (d Demand) IsNone() bool {
	return !d.unlimited && d.n == 0
}

func (d Demand) IsUnlimited() bool {
	return d.unlimited
}

// Count returns the bounded count. ok is false for Unlimited.
func (d Demand) Count() (n uint64, ok bool) {
	if d.unlimited {
		return 0, false
	}
	return d.n, true
}

// Add returns d+o, saturating at Unlimited.
func (d Demand) Add(o Demand) Demand {
	if d.unlimited || o.unlimited {
		return Unlimited
	}
	sum := d.n + o.n
	if sum < d.n {
		return Unlimited
	}
	return Demand{n: sum}
}

// Sub returns d-o. Unlimited minus any bounded demand stays Unlimited.
// Subtracting more than a bounded demand holds is a protocol violation and panics.
func (d Demand) Sub(o Demand) Demand {
	if d.unlimited {
		if o.unlimited {
			return None
		}
		return Unlimited
	}
	if o.unlimited || o.n > d.n {
		panic(ProtocolViolationError{Err: ErrDemandUnderflow, Op: fmt.Sprintf("%s - %s", d, o)})
	}
	return Demand{n: d.n - o.n}
}

// Decrement is Sub(Max(1)), the bookkeeping step for one emitted value.
func (d Demand) Decrement() Demand {
	return d.Sub(Max(1))
}

// Cmp returns -1, 0 or +1 depending on whether d is less than, equal to or greater than o.
func (d Demand) Cmp(o Demand) int {
	switch {
	case d.unlimited && o.unlimited:
		return 0
	case d.unlimited:
		return 1
	case o.unlimited:
		return -1
	case d.n < o.n:
		return -1
	case d.n > o.n:
		return 1
	default:
		return 0
	}
}

func (d Demand) Less(o Demand) bool {
	return d.Cmp(o) < 0
}

func (d Demand) String() string {
	switch {
	case d.unlimited:
		return "unlimited"
	case d.n == 0:
		return "none"
	default:
		return "max(" + strconv.FormatUint(d.n, 10) + ")"
	}
}

// ParseDemand accepts "none", "unlimited", "max(n)" or a decimal count.
func ParseDemand(s string) (Demand, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "none", "":
		return None, nil
	case "unlimited":
		return Unlimited, nil
	}
	if strings.HasPrefix(s, "max(") && strings.HasSuffix(s, ")") {
		s = s[len("max(") : len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return None, fmt.Errorf("%w: %q", ErrInvalidDemand, s)
	}
	if n == math.MaxUint64 {
		return Unlimited, nil
	}
	return Max(n), nil
}

// The following are necessary for Cobra and Viper, respectively, to unmarshal demand
// CLI/config parameters properly.

func (d *Demand) Set(s string) error {
	parsed, err := ParseDemand(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Demand) Type() string {
	return "Demand"
}

func (d Demand) MarshalText() ([]byte, error) {
	if d.unlimited {
		return []byte("unlimited"), nil
	}
	return []byte(strconv.FormatUint(d.n, 10)), nil
}

func (d *Demand) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}
