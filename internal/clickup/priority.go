// Package clickup models Clickup tasks and talks to the Clickup REST API.
package clickup

import "github.com/basecamp/konnector/internal/output"

// Priority is a Clickup priority. 1 is urgent, 4 is low.
type Priority struct {
	value int
}

// DefaultPriority is "normal".
const DefaultPriority = 3

// NewPriority validates p against the [1,4] range.
func NewPriority(p int) (Priority, error) {
	if p < 1 || p > 4 {
		return Priority{}, output.ErrValidation("clickup priority must be between 1 and 4, got %d", p)
	}
	return Priority{value: p}, nil
}

// MustPriority is NewPriority for constants known to be valid.
func MustPriority(p int) Priority {
	pr, err := NewPriority(p)
	if err != nil {
		panic(err)
	}
	return pr
}

// Int returns the raw priority.
func (p Priority) Int() int {
	if p.value == 0 {
		return DefaultPriority
	}
	return p.value
}

func (p Priority) String() string {
	switch p.Int() {
	case 1:
		return "urgent"
	case 2:
		return "high"
	case 3:
		return "normal"
	default:
		return "low"
	}
}

func equalPriority(a, b *Priority) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Int() == b.Int()
}
