// Package todoist models Todoist tasks and talks to the Todoist REST API.
package todoist

import "github.com/basecamp/konnector/internal/output"

// Priority is a Todoist priority. 1 is the default, 4 is the most urgent.
type Priority struct {
	value int
}

// DefaultPriority is what Todoist assigns when none is given.
const DefaultPriority = 1

// NewPriority validates p against the [1,4] range.
func NewPriority(p int) (Priority, error) {
	if p < 1 || p > 4 {
		return Priority{}, output.ErrValidation("todoist priority must be between 1 and 4, got %d", p)
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

func equalPriority(a, b *Priority) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Int() == b.Int()
}
