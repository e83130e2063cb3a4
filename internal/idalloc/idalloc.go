// Package idalloc hands out the short numeric public ids shown to users for
// events. Candidates are drawn from a random source and checked against
// the store until a free one is found.
package idalloc

import (
	"context"
	"fmt"
	"strconv"

	"logbook/internal/utils"
	"logbook/pkg/types"
)

const DefaultMaxAttempts = 5

// Checker reports whether a public id is already taken.
type Checker interface {
	PublicIDExists(ctx context.Context, publicID int64) (bool, error)
}

// Source produces a candidate id.
type Source func() (int64, error)

type Allocator struct {
	checker     Checker
	maxAttempts int
	source      Source
}

func New(checker Checker, maxAttempts int) *Allocator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Allocator{
		checker:     checker,
		maxAttempts: maxAttempts,
		source:      EightDigits,
	}
}

// WithSource swaps the candidate generator. Tests use it to shrink the id
// space.
func (a *Allocator) WithSource(source Source) *Allocator {
	a.source = source
	return a
}

// Allocate returns an id no existing event uses. The unique index on
// events.public_id still guards against a concurrent writer taking the
// same candidate between the check and the insert.
func (a *Allocator) Allocate(ctx context.Context) (int64, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate, err := a.source()
		if err != nil {
			return 0, fmt.Errorf("failed to generate public id: %w", err)
		}

		exists, err := a.checker.PublicIDExists(ctx, candidate)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to check public id %d: %w", types.ErrPersistence, candidate, err)
		}

		if !exists {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("%w after %d attempts", types.ErrCollisionExhausted, a.maxAttempts)
}

// EightDigits returns a random id between 10000000 and 99999999.
func EightDigits() (int64, error) {
	digits, err := utils.NanoDigits(8)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(digits, 10, 64)
}
