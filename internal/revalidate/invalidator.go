package revalidate

import (
	"context"
	"errors"
)

// Invalidator drops cached content. Both calls must be idempotent.
type Invalidator interface {
	InvalidatePath(ctx context.Context, path string) error
	InvalidateTag(ctx context.Context, tag string) error
}

// Multi fans each call out to every invalidator. All of them are called even
// when one fails; the failures are joined.
func Multi(invs ...Invalidator) Invalidator {
	out := make(multi, 0, len(invs))
	for _, inv := range invs {
		if inv != nil {
			out = append(out, inv)
		}
	}
	return out
}

type multi []Invalidator

func (m multi) InvalidatePath(ctx context.Context, path string) error {
	var errs []error
	for _, inv := range m {
		if err := inv.InvalidatePath(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) InvalidateTag(ctx context.Context, tag string) error {
	var errs []error
	for _, inv := range m {
		if err := inv.InvalidateTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
