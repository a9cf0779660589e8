// Package kvector provides a bounded table whose slots keep their index for
// as long as they are occupied.
package kvector

import "gopherkern/kernel"

var (
	errVectorFull = &kernel.Error{Module: "kvector", Message: "vector capacity exceeded"}
	errBadIndex   = &kernel.Error{Module: "kvector", Message: "index does not refer to an occupied slot"}
	errSlotInUse  = &kernel.Error{Module: "kvector", Message: "slot already occupied"}
)

// Vector is a bounded table of T values. Add places values into the lowest
// free slot so indices of removed values get reused.
type Vector[T any] struct {
	items []T
	used  []bool
	count int
	limit int
}

// New returns an empty vector that holds at most limit values.
func New[T any](limit int) *Vector[T] {
	return &Vector[T]{limit: limit}
}

// Add stores value in the lowest free slot and returns its index.
func (v *Vector[T]) Add(value T) (int, *kernel.Error) {
	for index, used := range v.used {
		if !used {
			v.items[index] = value
			v.used[index] = true
			v.count++
			return index, nil
		}
	}

	if len(v.items) >= v.limit {
		return -1, errVectorFull
	}

	v.items = append(v.items, value)
	v.used = append(v.used, true)
	v.count++
	return len(v.items) - 1, nil
}

// Put stores value at a specific free slot.
func (v *Vector[T]) Put(index int, value T) *kernel.Error {
	if index < 0 || index >= v.limit {
		return errBadIndex
	}

	for len(v.items) <= index {
		var zero T
		v.items = append(v.items, zero)
		v.used = append(v.used, false)
	}

	if v.used[index] {
		return errSlotInUse
	}

	v.items[index] = value
	v.used[index] = true
	v.count++
	return nil
}

// Get returns the value stored at index.
func (v *Vector[T]) Get(index int) (T, *kernel.Error) {
	var zero T
	if index < 0 || index >= len(v.items) || !v.used[index] {
		return zero, errBadIndex
	}

	return v.items[index], nil
}

// Remove clears the slot at index and returns the value it held.
func (v *Vector[T]) Remove(index int) (T, *kernel.Error) {
	value, err := v.Get(index)
	if err != nil {
		return value, err
	}

	var zero T
	v.items[index] = zero
	v.used[index] = false
	v.count--
	return value, nil
}

// Len returns the number of occupied slots.
func (v *Vector[T]) Len() int {
	return v.count
}

// Cap returns the maximum number of values the vector can hold.
func (v *Vector[T]) Cap() int {
	return v.limit
}

// Each invokes fn for every occupied slot in index order.
func (v *Vector[T]) Each(fn func(index int, value T)) {
	for index, used := range v.used {
		if used {
			fn(index, v.items[index])
		}
	}
}
