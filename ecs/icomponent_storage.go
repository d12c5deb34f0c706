package ecs

import "iter"

// iComponentStorage is an interface for a type-erased component storage indexed by entity slot.
type iComponentStorage interface {
	Set(index int, item any) bool
	Delete(index int) bool
	Get(index int) any
	Has(index int) bool
	Len() int
	Iter() iter.Seq[int]
}
