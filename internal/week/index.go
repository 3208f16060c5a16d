package week

import "sort"

// Index records which week numbers have a persisted remote record. It is not
// safe for concurrent use; Tracker guards it with its own mutex.
type Index struct {
	weeks map[int]struct{}
}

// NewIndex builds an index from a list of week numbers. Duplicates collapse.
func NewIndex(numbers ...int) *Index {
	idx := &Index{weeks: make(map[int]struct{}, len(numbers))}
	for _, n := range numbers {
		idx.Add(n)
	}
	return idx
}

// Add marks week n as persisted. Adding a present week is a no-op.
func (idx *Index) Add(n int) {
	if n < 1 {
		return
	}
	idx.weeks[n] = struct{}{}
}

// Has reports whether week n is persisted.
func (idx *Index) Has(n int) bool {
	_, ok := idx.weeks[n]
	return ok
}

// Len returns the number of persisted weeks.
func (idx *Index) Len() int {
	return len(idx.weeks)
}

// Max returns the highest persisted week number, or 0 when empty.
func (idx *Index) Max() int {
	highest := 0
	for n := range idx.weeks {
		if n > highest {
			highest = n
		}
	}
	return highest
}

// Numbers returns the persisted week numbers in ascending order.
func (idx *Index) Numbers() []int {
	out := make([]int, 0, len(idx.weeks))
	for n := range idx.weeks {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
