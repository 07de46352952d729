package util

import (
	"cmp"
	"slices"
)

// SortedKeys returns the keys of a map in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Duplicates returns the values that occur more than once, each reported
// once in order of their second occurrence.
func Duplicates[T comparable](slice []T) []T {
	count := make(map[T]int, len(slice))
	var dups []T
	for _, v := range slice {
		count[v]++
		if count[v] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}

// IndexMap maps each value to the index of its first occurrence.
func IndexMap[T comparable](slice []T) map[T]int {
	idx := make(map[T]int, len(slice))
	for i, v := range slice {
		if _, ok := idx[v]; !ok {
			idx[v] = i
		}
	}
	return idx
}
