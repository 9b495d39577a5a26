package util

import "errors"

// Contains checks whether an item exists in a slice
func Contains[T comparable](s []T, item T) bool {
	for _, v := range s {
		if v == item {
			return true
		}
	}

	return false
}

// Dedupe removes duplicate items from a slice, preserving first-seen order
func Dedupe[T comparable](s []T) []T {
	seen := make(map[T]bool, len(s))
	result := make([]T, 0, len(s))
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	return result
}

// Remove returns a copy of the slice with every occurrence of item removed
func Remove[T comparable](s []T, item T) []T {
	result := make([]T, 0, len(s))
	for _, v := range s {
		if v != item {
			result = append(result, v)
		}
	}
	return result
}

// CopyMap returns a shallow copy of the given map
func CopyMap[K comparable, V any](m map[K]V) map[K]V {
	result := make(map[K]V, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

// ErrorAs returns true if the error or any error it wraps is of type T
func ErrorAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
